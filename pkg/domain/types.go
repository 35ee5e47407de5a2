package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known message roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// User is the authenticated caller. Only the ID is known to this service.
type User struct {
	ID string `json:"id"`
}

// Thread is a top-level chat session. An empty Provider marks a multi-provider container.
type Thread struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Conversation is a sub-thread bound to exactly one provider.
type Conversation struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	Provider  string    `json:"provider"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"threadId"`
	ConversationID string          `json:"conversationId,omitempty"`
	Provider       string          `json:"provider"`
	Content        string          `json:"content"`
	Role           Role            `json:"role"`
	Failure        *MessageFailure `json:"failure,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// MessageFailure tags an assistant message whose content was rendered from a
// provider failure instead of a provider reply.
type MessageFailure struct {
	Kind       string `json:"kind"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"statusCode,omitempty"`
}

type ContextSummary struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"threadId"`
	Summary      string    `json:"summary"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Credential is a provider API key owned by a user.
type Credential struct {
	OwnerID   string    `json:"ownerId"`
	Provider  string    `json:"provider"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
