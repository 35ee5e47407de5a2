package store

import (
	"context"
	"errors"
	"time"

	"aihub/pkg/domain"
)

// ErrInvalidRole is returned when a message carries an unknown role.
var ErrInvalidRole = errors.New("invalid message role")

// Store defines persistence operations for threads, conversations, messages,
// context summaries and credentials.
type Store interface {
	// threads
	CreateThread(ctx context.Context, thread domain.Thread) error
	GetThread(ctx context.Context, id string) (domain.Thread, bool, error)
	ListThreadsByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Thread, error)
	TouchThread(ctx context.Context, id string, at time.Time) error
	DeleteThread(ctx context.Context, id string) error

	// conversations
	CreateConversation(ctx context.Context, conversation domain.Conversation) error
	GetConversation(ctx context.Context, id string) (domain.Conversation, bool, error)
	FindConversationByProvider(ctx context.Context, threadID, provider string) (domain.Conversation, bool, error)
	ListConversations(ctx context.Context, threadID string) ([]domain.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error

	// messages
	AppendMessage(ctx context.Context, msg domain.Message) error
	// ListRecentMessages returns the newest limit messages of a thread, across
	// all of its conversations, in chronological order.
	ListRecentMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error)
	ListConversationMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)

	SummaryStore
	CredentialStore
}

// SummaryStore persists one context summary per thread.
type SummaryStore interface {
	GetSummary(ctx context.Context, threadID string) (domain.ContextSummary, bool, error)
	// UpsertSummary creates the thread's summary or overwrites it in place.
	UpsertSummary(ctx context.Context, threadID, summary string, messageCount int) (domain.ContextSummary, error)
}

// CredentialStore persists provider API keys, unique per (owner, provider).
type CredentialStore interface {
	GetCredential(ctx context.Context, ownerID, provider string) (domain.Credential, bool, error)
	SaveCredential(ctx context.Context, cred domain.Credential) error
	DeleteCredential(ctx context.Context, ownerID, provider string) (bool, error)
	ListCredentials(ctx context.Context, ownerID string) ([]domain.Credential, error)
}
