package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"aihub/internal/util"
	"aihub/pkg/domain"
)

type credentialKey struct {
	owner    string
	provider string
}

// MemoryStore keeps everything in-process. Used for local runs and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	threads       map[string]domain.Thread
	conversations map[string]domain.Conversation
	convOrder     []string
	messages      []domain.Message
	summaries     map[string]domain.ContextSummary
	credentials   map[credentialKey]domain.Credential
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:       make(map[string]domain.Thread),
		conversations: make(map[string]domain.Conversation),
		summaries:     make(map[string]domain.ContextSummary),
		credentials:   make(map[credentialKey]domain.Credential),
	}
}

func (m *MemoryStore) CreateThread(_ context.Context, thread domain.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[thread.ID] = thread
	return nil
}

func (m *MemoryStore) GetThread(_ context.Context, id string) (domain.Thread, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.threads[id]
	return t, ok, nil
}

// ListThreadsByOwner returns threads filtered by owner, most recently updated first.
func (m *MemoryStore) ListThreadsByOwner(_ context.Context, ownerID string, limit int) ([]domain.Thread, error) {
	m.mu.RLock()
	res := make([]domain.Thread, 0)
	for _, t := range m.threads {
		if t.OwnerID == ownerID {
			res = append(res, t)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].UpdatedAt.Equal(res[j].UpdatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].UpdatedAt.After(res[j].UpdatedAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) TouchThread(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return nil
	}
	t.UpdatedAt = at.UTC()
	m.threads[id] = t
	return nil
}

// DeleteThread removes a thread and everything hanging off it.
func (m *MemoryStore) DeleteThread(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, id)
	delete(m.summaries, id)
	order := m.convOrder[:0]
	for _, convID := range m.convOrder {
		if m.conversations[convID].ThreadID == id {
			delete(m.conversations, convID)
			continue
		}
		order = append(order, convID)
	}
	m.convOrder = order
	msgs := m.messages[:0]
	for _, msg := range m.messages {
		if msg.ThreadID != id {
			msgs = append(msgs, msg)
		}
	}
	m.messages = msgs
	return nil
}

func (m *MemoryStore) CreateConversation(_ context.Context, conversation domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conversations[conversation.ID]; !exists {
		m.convOrder = append(m.convOrder, conversation.ID)
	}
	m.conversations[conversation.ID] = conversation
	return nil
}

func (m *MemoryStore) GetConversation(_ context.Context, id string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	return c, ok, nil
}

func (m *MemoryStore) FindConversationByProvider(_ context.Context, threadID, provider string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.convOrder {
		c := m.conversations[id]
		if c.ThreadID == threadID && c.Provider == provider {
			return c, true, nil
		}
	}
	return domain.Conversation{}, false, nil
}

// ListConversations returns a thread's conversations in insertion order.
func (m *MemoryStore) ListConversations(_ context.Context, threadID string) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Conversation, 0)
	for _, id := range m.convOrder {
		if c := m.conversations[id]; c.ThreadID == threadID {
			res = append(res, c)
		}
	}
	return res, nil
}

func (m *MemoryStore) TouchConversation(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil
	}
	c.UpdatedAt = at.UTC()
	m.conversations[id] = c
	return nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg domain.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// ListRecentMessages returns the newest limit messages of a thread in
// chronological order. Equal timestamps keep insertion order.
func (m *MemoryStore) ListRecentMessages(_ context.Context, threadID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	msgs := m.filterMessages(func(msg domain.Message) bool { return msg.ThreadID == threadID })
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *MemoryStore) ListConversationMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	msgs := m.filterMessages(func(msg domain.Message) bool { return msg.ConversationID == conversationID })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *MemoryStore) filterMessages(keep func(domain.Message) bool) []domain.Message {
	m.mu.RLock()
	res := make([]domain.Message, 0)
	for _, msg := range m.messages {
		if keep(msg) {
			res = append(res, msg)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res
}

func (m *MemoryStore) GetSummary(_ context.Context, threadID string) (domain.ContextSummary, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[threadID]
	return s, ok, nil
}

// UpsertSummary overwrites the thread summary in place, keeping ID and CreatedAt.
func (m *MemoryStore) UpsertSummary(_ context.Context, threadID, summary string, messageCount int) (domain.ContextSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	s, ok := m.summaries[threadID]
	if !ok {
		s = domain.ContextSummary{ID: util.NewID(), ThreadID: threadID, CreatedAt: now}
	}
	s.Summary = summary
	s.MessageCount = messageCount
	s.UpdatedAt = now
	m.summaries[threadID] = s
	return s, nil
}

func (m *MemoryStore) GetCredential(_ context.Context, ownerID, provider string) (domain.Credential, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[credentialKey{ownerID, provider}]
	return c, ok, nil
}

// SaveCredential creates or replaces a credential, keeping the original CreatedAt.
func (m *MemoryStore) SaveCredential(_ context.Context, cred domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credentialKey{cred.OwnerID, cred.Provider}
	if existing, ok := m.credentials[key]; ok && !existing.CreatedAt.IsZero() {
		cred.CreatedAt = existing.CreatedAt
	}
	m.credentials[key] = cred
	return nil
}

func (m *MemoryStore) DeleteCredential(_ context.Context, ownerID, provider string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credentialKey{ownerID, provider}
	if _, ok := m.credentials[key]; !ok {
		return false, nil
	}
	delete(m.credentials, key)
	return true, nil
}

// ListCredentials returns a user's credentials ordered by provider.
func (m *MemoryStore) ListCredentials(_ context.Context, ownerID string) ([]domain.Credential, error) {
	m.mu.RLock()
	res := make([]domain.Credential, 0)
	for key, c := range m.credentials {
		if key.owner == ownerID {
			res = append(res, c)
		}
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		return strings.Compare(res[i].Provider, res[j].Provider) < 0
	})
	return res, nil
}
