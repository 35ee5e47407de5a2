package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"aihub/pkg/domain"
)

func TestMemoryStoreRecentMessagesAcrossConversations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		conv := "conv-a"
		if i%2 == 1 {
			conv = "conv-b"
		}
		msg := domain.Message{
			ID:             string(rune('a' + i)),
			ThreadID:       "thread-1",
			ConversationID: conv,
			Content:        string(rune('a' + i)),
			Role:           domain.RoleUser,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = s.AppendMessage(ctx, domain.Message{ID: "other", ThreadID: "thread-2", Role: domain.RoleUser, CreatedAt: base})

	msgs, err := s.ListRecentMessages(ctx, "thread-1", 15)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(msgs) != 15 {
		t.Fatalf("len = %d, want 15", len(msgs))
	}
	if msgs[0].Content != "f" || msgs[14].Content != "t" {
		t.Fatalf("unexpected window: first=%q last=%q", msgs[0].Content, msgs[14].Content)
	}

	convMsgs, err := s.ListConversationMessages(ctx, "conv-b", 0)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	if len(convMsgs) != 10 || convMsgs[0].Content != "b" {
		t.Fatalf("unexpected conversation messages: %d", len(convMsgs))
	}
}

func TestMemoryStoreEqualTimestampsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	at := time.Now().UTC()
	for _, id := range []string{"1", "2", "3"} {
		_ = s.AppendMessage(ctx, domain.Message{ID: id, ThreadID: "t", Role: domain.RoleUser, CreatedAt: at})
	}
	msgs, _ := s.ListRecentMessages(ctx, "t", 15)
	if len(msgs) != 3 || msgs[0].ID != "1" || msgs[2].ID != "3" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
}

func TestMemoryStoreRejectsUnknownRole(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, role := range []domain.Role{"", "tool", "User"} {
		err := s.AppendMessage(ctx, domain.Message{ID: "m", ThreadID: "t", Role: role, Content: "x"})
		if !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("role %q: err = %v, want ErrInvalidRole", role, err)
		}
	}
	if msgs, _ := s.ListRecentMessages(ctx, "t", 15); len(msgs) != 0 {
		t.Fatalf("rejected messages must not be stored, got %d", len(msgs))
	}
	if err := s.AppendMessage(ctx, domain.Message{ID: "m", ThreadID: "t", Role: domain.RoleSystem}); err != nil {
		t.Fatalf("system role: %v", err)
	}
}

func TestMemoryStoreConversationMessagesKeepNewestWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		_ = s.AppendMessage(ctx, domain.Message{
			ID:             string(rune('a' + i)),
			ThreadID:       "t",
			ConversationID: "c",
			Role:           domain.RoleUser,
			Content:        string(rune('a' + i)),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}
	msgs, err := s.ListConversationMessages(ctx, "c", 3)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "d" || msgs[2].Content != "f" {
		t.Fatalf("want newest three oldest first, got %+v", msgs)
	}
	recent, _ := s.ListRecentMessages(ctx, "t", 3)
	for i := range msgs {
		if msgs[i].ID != recent[i].ID {
			t.Fatalf("conversation and thread windows disagree at %d: %q vs %q", i, msgs[i].ID, recent[i].ID)
		}
	}
}

func TestMemoryStoreUpsertSummaryKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	first, err := s.UpsertSummary(ctx, "thread-1", "one", 2)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := s.UpsertSummary(ctx, "thread-1", "two", 4)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID != second.ID || !first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("upsert must keep id and created_at")
	}
	got, ok, _ := s.GetSummary(ctx, "thread-1")
	if !ok || got.Summary != "two" || got.MessageCount != 4 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestMemoryStoreThreadsAndConversations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	_ = s.CreateThread(ctx, domain.Thread{ID: "t1", OwnerID: "u1", Title: "a", CreatedAt: now, UpdatedAt: now})
	_ = s.CreateThread(ctx, domain.Thread{ID: "t2", OwnerID: "u1", Title: "b", CreatedAt: now, UpdatedAt: now.Add(time.Second)})
	_ = s.CreateThread(ctx, domain.Thread{ID: "t3", OwnerID: "u2", Title: "c", CreatedAt: now, UpdatedAt: now})

	threads, _ := s.ListThreadsByOwner(ctx, "u1", 0)
	if len(threads) != 2 || threads[0].ID != "t2" {
		t.Fatalf("unexpected threads: %+v", threads)
	}
	if err := s.TouchThread(ctx, "t1", now.Add(time.Minute)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	threads, _ = s.ListThreadsByOwner(ctx, "u1", 1)
	if len(threads) != 1 || threads[0].ID != "t1" {
		t.Fatalf("touched thread should sort first: %+v", threads)
	}

	_ = s.CreateConversation(ctx, domain.Conversation{ID: "c1", ThreadID: "t1", Provider: "Claude", Title: "Claude Chat"})
	_ = s.CreateConversation(ctx, domain.Conversation{ID: "c2", ThreadID: "t1", Provider: "ChatGPT", Title: "ChatGPT Chat"})
	conv, ok, _ := s.FindConversationByProvider(ctx, "t1", "ChatGPT")
	if !ok || conv.ID != "c2" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if _, ok, _ := s.FindConversationByProvider(ctx, "t2", "ChatGPT"); ok {
		t.Fatalf("conversation must be scoped to its thread")
	}
	_ = s.AppendMessage(ctx, domain.Message{ID: "m1", ThreadID: "t1", ConversationID: "c1", Role: domain.RoleUser})
	_, _ = s.UpsertSummary(ctx, "t1", "x", 1)

	if err := s.DeleteThread(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetThread(ctx, "t1"); ok {
		t.Fatalf("thread should be gone")
	}
	if convs, _ := s.ListConversations(ctx, "t1"); len(convs) != 0 {
		t.Fatalf("conversations should be gone")
	}
	if msgs, _ := s.ListRecentMessages(ctx, "t1", 15); len(msgs) != 0 {
		t.Fatalf("messages should be gone")
	}
	if _, ok, _ := s.GetSummary(ctx, "t1"); ok {
		t.Fatalf("summary should be gone")
	}
	if _, ok, _ := s.GetThread(ctx, "t2"); !ok {
		t.Fatalf("other thread must survive")
	}
}

func TestMemoryStoreCredentials(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	created := time.Now().UTC().Add(-time.Hour)
	_ = s.SaveCredential(ctx, domain.Credential{OwnerID: "u1", Provider: "Gemini", Secret: "g", CreatedAt: created})
	_ = s.SaveCredential(ctx, domain.Credential{OwnerID: "u1", Provider: "ChatGPT", Secret: "c1"})
	_ = s.SaveCredential(ctx, domain.Credential{OwnerID: "u1", Provider: "Gemini", Secret: "g2", CreatedAt: time.Now().UTC()})

	cred, ok, _ := s.GetCredential(ctx, "u1", "Gemini")
	if !ok || cred.Secret != "g2" || !cred.CreatedAt.Equal(created) {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	list, _ := s.ListCredentials(ctx, "u1")
	if len(list) != 2 || list[0].Provider != "ChatGPT" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if deleted, _ := s.DeleteCredential(ctx, "u1", "Gemini"); !deleted {
		t.Fatalf("expected delete")
	}
	if deleted, _ := s.DeleteCredential(ctx, "u1", "Gemini"); deleted {
		t.Fatalf("second delete should report false")
	}
}
