package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"aihub/pkg/domain"
	"aihub/pkg/store"
)

func TestBroadcastIsolatesUnknownProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.saveKey(t, "ChatGPT", "sk-test-123456")

	outcomes, err := f.app.Broadcast(ctx, f.user, BroadcastInput{
		ThreadID:  f.thread.ID,
		Message:   "Compare sorting algorithms",
		Providers: []string{"ChatGPT", "UnknownProvider"},
	})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	ok, bad := outcomes[0], outcomes[1]
	if ok.Provider != "ChatGPT" || !ok.Success || ok.Data == nil {
		t.Fatalf("unexpected ChatGPT outcome: %+v", ok)
	}
	if ok.Data.AssistantMessage.Content != "ChatGPT says hi" {
		t.Fatalf("assistant = %q", ok.Data.AssistantMessage.Content)
	}
	if bad.Provider != "UnknownProvider" || bad.Success || bad.Error == "" || bad.Data != nil {
		t.Fatalf("unexpected UnknownProvider outcome: %+v", bad)
	}

	convs, _ := f.store.ListConversations(ctx, f.thread.ID)
	if len(convs) != 1 || convs[0].Provider != "ChatGPT" || convs[0].Title != "ChatGPT Chat" {
		t.Fatalf("unexpected conversations: %+v", convs)
	}
	if ok.ConversationID != convs[0].ID {
		t.Fatalf("outcome conversation id mismatch")
	}
	msgs, _ := f.store.ListRecentMessages(ctx, f.thread.ID, 15)
	if len(msgs) != 2 {
		t.Fatalf("only the ChatGPT turn should be persisted, got %d messages", len(msgs))
	}
	for _, m := range msgs {
		if m.Provider != "ChatGPT" {
			t.Fatalf("unexpected message provider %q", m.Provider)
		}
	}
}

func TestBroadcastKeepsInputOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		&stubProvider{name: "ChatGPT", delay: 30 * time.Millisecond},
		&stubProvider{name: "Claude", delay: 10 * time.Millisecond},
		&stubProvider{name: "Gemini"},
		&stubProvider{name: "DeepSeek", delay: 20 * time.Millisecond},
	)
	order := []string{"DeepSeek", "Gemini", "ChatGPT", "Claude"}
	for _, name := range order {
		f.saveKey(t, name, "key-for-"+name)
	}

	outcomes, err := f.app.Broadcast(ctx, f.user, BroadcastInput{ThreadID: f.thread.ID, Message: "hello all", Providers: order})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	for i, name := range order {
		if outcomes[i].Provider != name || !outcomes[i].Success {
			t.Fatalf("outcome %d = %+v, want success for %s", i, outcomes[i], name)
		}
		if outcomes[i].Data.AssistantMessage.Content != name+" says hi" {
			t.Fatalf("outcome %d carries another provider's reply: %q", i, outcomes[i].Data.AssistantMessage.Content)
		}
	}
	if msgs, _ := f.store.ListRecentMessages(ctx, f.thread.ID, 100); len(msgs) != 8 {
		t.Fatalf("messages = %d, want 8", len(msgs))
	}
	if _, ok, _ := f.store.GetSummary(ctx, f.thread.ID); !ok {
		t.Fatalf("expected a thread summary after broadcast")
	}
}

func TestBroadcastReusesConversations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := BroadcastInput{ThreadID: f.thread.ID, Message: "hi", Providers: []string{"Claude", "Gemini"}}

	first, err := f.app.Broadcast(ctx, f.user, in)
	if err != nil {
		t.Fatalf("first broadcast: %v", err)
	}
	second, err := f.app.Broadcast(ctx, f.user, in)
	if err != nil {
		t.Fatalf("second broadcast: %v", err)
	}
	for i := range first {
		if first[i].ConversationID == "" || first[i].ConversationID != second[i].ConversationID {
			t.Fatalf("conversation not reused for %s", first[i].Provider)
		}
	}
	convs, _ := f.store.ListConversations(ctx, f.thread.ID)
	if len(convs) != 2 {
		t.Fatalf("conversations = %d, want 2", len(convs))
	}
	// No keys stored: every target records the placeholder reply.
	if got := second[0].Data.AssistantMessage.Content; got != MissingKeyReply("Claude") {
		t.Fatalf("assistant = %q", got)
	}
}

type flakyCredentials struct {
	store.CredentialStore
	failFor string
}

func (c flakyCredentials) GetCredential(ctx context.Context, ownerID, provider string) (domain.Credential, bool, error) {
	if provider == c.failFor {
		return domain.Credential{}, false, errors.New("credential backend unavailable")
	}
	return c.CredentialStore.GetCredential(ctx, ownerID, provider)
}

func TestBroadcastTargetErrorDoesNotAffectOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reg := f.app.providers
	a, err := New(Config{
		Store:       f.store,
		Providers:   reg,
		Credentials: flakyCredentials{CredentialStore: f.store, failFor: "Claude"},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	outcomes, err := a.Broadcast(ctx, f.user, BroadcastInput{ThreadID: f.thread.ID, Message: "hi", Providers: []string{"ChatGPT", "Claude", "DeepSeek"}})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if !outcomes[0].Success || !outcomes[2].Success {
		t.Fatalf("healthy targets must succeed: %+v", outcomes)
	}
	if outcomes[1].Success || outcomes[1].Error == "" {
		t.Fatalf("Claude target should fail: %+v", outcomes[1])
	}
}

func TestBroadcastCallerErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		in   BroadcastInput
		want error
	}{
		{"empty message", BroadcastInput{ThreadID: f.thread.ID, Message: "", Providers: []string{"ChatGPT"}}, ErrEmptyMessage},
		{"no providers", BroadcastInput{ThreadID: f.thread.ID, Message: "hi"}, ErrNoProviders},
		{"duplicate provider", BroadcastInput{ThreadID: f.thread.ID, Message: "hi", Providers: []string{"ChatGPT", "Claude", "ChatGPT"}}, ErrDuplicateProvider},
		{"missing thread", BroadcastInput{ThreadID: "missing", Message: "hi", Providers: []string{"ChatGPT"}}, ErrThreadNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.app.Broadcast(ctx, f.user, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if convs, _ := f.store.ListConversations(ctx, f.thread.ID); len(convs) != 0 {
		t.Fatalf("caller errors must not create conversations")
	}
}
