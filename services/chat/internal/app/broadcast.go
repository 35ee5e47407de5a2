package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aihub/internal/util"
	"aihub/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// BroadcastInput sends one message to several providers of a thread.
type BroadcastInput struct {
	ThreadID  string
	Message   string
	Providers []string
}

// BroadcastOutcome is the independent result of one broadcast target.
type BroadcastOutcome struct {
	Provider       string      `json:"provider"`
	Success        bool        `json:"success"`
	ConversationID string      `json:"conversationId,omitempty"`
	Data           *TurnResult `json:"data,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Broadcast fans a message out to one provider-bound sub-conversation per
// provider. Targets run concurrently; outcomes keep the input order and a
// failing target never affects the others.
func (a *App) Broadcast(ctx context.Context, user domain.User, in BroadcastInput) ([]BroadcastOutcome, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if len(in.Providers) == 0 {
		return nil, ErrNoProviders
	}
	seen := make(map[string]struct{}, len(in.Providers))
	names := make([]string, len(in.Providers))
	for i, raw := range in.Providers {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, fmt.Errorf("%w: empty provider name", ErrInvalidInput)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateProvider, name)
		}
		seen[name] = struct{}{}
		names[i] = name
	}
	thread, err := a.ownedThread(ctx, user, in.ThreadID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outcomes := make([]BroadcastOutcome, len(names))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, name := range names {
		g.Go(func() error {
			outcomes[i] = a.broadcastTarget(ctx, user, thread, name, in.Message)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
	}
	util.LoggerFromContext(ctx).Info("broadcast completed",
		"thread_id", thread.ID,
		"targets", len(outcomes),
		"succeeded", succeeded,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcomes, nil
}

func (a *App) broadcastTarget(ctx context.Context, user domain.User, thread domain.Thread, name, message string) (outcome BroadcastOutcome) {
	outcome.Provider = name
	logger := util.LoggerFromContext(ctx).With("thread_id", thread.ID, "provider", name)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("broadcast target panicked", "panic", r)
			outcome = BroadcastOutcome{Provider: name, ConversationID: outcome.ConversationID, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	provider, err := a.lookupProvider(name)
	if err != nil {
		logger.Warn("broadcast target rejected", "err", err)
		outcome.Error = err.Error()
		return outcome
	}
	conversation, err := a.ensureConversation(ctx, thread, provider.Name())
	if err != nil {
		logger.Error("broadcast target failed", "err", err)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.ConversationID = conversation.ID
	result, err := a.runTurn(ctx, user, thread, conversation.ID, provider, message)
	if err != nil {
		logger.Error("broadcast target failed", "conversation_id", conversation.ID, "err", err)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Success = true
	outcome.Data = &result
	return outcome
}

// ensureConversation returns the thread's first sub-conversation bound to
// provider, creating "{provider} Chat" when there is none.
func (a *App) ensureConversation(ctx context.Context, thread domain.Thread, provider string) (domain.Conversation, error) {
	existing, ok, err := a.store.FindConversationByProvider(ctx, thread.ID, provider)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("find conversation: %w", err)
	}
	if ok {
		return existing, nil
	}
	now := time.Now().UTC()
	conversation := domain.Conversation{
		ID:        util.NewID(),
		ThreadID:  thread.ID,
		Provider:  provider,
		Title:     provider + " Chat",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateConversation(ctx, conversation); err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}
