package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aihub/internal/util"
	"aihub/pkg/ai"
	"aihub/pkg/domain"
	"aihub/services/chat/internal/summary"
)

// TurnInput is one user message addressed to one provider.
type TurnInput struct {
	ThreadID string
	// ConversationID optionally targets a provider-bound sub-conversation of the thread.
	ConversationID string
	// Provider defaults to the thread's bound provider when empty.
	Provider string
	Message  string
}

// TurnResult holds both messages persisted by a turn.
type TurnResult struct {
	UserMessage      domain.Message `json:"userMessage"`
	AssistantMessage domain.Message `json:"assistantMessage"`
}

// MissingKeyReply is the assistant reply recorded when the user has no API key for provider.
func MissingKeyReply(provider string) string {
	return fmt.Sprintf("I'm %s, but I need an API key to respond. Please add your %s API key in Settings to start chatting!", provider, provider)
}

// HandleTurn persists the user message, refreshes the thread summary, calls the
// provider and persists its reply. Caller errors are reported before anything is written.
func (a *App) HandleTurn(ctx context.Context, user domain.User, in TurnInput) (TurnResult, error) {
	if strings.TrimSpace(in.Message) == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	thread, err := a.ownedThread(ctx, user, in.ThreadID)
	if err != nil {
		return TurnResult{}, err
	}
	name := strings.TrimSpace(in.Provider)
	if name == "" {
		name = thread.Provider
	}
	provider, err := a.lookupProvider(name)
	if err != nil {
		return TurnResult{}, err
	}

	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID != "" {
		conversation, ok, err := a.store.GetConversation(ctx, conversationID)
		if err != nil {
			return TurnResult{}, fmt.Errorf("load conversation: %w", err)
		}
		if !ok || conversation.ThreadID != thread.ID {
			return TurnResult{}, ErrConversationNotFound
		}
		if conversation.Provider != provider.Name() {
			return TurnResult{}, fmt.Errorf("%w: conversation is bound to %s", ErrInvalidInput, conversation.Provider)
		}
	}
	return a.runTurn(ctx, user, thread, conversationID, provider, in.Message)
}

// runTurn executes the sequential turn steps. Each step's output feeds the next.
func (a *App) runTurn(ctx context.Context, user domain.User, thread domain.Thread, conversationID string, provider ai.Provider, text string) (TurnResult, error) {
	name := provider.Name()
	logger := util.LoggerFromContext(ctx).With("thread_id", thread.ID, "provider", name)
	start := time.Now()

	userMsg := domain.Message{
		ID:             util.NewID(),
		ThreadID:       thread.ID,
		ConversationID: conversationID,
		Provider:       name,
		Content:        text,
		Role:           domain.RoleUser,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.store.AppendMessage(ctx, userMsg); err != nil {
		return TurnResult{}, fmt.Errorf("save user message: %w", err)
	}

	recent, err := a.store.ListRecentMessages(ctx, thread.ID, summary.Window)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load recent messages: %w", err)
	}
	if _, _, err := a.summaries.Update(ctx, thread.ID, recent); err != nil {
		return TurnResult{}, err
	}
	prior, err := a.summaries.Get(ctx, thread.ID)
	if err != nil {
		return TurnResult{}, err
	}

	cred, hasKey, err := a.credentials.GetCredential(ctx, user.ID, name)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load api key: %w", err)
	}
	hasKey = hasKey && strings.TrimSpace(cred.Secret) != ""

	var (
		result       ai.Result
		promptTokens int
	)
	if hasKey {
		req := ai.Request{Message: text, APIKey: cred.Secret, PriorContext: prior}
		if a.tokens != nil {
			promptTokens = a.tokens.CountTokens(req.Prompt())
		}
		result = provider.Send(ctx, req)
	} else {
		result = ai.Result{Text: MissingKeyReply(name)}
	}

	assistantMsg := domain.Message{
		ID:             util.NewID(),
		ThreadID:       thread.ID,
		ConversationID: conversationID,
		Provider:       name,
		Content:        result.Render(),
		Role:           domain.RoleAssistant,
		Failure:        failureTag(result),
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.store.AppendMessage(ctx, assistantMsg); err != nil {
		return TurnResult{}, fmt.Errorf("save assistant message: %w", err)
	}

	doneAt := time.Now().UTC()
	if conversationID != "" {
		if err := a.store.TouchConversation(ctx, conversationID, doneAt); err != nil {
			return TurnResult{}, fmt.Errorf("touch conversation: %w", err)
		}
	}
	if err := a.store.TouchThread(ctx, thread.ID, doneAt); err != nil {
		return TurnResult{}, fmt.Errorf("touch thread: %w", err)
	}

	attrs := []any{
		"has_key", hasKey,
		"prompt_tokens", promptTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if result.Failure != nil {
		logger.Warn("turn completed with provider failure", append(attrs, "failure_kind", string(result.Failure.Kind), "status_code", result.Failure.StatusCode)...)
	} else {
		logger.Info("turn completed", attrs...)
	}
	return TurnResult{UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

func failureTag(result ai.Result) *domain.MessageFailure {
	if result.Failure == nil {
		return nil
	}
	return &domain.MessageFailure{
		Kind:       string(result.Failure.Kind),
		Detail:     result.Failure.Detail,
		StatusCode: result.Failure.StatusCode,
	}
}
