package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aihub/internal/util"
	"aihub/pkg/domain"
)

const (
	defaultThreadTitle = "New Chat"
	maxTitleRunes      = 200
)

// CreateThreadInput creates a thread, optionally bound to one provider.
type CreateThreadInput struct {
	Title    string
	Provider string
}

// CreateThread creates a thread owned by user.
func (a *App) CreateThread(ctx context.Context, user domain.User, in CreateThreadInput) (domain.Thread, error) {
	if strings.TrimSpace(user.ID) == "" {
		return domain.Thread{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	provider := strings.TrimSpace(in.Provider)
	if provider != "" {
		if _, err := a.lookupProvider(provider); err != nil {
			return domain.Thread{}, err
		}
	}
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "" && provider != "":
		title = provider + " Chat"
	case title == "":
		title = defaultThreadTitle
	}
	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes])
	}
	now := time.Now().UTC()
	thread := domain.Thread{
		ID:        util.NewID(),
		OwnerID:   user.ID,
		Title:     title,
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateThread(ctx, thread); err != nil {
		return domain.Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

// GetThread returns one of the user's threads.
func (a *App) GetThread(ctx context.Context, user domain.User, threadID string) (domain.Thread, error) {
	return a.ownedThread(ctx, user, threadID)
}

// ListThreads lists the user's threads, most recently active first.
func (a *App) ListThreads(ctx context.Context, user domain.User, limit int) ([]domain.Thread, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	items, err := a.store.ListThreadsByOwner(ctx, user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return items, nil
}

// DeleteThread removes a thread with its conversations, messages and summary.
func (a *App) DeleteThread(ctx context.Context, user domain.User, threadID string) error {
	thread, err := a.ownedThread(ctx, user, threadID)
	if err != nil {
		return err
	}
	if err := a.store.DeleteThread(ctx, thread.ID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if inv, ok := a.summaryStore.(interface {
		Invalidate(ctx context.Context, threadID string)
	}); ok {
		inv.Invalidate(ctx, thread.ID)
	}
	return nil
}

// ListMessages returns the newest messages of a thread in chronological order.
func (a *App) ListMessages(ctx context.Context, user domain.User, threadID string, limit int) ([]domain.Message, error) {
	thread, err := a.ownedThread(ctx, user, threadID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	items, err := a.store.ListRecentMessages(ctx, thread.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return items, nil
}

// ListConversations returns the provider-bound sub-conversations of a thread.
func (a *App) ListConversations(ctx context.Context, user domain.User, threadID string) ([]domain.Conversation, error) {
	thread, err := a.ownedThread(ctx, user, threadID)
	if err != nil {
		return nil, err
	}
	items, err := a.store.ListConversations(ctx, thread.ID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return items, nil
}

// ListConversationMessages returns one sub-conversation's messages in chronological order.
func (a *App) ListConversationMessages(ctx context.Context, user domain.User, threadID, conversationID string, limit int) ([]domain.Message, error) {
	thread, err := a.ownedThread(ctx, user, threadID)
	if err != nil {
		return nil, err
	}
	conversation, ok, err := a.store.GetConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !ok || conversation.ThreadID != thread.ID {
		return nil, ErrConversationNotFound
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	items, err := a.store.ListConversationMessages(ctx, conversation.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	return items, nil
}

// Summary returns the thread's context summary text, "" when none exists yet.
func (a *App) Summary(ctx context.Context, user domain.User, threadID string) (string, error) {
	thread, err := a.ownedThread(ctx, user, threadID)
	if err != nil {
		return "", err
	}
	return a.summaries.Get(ctx, thread.ID)
}
