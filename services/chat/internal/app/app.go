package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aihub/pkg/ai"
	"aihub/pkg/domain"
	"aihub/pkg/store"
	"aihub/services/chat/internal/summary"
)

const defaultBroadcastConcurrency = 4

// Config holds runtime dependencies for the core application.
type Config struct {
	Store store.Store
	// Summaries overrides where summaries are read and written (e.g. a Redis
	// cache in front of Store). Defaults to Store.
	Summaries store.SummaryStore
	// Credentials overrides where API keys live (e.g. sealed at rest). Defaults to Store.
	Credentials          store.CredentialStore
	Providers            *ai.Registry
	Tokens               ai.TokenCounter
	BroadcastConcurrency int
}

// App is the core application service wiring together storage, summaries and providers.
type App struct {
	store        store.Store
	summaryStore store.SummaryStore
	summaries    *summary.Service
	credentials  store.CredentialStore
	providers    *ai.Registry
	tokens       ai.TokenCounter
	concurrency  int
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Providers == nil || len(cfg.Providers.Names()) == 0 {
		return nil, errors.New("at least one provider required")
	}
	summaryStore := cfg.Summaries
	if summaryStore == nil {
		summaryStore = cfg.Store
	}
	summaries, err := summary.NewService(summaryStore)
	if err != nil {
		return nil, err
	}
	credentials := cfg.Credentials
	if credentials == nil {
		credentials = cfg.Store
	}
	concurrency := cfg.BroadcastConcurrency
	if concurrency <= 0 {
		concurrency = defaultBroadcastConcurrency
	}
	return &App{
		store:        cfg.Store,
		summaryStore: summaryStore,
		summaries:    summaries,
		credentials:  credentials,
		providers:    cfg.Providers,
		tokens:       cfg.Tokens,
		concurrency:  concurrency,
	}, nil
}

// Providers returns registered provider names in registration order.
func (a *App) Providers() []string {
	return a.providers.Names()
}

func (a *App) lookupProvider(name string) (ai.Provider, error) {
	p, ok := a.providers.Lookup(strings.TrimSpace(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// ownedThread loads a thread and hides threads owned by someone else.
func (a *App) ownedThread(ctx context.Context, user domain.User, threadID string) (domain.Thread, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return domain.Thread{}, ErrThreadNotFound
	}
	thread, ok, err := a.store.GetThread(ctx, threadID)
	if err != nil {
		return domain.Thread{}, fmt.Errorf("load thread: %w", err)
	}
	if !ok || thread.OwnerID != user.ID {
		return domain.Thread{}, ErrThreadNotFound
	}
	return thread, nil
}
