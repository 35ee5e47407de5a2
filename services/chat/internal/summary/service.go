package summary

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"aihub/pkg/domain"
	"aihub/pkg/store"
)

// Service keeps one summary per thread up to date.
type Service struct {
	store store.SummaryStore
}

// NewService builds a summary service over s.
func NewService(s store.SummaryStore) (*Service, error) {
	if s == nil {
		return nil, errors.New("summary store is required")
	}
	return &Service{store: s}, nil
}

// Update folds the newest messages into the thread summary and upserts it.
// With no messages it does nothing and reports false.
func (s *Service) Update(ctx context.Context, threadID string, recent []domain.Message) (domain.ContextSummary, bool, error) {
	if len(recent) == 0 {
		return domain.ContextSummary{}, false, nil
	}
	ordered := make([]domain.Message, len(recent))
	copy(ordered, recent)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	text, count := Build(ordered)
	saved, err := s.store.UpsertSummary(ctx, threadID, text, count)
	if err != nil {
		return domain.ContextSummary{}, false, fmt.Errorf("upsert summary: %w", err)
	}
	return saved, true, nil
}

// Get returns the current summary text, or "" when the thread has none yet.
func (s *Service) Get(ctx context.Context, threadID string) (string, error) {
	summary, ok, err := s.store.GetSummary(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("get summary: %w", err)
	}
	if !ok {
		return "", nil
	}
	return summary.Summary, nil
}
