package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"aihub/pkg/domain"
	"github.com/alicebob/miniredis/v2"
)

func TestRedisSummaryCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	redis := miniredis.RunT(t)
	inner := NewMemoryStore()
	cache := NewRedisSummaryCache(inner, redis.Addr(), "", time.Minute)

	if _, ok, err := cache.GetSummary(ctx, "thread-1"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}

	if _, err := cache.UpsertSummary(ctx, "thread-1", "Recent conversation context: x", 3); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if redis.Exists("aihub:summary:thread-1") {
		t.Fatalf("upsert must drop the cache entry")
	}

	got, ok, err := cache.GetSummary(ctx, "thread-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Summary != "Recent conversation context: x" || got.MessageCount != 3 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if !redis.Exists("aihub:summary:thread-1") {
		t.Fatalf("expected cache filled on read")
	}
	if ttl := redis.TTL("aihub:summary:thread-1"); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	if _, err := cache.UpsertSummary(ctx, "thread-1", "Recent conversation context: y", 5); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, _, _ = cache.GetSummary(ctx, "thread-1")
	if got.Summary != "Recent conversation context: y" || got.MessageCount != 5 {
		t.Fatalf("cached summary not replaced: %+v", got)
	}

	cache.Invalidate(ctx, "thread-1")
	if redis.Exists("aihub:summary:thread-1") {
		t.Fatalf("expected entry removed")
	}
	if _, ok, _ := cache.GetSummary(ctx, "thread-1"); !ok {
		t.Fatalf("expected fallback to inner store")
	}
	if !redis.Exists("aihub:summary:thread-1") {
		t.Fatalf("expected cache refilled on read")
	}
}

// pausingSummaryStore holds the first GetSummary after the inner read
// until release is closed.
type pausingSummaryStore struct {
	SummaryStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausingSummaryStore) GetSummary(ctx context.Context, threadID string) (domain.ContextSummary, bool, error) {
	summary, ok, err := p.SummaryStore.GetSummary(ctx, threadID)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return summary, ok, err
}

func TestRedisSummaryCacheUpsertDuringMissWins(t *testing.T) {
	ctx := context.Background()
	redis := miniredis.RunT(t)
	inner := NewMemoryStore()
	if _, err := inner.UpsertSummary(ctx, "thread-1", "old", 2); err != nil {
		t.Fatalf("seed: %v", err)
	}
	paused := &pausingSummaryStore{SummaryStore: inner, read: make(chan struct{}), release: make(chan struct{})}
	cache := NewRedisSummaryCache(paused, redis.Addr(), "", time.Minute)

	done := make(chan domain.ContextSummary, 1)
	go func() {
		summary, _, _ := cache.GetSummary(ctx, "thread-1")
		done <- summary
	}()

	<-paused.read
	if _, err := cache.UpsertSummary(ctx, "thread-1", "new", 4); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	close(paused.release)
	if first := <-done; first.Summary != "old" {
		t.Fatalf("in-flight read = %q, want the value it loaded", first.Summary)
	}
	if redis.Exists("aihub:summary:thread-1") {
		t.Fatalf("stale read must not refill the cache after a write")
	}

	got, ok, err := cache.GetSummary(ctx, "thread-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Summary != "new" || got.MessageCount != 4 {
		t.Fatalf("cache serves %q while the store holds %q", got.Summary, "new")
	}
}

func TestRedisSummaryCacheConcurrentWritersLeaveLatest(t *testing.T) {
	ctx := context.Background()
	redis := miniredis.RunT(t)
	inner := NewMemoryStore()
	cache := NewRedisSummaryCache(inner, redis.Addr(), "", time.Minute)

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = cache.UpsertSummary(ctx, "thread-1", "s", n)
			_, _, _ = cache.GetSummary(ctx, "thread-1")
		}(i)
	}
	wg.Wait()

	stored, _, _ := inner.GetSummary(ctx, "thread-1")
	got, _, _ := cache.GetSummary(ctx, "thread-1")
	if got.MessageCount != stored.MessageCount {
		t.Fatalf("cache message count %d, store %d", got.MessageCount, stored.MessageCount)
	}
}

func TestRedisSummaryCacheDegradesWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	redis := miniredis.RunT(t)
	inner := NewMemoryStore()
	cache := NewRedisSummaryCache(inner, redis.Addr(), "", time.Minute)
	redis.Close()

	if _, err := cache.UpsertSummary(ctx, "thread-1", "s", 1); err != nil {
		t.Fatalf("upsert should succeed without redis: %v", err)
	}
	got, ok, err := cache.GetSummary(ctx, "thread-1")
	if err != nil || !ok || got.Summary != "s" {
		t.Fatalf("expected inner store result, got %+v ok=%v err=%v", got, ok, err)
	}
}
