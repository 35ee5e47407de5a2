package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"aihub/pkg/domain"
	"github.com/redis/go-redis/v9"
)

const defaultSummaryCacheTTL = 30 * time.Minute

// KEYS[1] entry, KEYS[2] generation. ARGV[1] generation seen before the
// database read ("" when unset), ARGV[2] payload, ARGV[3] ttl in ms.
var summaryFillScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if not gen then gen = "" end
if gen ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// KEYS[1] entry, KEYS[2] generation. ARGV[1] generation ttl in ms.
var summaryInvalidateScript = redis.NewScript(`
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
redis.call("DEL", KEYS[1])
return 1
`)

// RedisSummaryCache is a read-through cache in front of a SummaryStore.
// Writes go to the inner store and then drop the entry. A miss refills the
// entry only if no write happened since the miss was observed.
// Redis failures degrade to the inner store.
type RedisSummaryCache struct {
	inner  SummaryStore
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSummaryCache builds a Redis-backed summary cache.
func NewRedisSummaryCache(inner SummaryStore, addr, password string, ttl time.Duration) *RedisSummaryCache {
	return NewRedisSummaryCacheWithClient(inner, redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	}), ttl)
}

// NewRedisSummaryCacheWithClient reuses an existing client.
func NewRedisSummaryCacheWithClient(inner SummaryStore, client *redis.Client, ttl time.Duration) *RedisSummaryCache {
	if ttl <= 0 {
		ttl = defaultSummaryCacheTTL
	}
	return &RedisSummaryCache{
		inner:  inner,
		client: client,
		ttl:    ttl,
		prefix: "aihub:summary:",
	}
}

// GetSummary returns the cached summary, loading it from the inner store on a miss.
func (c *RedisSummaryCache) GetSummary(ctx context.Context, threadID string) (domain.ContextSummary, bool, error) {
	gen, cacheable := "", true
	vals, err := c.client.MGet(ctx, c.key(threadID), c.genKey(threadID)).Result()
	if err != nil {
		cacheable = false
		slog.Warn("summary cache read failed", "thread_id", threadID, "err", err)
	} else {
		if raw, ok := vals[0].(string); ok {
			var summary domain.ContextSummary
			if jsonErr := json.Unmarshal([]byte(raw), &summary); jsonErr == nil {
				return summary, true, nil
			}
			slog.Warn("summary cache entry corrupt", "thread_id", threadID)
		}
		gen, _ = vals[1].(string)
	}

	summary, ok, err := c.inner.GetSummary(ctx, threadID)
	if err != nil || !ok {
		return summary, ok, err
	}
	if cacheable {
		c.fill(ctx, gen, summary)
	}
	return summary, true, nil
}

// UpsertSummary writes through to the inner store and drops the cache entry.
func (c *RedisSummaryCache) UpsertSummary(ctx context.Context, threadID, text string, messageCount int) (domain.ContextSummary, error) {
	summary, err := c.inner.UpsertSummary(ctx, threadID, text, messageCount)
	if err != nil {
		return domain.ContextSummary{}, err
	}
	c.Invalidate(ctx, threadID)
	return summary, nil
}

// Invalidate drops the cache entry of a thread and fences off in-flight refills.
func (c *RedisSummaryCache) Invalidate(ctx context.Context, threadID string) {
	keys := []string{c.key(threadID), c.genKey(threadID)}
	if err := summaryInvalidateScript.Run(ctx, c.client, keys, c.ttl.Milliseconds()).Err(); err != nil {
		slog.Warn("summary cache delete failed", "thread_id", threadID, "err", err)
	}
}

func (c *RedisSummaryCache) fill(ctx context.Context, gen string, summary domain.ContextSummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	keys := []string{c.key(summary.ThreadID), c.genKey(summary.ThreadID)}
	if err := summaryFillScript.Run(ctx, c.client, keys, gen, string(raw), c.ttl.Milliseconds()).Err(); err != nil {
		slog.Warn("summary cache write failed", "thread_id", summary.ThreadID, "err", err)
	}
}

func (c *RedisSummaryCache) key(threadID string) string {
	return c.prefix + threadID
}

func (c *RedisSummaryCache) genKey(threadID string) string {
	return c.prefix + threadID + ":gen"
}
