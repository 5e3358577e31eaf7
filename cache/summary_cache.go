package cache

import (
	"context"
	"fmt"
	"time"
)

// SummaryCache caches generated lesson summaries and rate-limits LLM
// calls per pattern key. All misses are soft: without redis the
// summarizer just regenerates or falls back to the template.
type SummaryCache struct {
	redis *RedisClient
}

// NewSummaryCache creates a new summary cache instance
func NewSummaryCache(redis *RedisClient) *SummaryCache {
	return &SummaryCache{
		redis: redis,
	}
}

// GetSummary retrieves a cached summary for a pattern key and digest
// hash. Returns the text and true if found, "" and false otherwise.
func (c *SummaryCache) GetSummary(ctx context.Context, patternKey, digestHash string) (string, bool) {
	if c == nil || c.redis == nil {
		return "", false
	}

	cacheKey := fmt.Sprintf("lesson:summary:%s:%s", patternKey, digestHash)
	var text string

	if err := c.redis.Get(ctx, cacheKey, &text); err != nil {
		return "", false
	}

	return text, text != ""
}

// SetSummary caches a generated summary for a pattern key
func (c *SummaryCache) SetSummary(ctx context.Context, patternKey, digestHash, text string, ttl time.Duration) error {
	if c == nil || c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	cacheKey := fmt.Sprintf("lesson:summary:%s:%s", patternKey, digestHash)
	return c.redis.Set(ctx, cacheKey, text, ttl)
}

// SetCooldown sets a cooldown period for a pattern key to prevent
// excessive LLM calls
func (c *SummaryCache) SetCooldown(ctx context.Context, patternKey string, ttl time.Duration) error {
	if c == nil || c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	cooldownKey := fmt.Sprintf("lesson:cooldown:%s", patternKey)
	return c.redis.Set(ctx, cooldownKey, time.Now().Unix(), ttl)
}

// IsInCooldown checks if a pattern key is in its cooldown period
func (c *SummaryCache) IsInCooldown(ctx context.Context, patternKey string) bool {
	if c == nil || c.redis == nil {
		return false
	}

	cooldownKey := fmt.Sprintf("lesson:cooldown:%s", patternKey)
	var timestamp int64

	if err := c.redis.Get(ctx, cooldownKey, &timestamp); err != nil {
		return false
	}

	return timestamp > 0
}
