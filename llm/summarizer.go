package llm

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// Summary provenance markers stored on the lesson record.
const (
	SourceLLM      = "llm"
	SourceTemplate = "template"
)

// ResultCache is the cache the summarizer consumes: completed summaries
// keyed by pattern and digest hash, plus a per-pattern cooldown that
// rate-limits calls. The redis-backed cache satisfies it; a nil cache
// disables both.
type ResultCache interface {
	GetSummary(ctx context.Context, patternKey, digestHash string) (string, bool)
	SetSummary(ctx context.Context, patternKey, digestHash, text string, ttl time.Duration) error
	SetCooldown(ctx context.Context, patternKey string, ttl time.Duration) error
	IsInCooldown(ctx context.Context, patternKey string) bool
}

// Summarizer produces lesson summaries, preferring the LLM and falling
// back to the deterministic template. Failures are logged and absorbed;
// a summary always comes back.
type Summarizer struct {
	client      *Client
	cache       ResultCache
	maxTokens   int
	temperature float64
	cooldown    time.Duration
	cacheTTL    time.Duration
}

// NewSummarizer creates a summarizer around an LLM client. A nil client
// yields template summaries only.
func NewSummarizer(client *Client, cache ResultCache, maxTokens int, temperature float64, cooldown time.Duration) *Summarizer {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	return &Summarizer{
		client:      client,
		cache:       cache,
		maxTokens:   maxTokens,
		temperature: temperature,
		cooldown:    cooldown,
		cacheTTL:    24 * time.Hour,
	}
}

// Summarize returns the summary text for one lesson digest and the
// source that produced it (llm or template).
func (s *Summarizer) Summarize(ctx context.Context, d LessonDigest) (string, string) {
	if s == nil || s.client == nil {
		return TemplateLessonSummary(d), SourceTemplate
	}

	hash := DigestHash(d)
	if s.cache != nil {
		if text, ok := s.cache.GetSummary(ctx, d.PatternKey, hash); ok {
			return text, SourceLLM
		}
		if s.cache.IsInCooldown(ctx, d.PatternKey) {
			return TemplateLessonSummary(d), SourceTemplate
		}
	}

	text, err := s.client.Generate(ctx, FormatLessonPrompt(d), s.maxTokens, s.temperature)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Printf("⚠️  LLM summary failed for %s: %v (using template)", d.PatternKey, err)
		if s.cache != nil {
			_ = s.cache.SetCooldown(ctx, d.PatternKey, s.cooldown)
		}
		return TemplateLessonSummary(d), SourceTemplate
	}

	text = strings.TrimSpace(text)
	if s.cache != nil {
		_ = s.cache.SetSummary(ctx, d.PatternKey, hash, text, s.cacheTTL)
		_ = s.cache.SetCooldown(ctx, d.PatternKey, s.cooldown)
	}
	return text, SourceLLM
}

// DigestHash creates a short hash of the digest to detect whether the
// underlying statistics changed since the last summary
func DigestHash(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf("%x", hash[:8]) // Use first 8 bytes for shorter hash
}
