package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SentimentLabel classifies the directional tone of a piece of text.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// SentimentTier identifies which classification method produced a result.
// Higher tiers are more expensive and more accurate; a cached result is only
// ever replaced by one of equal or higher tier.
type SentimentTier int

const (
	TierLexical SentimentTier = 1
	TierModel   SentimentTier = 2
)

// String returns the tier's method name as stored in the cache.
func (t SentimentTier) String() string {
	switch t {
	case TierLexical:
		return "lexicon"
	case TierModel:
		return "model"
	default:
		return "unknown"
	}
}

// Sentiment is the classification attached to a document.
type Sentiment struct {
	Label      SentimentLabel `json:"label"`
	Score      float64        `json:"score"`      // -1.0 (bearish) .. +1.0 (bullish)
	Confidence float64        `json:"confidence"` // 0.0 .. 1.0
	Tier       SentimentTier  `json:"tier"`
}

// Document is a retrieved news passage with its provenance and scoring inputs.
// Similarity is per-query and never persisted. Sentiment is nil until the
// document has been enriched.
type Document struct {
	ID          string     `json:"id"`
	ContentHash string     `json:"content_hash"`
	Text        string     `json:"text"`
	Source      string     `json:"source"`
	TrustScore  float64    `json:"trust_score"` // 0.0 .. 1.0, per source domain
	PublishedAt time.Time  `json:"published_at"`
	Sentiment   *Sentiment `json:"sentiment,omitempty"`
	Similarity  float64    `json:"similarity"`
}

// NormalizeText collapses whitespace and lowercases text so that hashing and
// lexicon matching are insensitive to formatting differences.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ContentHash returns the deterministic fingerprint of normalized text,
// used as the sentiment cache key.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}
