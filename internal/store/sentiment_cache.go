package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sectorpulse/pkg/models"
)

// SentimentCache is the durable sentiment.CacheStore implementation.
type SentimentCache struct {
	db *sql.DB
}

// SentimentCache returns the sentiment cache view of the store.
func (s *Store) SentimentCache() *SentimentCache {
	return &SentimentCache{db: s.db}
}

// Get returns the cached sentiment for a content hash.
func (c *SentimentCache) Get(ctx context.Context, hash string) (models.Sentiment, bool, error) {
	var (
		out  models.Sentiment
		tier int
	)
	row := c.db.QueryRowContext(ctx,
		`SELECT label, score, confidence, tier FROM sentiment_cache WHERE content_hash = ?`, hash)
	err := row.Scan(&out.Label, &out.Score, &out.Confidence, &tier)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sentiment{}, false, nil
	}
	if err != nil {
		return models.Sentiment{}, false, fmt.Errorf("sentiment cache get: %w", err)
	}
	out.Tier = models.SentimentTier(tier)
	return out, true, nil
}

// Upsert writes s under hash with upgrade-only semantics: the existing row
// survives when it has a higher tier, or the same tier with strictly higher
// confidence. The conditional update runs inside a single statement, so
// concurrent writers for the same key converge on the strongest result.
func (c *SentimentCache) Upsert(ctx context.Context, hash string, s models.Sentiment) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sentiment_cache (content_hash, label, score, confidence, tier)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			label = excluded.label,
			score = excluded.score,
			confidence = excluded.confidence,
			tier = excluded.tier
		WHERE excluded.tier > sentiment_cache.tier
		   OR (excluded.tier = sentiment_cache.tier
		       AND excluded.confidence >= sentiment_cache.confidence)`,
		hash, string(s.Label), s.Score, s.Confidence, int(s.Tier))
	if err != nil {
		return fmt.Errorf("sentiment cache upsert: %w", err)
	}
	return nil
}
