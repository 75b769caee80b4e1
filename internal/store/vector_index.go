package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"sectorpulse/pkg/models"
)

// VectorIndex is the document index the retrieval engine searches. Documents
// are stored with their embedding; search is an exact cosine scan, which is
// plenty at single-node corpus sizes.
type VectorIndex struct {
	db *sql.DB
}

// VectorIndex returns the document index view of the store.
func (s *Store) VectorIndex() *VectorIndex {
	return &VectorIndex{db: s.db}
}

// Upsert stores or replaces a document and its embedding. Used by the
// ingestion jobs that populate the index; the orchestration core only reads.
func (v *VectorIndex) Upsert(ctx context.Context, doc models.Document, embedding []float32) error {
	emb, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("vector index: encode embedding: %w", err)
	}
	if doc.ContentHash == "" {
		doc.ContentHash = models.ContentHash(doc.Text)
	}
	_, err = v.db.ExecContext(ctx, `
		INSERT INTO documents (id, content_hash, text, source, trust_score, published_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_hash = excluded.content_hash,
			text = excluded.text,
			source = excluded.source,
			trust_score = excluded.trust_score,
			published_at = excluded.published_at,
			embedding = excluded.embedding`,
		doc.ID, doc.ContentHash, doc.Text, doc.Source, doc.TrustScore,
		doc.PublishedAt.Unix(), string(emb))
	if err != nil {
		return fmt.Errorf("vector index: upsert %s: %w", doc.ID, err)
	}
	return nil
}

// Search returns up to limit documents with cosine similarity ≥ floor
// against the query vector, ranked by similarity descending. Documents come
// back without sentiment; enrichment is the retrieval engine's job.
func (v *VectorIndex) Search(ctx context.Context, query []float32, limit int, floor float64) ([]models.Document, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := v.db.QueryContext(ctx,
		`SELECT id, content_hash, text, source, trust_score, published_at, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("vector index: search: %w", err)
	}
	defer rows.Close()

	var results []models.Document
	for rows.Next() {
		var (
			doc       models.Document
			published int64
			embJSON   string
		)
		if err := rows.Scan(&doc.ID, &doc.ContentHash, &doc.Text, &doc.Source,
			&doc.TrustScore, &published, &embJSON); err != nil {
			return nil, fmt.Errorf("vector index: scan: %w", err)
		}

		var embedding []float32
		if err := json.Unmarshal([]byte(embJSON), &embedding); err != nil {
			continue // unreadable embedding rows are skipped, not fatal
		}

		sim := CosineSimilarity(query, embedding)
		if sim < floor {
			continue
		}
		doc.PublishedAt = time.Unix(published, 0).UTC()
		doc.Similarity = sim
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector index: iterate: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("vector index: count: %w", err)
	}
	return n, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
