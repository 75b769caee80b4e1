// Package retrieval ranks stored research documents against a query by
// blending vector similarity, sentiment confidence, and source trust.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"sectorpulse/internal/llm"
	"sectorpulse/internal/sentiment"
	"sectorpulse/pkg/models"
)

// queryPrefix is prepended to queries before embedding. Passage embeddings
// are stored without it; asymmetric embedding models expect the marker on
// the query side only.
const queryPrefix = "query: "

// Index is the vector search surface the engine reads from.
type Index interface {
	Search(ctx context.Context, query []float32, limit int, floor float64) ([]models.Document, error)
}

// Options tune candidate recall and score blending. Zero values fall back
// to the defaults.
type Options struct {
	CandidateLimit  int     // vector search breadth
	SimilarityFloor float64 // candidates below this cosine similarity are dropped
	SelectLimit     int     // documents kept after ranking

	SimilarityWeight float64
	SentimentWeight  float64
	TrustWeight      float64
}

// DefaultOptions returns the standard recall and blend settings.
func DefaultOptions() Options {
	return Options{
		CandidateLimit:   100,
		SimilarityFloor:  0.5,
		SelectLimit:      10,
		SimilarityWeight: 0.5,
		SentimentWeight:  0.3,
		TrustWeight:      0.2,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = d.CandidateLimit
	}
	if o.SimilarityFloor <= 0 {
		o.SimilarityFloor = d.SimilarityFloor
	}
	if o.SelectLimit <= 0 {
		o.SelectLimit = d.SelectLimit
	}
	if o.SimilarityWeight == 0 && o.SentimentWeight == 0 && o.TrustWeight == 0 {
		o.SimilarityWeight = d.SimilarityWeight
		o.SentimentWeight = d.SentimentWeight
		o.TrustWeight = d.TrustWeight
	}
	return o
}

// Engine embeds queries, recalls candidates from the index, enriches them
// with sentiment, and returns the top ranked slice with aggregates.
type Engine struct {
	embedder llm.Embedder
	index    Index
	pipeline *sentiment.Pipeline
	opts     Options
}

// NewEngine creates a retrieval engine.
func NewEngine(embedder llm.Embedder, index Index, pipeline *sentiment.Pipeline, opts Options) *Engine {
	return &Engine{
		embedder: embedder,
		index:    index,
		pipeline: pipeline,
		opts:     opts.withDefaults(),
	}
}

// Retrieve runs the full rank pipeline for query. An empty index yields an
// empty result, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string) (*models.RetrievalResult, error) {
	vec, err := e.embedder.Embed(ctx, queryPrefix+query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	candidates, err := e.index.Search(ctx, vec, e.opts.CandidateLimit, e.opts.SimilarityFloor)
	if err != nil {
		return nil, fmt.Errorf("retrieval: index search: %w", err)
	}

	result := &models.RetrievalResult{
		Query:     query,
		Documents: []models.DocumentView{},
		Stats:     models.AggregateStats{LabelCounts: map[models.SentimentLabel]int{}},
	}
	if len(candidates) == 0 {
		return result, nil
	}

	e.enrich(ctx, candidates)

	ranked := make([]scoredDoc, 0, len(candidates))
	for _, doc := range candidates {
		ranked = append(ranked, scoredDoc{
			doc:   doc,
			score: e.combinedScore(doc),
		})
	}
	sortRanked(ranked)

	if len(ranked) > e.opts.SelectLimit {
		ranked = ranked[:e.opts.SelectLimit]
	}

	for _, r := range ranked {
		result.Documents = append(result.Documents, models.DocumentView{
			ID:            r.doc.ID,
			Preview:       preview(r.doc.Text),
			Source:        r.doc.Source,
			Similarity:    r.doc.Similarity,
			TrustScore:    r.doc.TrustScore,
			CombinedScore: r.score,
			Sentiment:     r.doc.Sentiment,
		})
	}
	result.TotalSelected = len(result.Documents)
	result.Stats = aggregate(ranked)
	return result, nil
}

// enrich attaches sentiment to candidates that lack it. Enrichment is lazy:
// only recalled candidates are classified, never the whole index.
func (e *Engine) enrich(ctx context.Context, docs []models.Document) {
	if e.pipeline == nil {
		return
	}
	pending := make([]*models.Document, 0, len(docs))
	texts := make([]string, 0, len(docs))
	for i := range docs {
		if docs[i].Sentiment == nil {
			pending = append(pending, &docs[i])
			texts = append(texts, docs[i].Text)
		}
	}
	if len(pending) == 0 {
		return
	}
	results := e.pipeline.ClassifyBatch(ctx, texts)
	for i, s := range results {
		s := s
		pending[i].Sentiment = &s
	}
}

func (e *Engine) combinedScore(doc models.Document) float64 {
	var sentConf float64
	if doc.Sentiment != nil {
		sentConf = doc.Sentiment.Confidence
	}
	return e.opts.SimilarityWeight*doc.Similarity +
		e.opts.SentimentWeight*sentConf +
		e.opts.TrustWeight*doc.TrustScore
}

type scoredDoc struct {
	doc   models.Document
	score float64
}

// sortRanked orders by combined score, breaking ties on similarity and then
// recency so equal-scored runs rank deterministically.
func sortRanked(ranked []scoredDoc) {
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.doc.Similarity != b.doc.Similarity {
			return a.doc.Similarity > b.doc.Similarity
		}
		return a.doc.PublishedAt.After(b.doc.PublishedAt)
	})
}

// aggregate averages the sentiment of the selected documents. Means cover
// only the documents that carry sentiment.
func aggregate(ranked []scoredDoc) models.AggregateStats {
	stats := models.AggregateStats{LabelCounts: map[models.SentimentLabel]int{}}
	var scoreSum, confSum float64
	scored := 0
	for _, r := range ranked {
		if r.doc.Sentiment == nil {
			continue
		}
		stats.LabelCounts[r.doc.Sentiment.Label]++
		scoreSum += r.doc.Sentiment.Score
		confSum += r.doc.Sentiment.Confidence
		scored++
	}
	if scored > 0 {
		stats.MeanScore = scoreSum / float64(scored)
		stats.MeanConfidence = confSum / float64(scored)
	}
	return stats
}

const previewLen = 200

// preview truncates on a rune boundary so multi-byte text stays valid UTF-8.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLen {
		return text
	}
	return string(runes[:previewLen]) + "…"
}
