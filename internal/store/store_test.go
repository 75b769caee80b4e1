package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"sectorpulse/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSentimentCacheRoundTrip(t *testing.T) {
	cache := openTestStore(t).SentimentCache()
	ctx := context.Background()

	hash := models.ContentHash("chip demand rises")
	want := models.Sentiment{
		Label: models.SentimentPositive, Score: 0.6, Confidence: 0.4, Tier: models.TierLexical,
	}

	if _, ok, err := cache.Get(ctx, hash); err != nil || ok {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}
	if err := cache.Upsert(ctx, hash, want); err != nil {
		t.Fatal(err)
	}

	got, ok, err := cache.Get(ctx, hash)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestSentimentCacheUpgradeOnly(t *testing.T) {
	cache := openTestStore(t).SentimentCache()
	ctx := context.Background()
	hash := models.ContentHash("upgrade discipline")

	steps := []struct {
		name     string
		write    models.Sentiment
		wantTier models.SentimentTier
		wantConf float64
	}{
		{
			name:     "initial lexical",
			write:    models.Sentiment{Label: models.SentimentNeutral, Confidence: 0.5, Tier: models.TierLexical},
			wantTier: models.TierLexical, wantConf: 0.5,
		},
		{
			name:     "weaker lexical ignored",
			write:    models.Sentiment{Label: models.SentimentNeutral, Confidence: 0.2, Tier: models.TierLexical},
			wantTier: models.TierLexical, wantConf: 0.5,
		},
		{
			name:     "model wins despite lower confidence",
			write:    models.Sentiment{Label: models.SentimentPositive, Confidence: 0.3, Tier: models.TierModel},
			wantTier: models.TierModel, wantConf: 0.3,
		},
		{
			name:     "lexical never downgrades model",
			write:    models.Sentiment{Label: models.SentimentNegative, Confidence: 0.95, Tier: models.TierLexical},
			wantTier: models.TierModel, wantConf: 0.3,
		},
		{
			name:     "stronger model upgrades",
			write:    models.Sentiment{Label: models.SentimentPositive, Confidence: 0.9, Tier: models.TierModel},
			wantTier: models.TierModel, wantConf: 0.9,
		},
	}

	for _, step := range steps {
		if err := cache.Upsert(ctx, hash, step.write); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		got, ok, err := cache.Get(ctx, hash)
		if err != nil || !ok {
			t.Fatalf("%s: get failed ok=%v err=%v", step.name, ok, err)
		}
		if got.Tier != step.wantTier || got.Confidence != step.wantConf {
			t.Errorf("%s: got tier=%d conf=%.2f, want tier=%d conf=%.2f",
				step.name, got.Tier, got.Confidence, step.wantTier, step.wantConf)
		}
	}
}

func TestVectorIndexSearch(t *testing.T) {
	idx := openTestStore(t).VectorIndex()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	docs := []struct {
		id  string
		emb []float32
	}{
		{"a", []float32{1, 0, 0}},
		{"b", []float32{0.9, 0.1, 0}},
		{"c", []float32{0, 1, 0}},
		{"d", []float32{-1, 0, 0}},
	}
	for _, d := range docs {
		err := idx.Upsert(ctx, models.Document{
			ID: d.id, Text: "doc " + d.id, Source: "example.com",
			TrustScore: 0.7, PublishedAt: now,
		}, d.emb)
		if err != nil {
			t.Fatalf("upsert %s: %v", d.id, err)
		}
	}

	got, err := idx.Search(ctx, []float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 docs above floor, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("expected similarity-ordered [a b], got [%s %s]", got[0].ID, got[1].ID)
	}
	if got[0].Similarity < got[1].Similarity {
		t.Error("results not sorted by similarity descending")
	}
	if !got[0].PublishedAt.Equal(now) {
		t.Errorf("published timestamp mangled: got %v want %v", got[0].PublishedAt, now)
	}
}

func TestVectorIndexEmptyResult(t *testing.T) {
	idx := openTestStore(t).VectorIndex()

	got, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("empty index must not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestVectorIndexLimit(t *testing.T) {
	idx := openTestStore(t).VectorIndex()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := idx.Upsert(ctx, models.Document{
			ID: string(rune('a' + i)), Text: "text", PublishedAt: time.Now(),
		}, []float32{1, float32(i) * 0.01})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := idx.Search(ctx, []float32{1, 0}, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected limit of 3, got %d", len(got))
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched length", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tc := range cases {
		if got := CosineSimilarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: got %.6f want %.6f", tc.name, got, tc.want)
		}
	}
}
