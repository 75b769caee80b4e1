package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"sectorpulse/internal/sentiment"
	"sectorpulse/pkg/models"
)

type fakeEmbedder struct {
	lastText string
	vec      []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.lastText = text
	if f.vec == nil {
		return []float32{1, 0, 0}, nil
	}
	return f.vec, nil
}

type fakeIndex struct {
	docs      []models.Document
	lastLimit int
	lastFloor float64
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, limit int, floor float64) ([]models.Document, error) {
	f.lastLimit = limit
	f.lastFloor = floor
	return f.docs, nil
}

func testPipeline(t *testing.T) *sentiment.Pipeline {
	t.Helper()
	return sentiment.NewPipeline(context.Background(), nil, sentiment.NewMemoryCache())
}

func makeDoc(i int, sim, trust float64, text string) models.Document {
	return models.Document{
		ID:          fmt.Sprintf("doc-%02d", i),
		Text:        text,
		Source:      "test",
		TrustScore:  trust,
		Similarity:  sim,
		PublishedAt: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
	}
}

func TestRetrieveQueryPrefix(t *testing.T) {
	emb := &fakeEmbedder{}
	eng := NewEngine(emb, &fakeIndex{}, testPipeline(t), Options{})

	if _, err := eng.Retrieve(context.Background(), "semiconductor demand"); err != nil {
		t.Fatal(err)
	}
	if emb.lastText != "query: semiconductor demand" {
		t.Errorf("query embedded without prefix: %q", emb.lastText)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	eng := NewEngine(&fakeEmbedder{}, &fakeIndex{}, testPipeline(t), Options{})

	result, err := eng.Retrieve(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalSelected != 0 || len(result.Documents) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
	if result.Stats.LabelCounts == nil {
		t.Error("label counts must be non-nil even when empty")
	}
}

func TestRetrieveSelectsTopTen(t *testing.T) {
	idx := &fakeIndex{}
	for i := 0; i < 12; i++ {
		text := "strong growth and record profit this quarter"
		if i%3 == 0 {
			text = "losses widen amid weak demand and layoffs"
		}
		idx.docs = append(idx.docs, makeDoc(i, 0.55+float64(i)*0.03, 0.5, text))
	}

	eng := NewEngine(&fakeEmbedder{}, idx, testPipeline(t), Options{})
	result, err := eng.Retrieve(context.Background(), "sector outlook")
	if err != nil {
		t.Fatal(err)
	}

	if result.TotalSelected != 10 || len(result.Documents) != 10 {
		t.Fatalf("expected exactly 10 selected, got %d", result.TotalSelected)
	}

	total := 0
	for _, n := range result.Stats.LabelCounts {
		total += n
	}
	if total != 10 {
		t.Errorf("label counts sum to %d, want 10", total)
	}

	for i := 1; i < len(result.Documents); i++ {
		if result.Documents[i].CombinedScore > result.Documents[i-1].CombinedScore {
			t.Errorf("documents not sorted by combined score at %d", i)
		}
	}
}

func TestRetrieveRecallSettings(t *testing.T) {
	idx := &fakeIndex{}
	eng := NewEngine(&fakeEmbedder{}, idx, testPipeline(t), Options{})

	if _, err := eng.Retrieve(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if idx.lastLimit != 100 {
		t.Errorf("candidate limit = %d, want 100", idx.lastLimit)
	}
	if idx.lastFloor != 0.5 {
		t.Errorf("similarity floor = %v, want 0.5", idx.lastFloor)
	}
}

func TestCombinedScoreBlend(t *testing.T) {
	eng := NewEngine(&fakeEmbedder{}, &fakeIndex{}, nil, Options{})

	doc := models.Document{
		Similarity: 0.8,
		TrustScore: 0.6,
		Sentiment:  &models.Sentiment{Confidence: 0.9},
	}
	got := eng.combinedScore(doc)
	want := 0.5*0.8 + 0.3*0.9 + 0.2*0.6
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("combinedScore = %v, want %v", got, want)
	}

	// Scores of fully confident, fully trusted, identical docs stay in [0, 1].
	perfect := models.Document{
		Similarity: 1, TrustScore: 1,
		Sentiment: &models.Sentiment{Confidence: 1},
	}
	if s := eng.combinedScore(perfect); s < 0 || s > 1.0000001 {
		t.Errorf("score out of bounds: %v", s)
	}
}

func TestRankTieBreaks(t *testing.T) {
	older := makeDoc(1, 0.7, 0.5, "flat quarter")
	newer := makeDoc(2, 0.7, 0.5, "flat quarter")
	moreSimilar := makeDoc(3, 0.9, 0.0, "flat quarter") // same blend via trust tradeoff

	ranked := []scoredDoc{
		{doc: older, score: 0.5},
		{doc: newer, score: 0.5},
		{doc: moreSimilar, score: 0.5},
	}
	sortRanked(ranked)

	if ranked[0].doc.ID != moreSimilar.ID {
		t.Errorf("higher similarity must win score ties, got %s first", ranked[0].doc.ID)
	}
	if ranked[1].doc.ID != newer.ID {
		t.Errorf("newer publication must win similarity ties, got %s second", ranked[1].doc.ID)
	}
}

func TestRetrieveEnrichesMissingSentiment(t *testing.T) {
	idx := &fakeIndex{docs: []models.Document{
		makeDoc(1, 0.8, 0.5, "record profit and strong growth"),
	}}

	eng := NewEngine(&fakeEmbedder{}, idx, testPipeline(t), Options{})
	result, err := eng.Retrieve(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}

	s := result.Documents[0].Sentiment
	if s == nil {
		t.Fatal("candidate without sentiment must be enriched")
	}
	if s.Tier != models.TierLexical {
		t.Errorf("tier = %v, want lexical (no model classifier wired)", s.Tier)
	}
}

func TestAggregateMeansSentimentScore(t *testing.T) {
	bull := makeDoc(1, 0.9, 0.5, "up")
	bull.Sentiment = &models.Sentiment{Label: models.SentimentPositive, Score: 0.8, Confidence: 0.9}
	bear := makeDoc(2, 0.9, 0.5, "down")
	bear.Sentiment = &models.Sentiment{Label: models.SentimentNegative, Score: -0.8, Confidence: 0.7}

	stats := aggregate([]scoredDoc{
		{doc: bull, score: 0.7},
		{doc: bear, score: 0.5},
	})

	// Opposing ±0.8 sentiment scores cancel regardless of the blended ranks.
	if stats.MeanScore != 0 {
		t.Errorf("mean score = %v, want 0", stats.MeanScore)
	}
	if diff := stats.MeanConfidence - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("mean confidence = %v, want 0.8", stats.MeanConfidence)
	}
	if stats.LabelCounts[models.SentimentPositive] != 1 || stats.LabelCounts[models.SentimentNegative] != 1 {
		t.Errorf("label counts = %v", stats.LabelCounts)
	}
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	text := strings.Repeat("株", previewLen+50)

	got := preview(text)
	if !utf8.ValidString(got) {
		t.Fatal("preview produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != previewLen+1 {
		t.Errorf("preview rune count = %d, want %d", n, previewLen+1)
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("truncated preview missing ellipsis")
	}
}

func TestRetrievePreservesExistingSentiment(t *testing.T) {
	pre := &models.Sentiment{
		Label:      models.SentimentPositive,
		Score:      0.9,
		Confidence: 0.8,
		Tier:       models.TierModel,
	}
	idx := &fakeIndex{docs: []models.Document{
		{ID: "enriched", Text: "x", Similarity: 0.7, Sentiment: pre},
	}}

	eng := NewEngine(&fakeEmbedder{}, idx, testPipeline(t), Options{})
	result, err := eng.Retrieve(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if result.Documents[0].Sentiment != pre {
		t.Error("pre-enriched sentiment must not be recomputed")
	}
}
