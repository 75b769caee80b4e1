package models

// AggregateStats summarizes sentiment over a selected document set.
type AggregateStats struct {
	LabelCounts    map[SentimentLabel]int `json:"label_counts"`
	MeanScore      float64                `json:"mean_score"`
	MeanConfidence float64                `json:"mean_confidence"`
}

// DocumentView is a ranked document as exposed to report assembly, with the
// raw text replaced by a bounded preview.
type DocumentView struct {
	ID            string     `json:"id"`
	Preview       string     `json:"preview"`
	Source        string     `json:"source"`
	Similarity    float64    `json:"similarity"`
	TrustScore    float64    `json:"trust_score"`
	CombinedScore float64    `json:"combined_score"`
	Sentiment     *Sentiment `json:"sentiment,omitempty"`
}

// RetrievalResult is the payload of the retrieval tool slot. A query with no
// qualifying candidates yields TotalSelected=0 with zeroed aggregates rather
// than an error.
type RetrievalResult struct {
	Query         string         `json:"query"`
	TotalSelected int            `json:"total_selected"`
	Stats         AggregateStats `json:"aggregate_stats"`
	Documents     []DocumentView `json:"documents"`
}
