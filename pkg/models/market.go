package models

import "time"

// PricePoint is a single daily close in a price series.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// MomentumSignal classifies the latest close against its moving average.
type MomentumSignal string

const (
	MomentumPositive MomentumSignal = "Positive"
	MomentumNegative MomentumSignal = "Negative"
	MomentumNeutral  MomentumSignal = "Neutral"
)

// MomentumResult is the payload of the momentum tool slot.
type MomentumResult struct {
	Sector      string         `json:"sector"`
	Ticker      string         `json:"ticker"`
	LatestClose float64        `json:"latest_close"`
	SMA         float64        `json:"sma_50"`
	Signal      MomentumSignal `json:"momentum_signal"`
}

// NewsItem is a lightweight live-search hit: headline plus a bounded summary.
type NewsItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

// LiveNewsResult is the payload of the live-news tool slot. Items keep the
// provider's order.
type LiveNewsResult struct {
	Query string     `json:"query"`
	Items []NewsItem `json:"items"`
}
