package tools

import (
	"context"
	"encoding/json"

	"sectorpulse/internal/llm"
	"sectorpulse/pkg/models"
)

// NewsSource is the live-search surface the news tool reads.
type NewsSource interface {
	Search(ctx context.Context, query string) (*models.LiveNewsResult, error)
}

// LiveNews fetches current headlines for a query.
type LiveNews struct {
	source NewsSource
}

// NewLiveNews creates the live news tool.
func NewLiveNews(source NewsSource) *LiveNews {
	return &LiveNews{source: source}
}

// LiveNewsEntry returns the catalog entry for the live news tool.
func LiveNewsEntry(source NewsSource) Entry {
	return Entry{
		Descriptor: llm.Tool{
			Name:        "search_live_news",
			Description: "Fetch up to 10 current headlines matching a query from live financial news feeds.",
			Parameters: llm.ObjectSchema("",
				map[string]*llm.JSONSchema{
					"query": llm.StringProp("Search query, typically the sector name plus a focus term."),
				},
				"query"),
		},
		Slot:    models.SlotLiveNews,
		Handler: NewLiveNews(source),
	}
}

type liveNewsArgs struct {
	Query string `json:"query"`
}

// Run searches the live feeds. A total provider failure degrades the slot
// with an empty item list and the error marker; it never fails the round.
func (n *LiveNews) Run(ctx context.Context, args json.RawMessage) models.SlotDelta {
	var a liveNewsArgs
	if err := decodeArgs(args, &a); err != nil {
		return models.FailedDelta(models.SlotLiveNews, err)
	}

	result, err := n.source.Search(ctx, a.Query)
	if err != nil {
		if result == nil {
			result = &models.LiveNewsResult{Query: a.Query, Items: []models.NewsItem{}}
		}
		return models.DegradedDelta(models.SlotLiveNews, result, err)
	}
	return models.OKDelta(models.SlotLiveNews, result)
}
