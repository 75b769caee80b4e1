package tools

import (
	"context"
	"encoding/json"

	"sectorpulse/internal/llm"
	"sectorpulse/pkg/models"
)

// Retriever is the research retrieval surface the RAG tool delegates to.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*models.RetrievalResult, error)
}

// ResearchSearch ranks stored research documents against a query.
type ResearchSearch struct {
	engine Retriever
}

// NewResearchSearch creates the retrieval tool.
func NewResearchSearch(engine Retriever) *ResearchSearch {
	return &ResearchSearch{engine: engine}
}

// ResearchSearchEntry returns the catalog entry for the retrieval tool.
func ResearchSearchEntry(engine Retriever) Entry {
	return Entry{
		Descriptor: llm.Tool{
			Name:        "search_sector_news_rag",
			Description: "Search the stored research corpus for documents relevant to a query, ranked by similarity, sentiment confidence, and source trust.",
			Parameters: llm.ObjectSchema("",
				map[string]*llm.JSONSchema{
					"query": llm.StringProp("Free-text research query, e.g. a sector name plus an angle."),
				},
				"query"),
		},
		Slot:    models.SlotRetrieval,
		Handler: NewResearchSearch(engine),
	}
}

type researchArgs struct {
	Query string `json:"query"`
}

// Run delegates to the retrieval engine.
func (r *ResearchSearch) Run(ctx context.Context, args json.RawMessage) models.SlotDelta {
	var a researchArgs
	if err := decodeArgs(args, &a); err != nil {
		return models.FailedDelta(models.SlotRetrieval, err)
	}

	result, err := r.engine.Retrieve(ctx, a.Query)
	if err != nil {
		return models.FailedDelta(models.SlotRetrieval, err)
	}
	return models.OKDelta(models.SlotRetrieval, result)
}
