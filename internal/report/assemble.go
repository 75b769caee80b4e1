// Package report turns merged orchestration state into the final sector
// outlook narrative. The decision capability writes the narrative when it
// is reachable; a deterministic template compiles the same evidence when
// it is not. Assembly accepts a fully-empty state without failure.
package report

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"text/template"

	"sectorpulse/internal/llm"
	"sectorpulse/internal/orchestrator"
	"sectorpulse/pkg/models"
)

const narrativePrompt = `You are a sector analyst. Write a concise investment outlook (3 sentences) for the %q sector using only the evidence below. Name the momentum signal, the tone of recent news, and the research sentiment balance where available. If a line says "no data", acknowledge the gap instead of inventing figures.

%s`

// Assembler builds the outlook report.
type Assembler struct {
	provider llm.Provider
}

// NewAssembler creates a report assembler. A nil provider always compiles
// the deterministic narrative.
func NewAssembler(provider llm.Provider) *Assembler {
	return &Assembler{provider: provider}
}

// Assemble produces the outlook text for the merged state and stores it on
// state.Report.
func (a *Assembler) Assemble(ctx context.Context, state *orchestrator.RequestState) (string, error) {
	evidence := renderEvidence(state)

	if a.provider != nil {
		resp, err := a.provider.Chat(ctx,
			[]llm.Message{llm.UserMessage(fmt.Sprintf(narrativePrompt, state.Sector, evidence))},
			nil, nil)
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			state.Report = strings.TrimSpace(resp.Content)
			return state.Report, nil
		}
		if err != nil {
			log.Printf("report: narrative generation failed, compiling fallback: %v", err)
		}
	}

	state.Report = compileFallback(state, evidence)
	return state.Report, nil
}

// renderEvidence flattens the slots into the plain-text evidence block
// shared by both narrative paths.
func renderEvidence(state *orchestrator.RequestState) string {
	var b strings.Builder

	b.WriteString("Momentum: ")
	if m, ok := state.Slot(models.SlotMomentum).Payload.(*models.MomentumResult); ok {
		fmt.Fprintf(&b, "%s (%s latest close %.2f vs 50-day SMA %.2f)\n",
			m.Signal, m.Ticker, m.LatestClose, m.SMA)
	} else {
		b.WriteString(slotGap(state.Slot(models.SlotMomentum)) + "\n")
	}

	b.WriteString("Live news: ")
	if n, ok := state.Slot(models.SlotLiveNews).Payload.(*models.LiveNewsResult); ok && len(n.Items) > 0 {
		fmt.Fprintf(&b, "%d current headlines\n", len(n.Items))
		for i, item := range n.Items {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "  - %s\n", item.Title)
		}
	} else {
		b.WriteString(slotGap(state.Slot(models.SlotLiveNews)) + "\n")
	}

	b.WriteString("Research sentiment: ")
	if r, ok := state.Slot(models.SlotRetrieval).Payload.(*models.RetrievalResult); ok && r.TotalSelected > 0 {
		fmt.Fprintf(&b, "%d documents, %d positive / %d neutral / %d negative, mean confidence %.2f\n",
			r.TotalSelected,
			r.Stats.LabelCounts[models.SentimentPositive],
			r.Stats.LabelCounts[models.SentimentNeutral],
			r.Stats.LabelCounts[models.SentimentNegative],
			r.Stats.MeanConfidence)
	} else {
		b.WriteString(slotGap(state.Slot(models.SlotRetrieval)) + "\n")
	}

	return b.String()
}

func slotGap(d models.SlotDelta) string {
	switch d.Status {
	case models.SlotFailed:
		return fmt.Sprintf("no data (failed: %s)", d.Err)
	case models.SlotDegraded:
		if d.Err != "" {
			return fmt.Sprintf("no data (degraded: %s)", d.Err)
		}
		return "no data (degraded)"
	default:
		return "no data"
	}
}

var fallbackTmpl = template.Must(template.New("outlook").Parse(
	`Sector outlook: {{.Sector}}

{{.Evidence}}
Summary: {{.Summary}}
(iterations used: {{.Iterations}})
`))

// compileFallback renders the deterministic narrative. It never errors:
// the template input is fully under our control.
func compileFallback(state *orchestrator.RequestState, evidence string) string {
	data := struct {
		Sector     string
		Evidence   string
		Summary    string
		Iterations int
	}{
		Sector:     state.Sector,
		Evidence:   evidence,
		Summary:    summarize(state),
		Iterations: state.Iterations,
	}

	var buf bytes.Buffer
	if err := fallbackTmpl.Execute(&buf, data); err != nil {
		return "Sector outlook: " + state.Sector + "\n" + evidence
	}
	return buf.String()
}

func summarize(state *orchestrator.RequestState) string {
	m, hasMomentum := state.Slot(models.SlotMomentum).Payload.(*models.MomentumResult)
	r, hasResearch := state.Slot(models.SlotRetrieval).Payload.(*models.RetrievalResult)
	if hasResearch && r.TotalSelected == 0 {
		hasResearch = false
	}

	switch {
	case hasMomentum && hasResearch:
		return fmt.Sprintf("price momentum is %s and research sentiment leans %s.",
			strings.ToLower(string(m.Signal)), dominantLabel(r.Stats))
	case hasMomentum:
		return fmt.Sprintf("price momentum is %s; no research evidence was gathered.",
			strings.ToLower(string(m.Signal)))
	case hasResearch:
		return fmt.Sprintf("research sentiment leans %s; no price evidence was gathered.",
			dominantLabel(r.Stats))
	default:
		return "no evidence was gathered for this sector."
	}
}

func dominantLabel(stats models.AggregateStats) string {
	best := models.SentimentNeutral
	bestN := -1
	for _, label := range []models.SentimentLabel{models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative} {
		if n := stats.LabelCounts[label]; n > bestN {
			best, bestN = label, n
		}
	}
	return string(best)
}
