// Package orchestrator runs the bounded decision loop that answers a
// sector outlook request: ask the decision capability which tools to run,
// dispatch them, merge their deltas, and route back or terminate. The loop
// always terminates within the iteration cap regardless of how the
// decision capability behaves.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sectorpulse/internal/llm"
	"sectorpulse/pkg/models"
)

// RequestState is the per-request shared state. Tools never touch it
// directly; the loop folds their deltas in between rounds, so one round's
// partial results never erase slots it did not target.
type RequestState struct {
	Sector     string                           `json:"sector"`
	Transcript []llm.Message                    `json:"-"`
	Iterations int                              `json:"iterations_used"`
	Slots      map[models.Slot]models.SlotDelta `json:"slots"`
	StartedAt  time.Time                        `json:"started_at"`
	Report     string                           `json:"report,omitempty"`
}

// NewRequestState creates the initial state for a sector request. Every
// slot starts unset.
func NewRequestState(sector string) *RequestState {
	return &RequestState{
		Sector: sector,
		Slots: map[models.Slot]models.SlotDelta{
			models.SlotMomentum:  {Slot: models.SlotMomentum, Status: models.SlotUnset},
			models.SlotLiveNews:  {Slot: models.SlotLiveNews, Status: models.SlotUnset},
			models.SlotRetrieval: {Slot: models.SlotRetrieval, Status: models.SlotUnset},
		},
		StartedAt: time.Now(),
	}
}

// Slot returns the current delta for a slot.
func (s *RequestState) Slot(name models.Slot) models.SlotDelta {
	if d, ok := s.Slots[name]; ok {
		return d
	}
	return models.SlotDelta{Slot: name, Status: models.SlotUnset}
}

// Merge folds a round's deltas onto the state. Only targeted slots change;
// applying the same delta twice is a no-op.
func (s *RequestState) Merge(deltas []models.SlotDelta) {
	for _, d := range deltas {
		if d.Slot == "" {
			continue
		}
		s.Slots[d.Slot] = d
	}
}

// UnsetSlots lists the slots that still hold no result, in a fixed order.
func (s *RequestState) UnsetSlots() []models.Slot {
	var unset []models.Slot
	for _, name := range []models.Slot{models.SlotMomentum, models.SlotLiveNews, models.SlotRetrieval} {
		if s.Slot(name).Status == models.SlotUnset {
			unset = append(unset, name)
		}
	}
	return unset
}

// snapshot renders a compact state summary for the decision capability.
// Payloads are included so later rounds can judge completeness; transcript
// history carries the raw tool outputs already.
func (s *RequestState) snapshot() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sector: %s\niteration: %d\nslots:\n", s.Sector, s.Iterations)
	for _, name := range []models.Slot{models.SlotMomentum, models.SlotLiveNews, models.SlotRetrieval} {
		d := s.Slot(name)
		fmt.Fprintf(&b, "  %s: %s", name, d.Status)
		if d.Err != "" {
			fmt.Fprintf(&b, " (%s)", d.Err)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// InvocationRecord is the outcome of one tool invocation within a round.
// Result ids answer invocation ids 1:1.
type InvocationRecord struct {
	InvocationID string           `json:"invocation_id"`
	Tool         string           `json:"tool"`
	Delta        models.SlotDelta `json:"delta,omitempty"`
	Malformed    bool             `json:"malformed,omitempty"`
	Err          string           `json:"error,omitempty"`
}

// RoundEvent describes one completed loop round, for progress streaming.
type RoundEvent struct {
	Sector      string             `json:"sector"`
	Iteration   int                `json:"iteration"`
	Invocations []InvocationRecord `json:"invocations"`
	Done        bool               `json:"done"`
}

// resultContent renders an invocation outcome as the tool message content
// sent back to the decision capability.
func resultContent(rec InvocationRecord) string {
	if rec.Malformed {
		return fmt.Sprintf(`{"error":"malformed tool request: unknown tool %q"}`, rec.Tool)
	}
	if rec.Delta.Status == models.SlotFailed {
		return fmt.Sprintf(`{"error":%q}`, rec.Delta.Err)
	}
	data, err := json.Marshal(rec.Delta.Payload)
	if err != nil {
		return fmt.Sprintf(`{"error":"encode result: %v"}`, err)
	}
	return string(data)
}
