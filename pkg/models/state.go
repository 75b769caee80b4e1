package models

// Slot names a result slot in the per-request state. Each built-in tool
// writes exactly one slot.
type Slot string

const (
	SlotMomentum  Slot = "momentum"
	SlotLiveNews  Slot = "live_news"
	SlotRetrieval Slot = "retrieval"
)

// SlotStatus records how a slot ended up in its current value.
type SlotStatus string

const (
	SlotUnset    SlotStatus = "unset"
	SlotOK       SlotStatus = "ok"
	SlotDegraded SlotStatus = "degraded" // partial data, e.g. provider failed but an empty payload stands in
	SlotFailed   SlotStatus = "failed"
)

// SlotDelta is the only way a tool communicates results back to the
// orchestration loop: the delta it computed for its own slot. Tools never
// mutate shared state directly; a merge step folds deltas onto the prior
// snapshot so untouched slots always survive a round.
type SlotDelta struct {
	Slot    Slot       `json:"slot"`
	Status  SlotStatus `json:"status"`
	Payload any        `json:"payload,omitempty"`
	Err     string     `json:"error,omitempty"`
}

// OKDelta builds a successful delta for a slot.
func OKDelta(slot Slot, payload any) SlotDelta {
	return SlotDelta{Slot: slot, Status: SlotOK, Payload: payload}
}

// FailedDelta builds an error-marker delta for a slot.
func FailedDelta(slot Slot, err error) SlotDelta {
	d := SlotDelta{Slot: slot, Status: SlotFailed}
	if err != nil {
		d.Err = err.Error()
	}
	return d
}

// DegradedDelta builds a delta carrying partial data plus the reason.
func DegradedDelta(slot Slot, payload any, err error) SlotDelta {
	d := SlotDelta{Slot: slot, Status: SlotDegraded, Payload: payload}
	if err != nil {
		d.Err = err.Error()
	}
	return d
}
