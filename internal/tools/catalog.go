// Package tools holds the fixed catalog of capabilities the orchestration
// loop can dispatch. Each tool maps arguments to a delta for exactly one
// result slot; unknown names resolve to a typed malformed-request marker
// instead of an unguarded lookup failure.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"sectorpulse/internal/llm"
	"sectorpulse/pkg/models"
)

// ErrMalformedToolRequest marks an invocation naming an unregistered tool
// or carrying arguments that do not decode. The invocation is skipped and
// its slot untouched; the loop continues.
var ErrMalformedToolRequest = fmt.Errorf("malformed tool request")

// Handler executes one tool invocation. Implementations must be safe for
// concurrent use; each call returns the delta for the tool's own slot.
type Handler interface {
	Run(ctx context.Context, args json.RawMessage) models.SlotDelta
}

// Entry pairs a tool descriptor with its handler and target slot.
type Entry struct {
	Descriptor llm.Tool
	Slot       models.Slot
	Handler    Handler
}

// Catalog is the static capability table. It is populated once at startup
// and read-only afterwards.
type Catalog struct {
	entries map[string]Entry
	order   []string
}

// NewCatalog builds a catalog from entries, validating each one.
func NewCatalog(entries ...Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.Descriptor.Name == "" {
			return nil, fmt.Errorf("tools: entry with empty name")
		}
		if e.Handler == nil {
			return nil, fmt.Errorf("tools: %s has no handler", e.Descriptor.Name)
		}
		if e.Slot == "" {
			return nil, fmt.Errorf("tools: %s has no result slot", e.Descriptor.Name)
		}
		if _, dup := c.entries[e.Descriptor.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %s", e.Descriptor.Name)
		}
		c.entries[e.Descriptor.Name] = e
		c.order = append(c.order, e.Descriptor.Name)
	}
	return c, nil
}

// Descriptors returns the tool descriptors in registration order, for
// grounding the decision capability.
func (c *Catalog) Descriptors() []llm.Tool {
	out := make([]llm.Tool, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name].Descriptor)
	}
	return out
}

// Lookup resolves a tool by name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Execute runs the named tool and returns its slot delta. Unknown names
// return ok=false with a zero delta; the caller records the malformed
// request against the invocation id, never against a slot.
func (c *Catalog) Execute(ctx context.Context, name string, args json.RawMessage) (models.SlotDelta, bool) {
	e, ok := c.entries[name]
	if !ok {
		return models.SlotDelta{}, false
	}
	return e.Handler.Run(ctx, args), true
}

// decodeArgs unmarshals tool arguments, tolerating an empty body.
func decodeArgs(args json.RawMessage, into any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, into); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToolRequest, err)
	}
	return nil
}
