package orchestrator

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"sectorpulse/internal/llm"
	"sectorpulse/internal/tools"
	"sectorpulse/pkg/models"
)

// DefaultIterationCap bounds the decision loop. The loop reaches assembly
// within cap rounds no matter what the decision capability asks for.
const DefaultIterationCap = 7

const systemDirective = `You are an investment research orchestrator. Decide which tools to call to build a sector outlook. Ground every tool choice in the slots that are still unset or incomplete in the state snapshot; do not re-run tools whose slots already hold results. When every useful slot is filled, or no tool would add evidence, reply without tool calls.`

// Engine drives the decision loop for one request at a time. It is
// stateless across requests and safe for concurrent Run calls.
type Engine struct {
	provider llm.Provider
	catalog  *tools.Catalog
	cap      int

	// OnRound, when set, receives an event after each merged round and a
	// final event when the loop terminates.
	OnRound func(RoundEvent)
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithIterationCap overrides the default loop bound.
func WithIterationCap(cap int) EngineOption {
	return func(e *Engine) {
		if cap > 0 {
			e.cap = cap
		}
	}
}

// WithRoundHook sets the per-round progress callback.
func WithRoundHook(fn func(RoundEvent)) EngineOption {
	return func(e *Engine) { e.OnRound = fn }
}

// NewEngine creates an orchestration engine.
func NewEngine(provider llm.Provider, catalog *tools.Catalog, opts ...EngineOption) *Engine {
	e := &Engine{
		provider: provider,
		catalog:  catalog,
		cap:      DefaultIterationCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the loop for a sector and returns the merged state ready
// for report assembly. Only decision capability unavailability at the very
// start is fatal; every tool failure lands in its slot as a marker.
func (e *Engine) Run(ctx context.Context, sector string) (*RequestState, error) {
	if err := e.provider.Ping(ctx); err != nil {
		return nil, fmt.Errorf("orchestrator: decision capability unavailable: %w", err)
	}

	state := NewRequestState(sector)
	state.Transcript = []llm.Message{
		llm.SystemMessage(systemDirective),
		llm.UserMessage(fmt.Sprintf("Build the investment outlook evidence for the %q sector.", sector)),
	}

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		resp, err := e.decide(ctx, state)
		if err != nil {
			// Cancellation surfaces to the caller; assembly never runs on
			// an abandoned request.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Any other mid-loop decision failure ends evidence gathering
			// with whatever the slots hold; it never loses merged state.
			log.Printf("orchestrator: decide failed at iteration %d: %v", state.Iterations, err)
			break
		}
		if !resp.HasToolCalls() {
			break
		}

		records, err := e.dispatch(ctx, resp.ToolCalls)
		if err != nil {
			return nil, err // context cancellation only
		}

		state.Transcript = append(state.Transcript, llm.AssistantToolCallMessage(resp.ToolCalls))
		deltas := make([]models.SlotDelta, 0, len(records))
		for _, rec := range records {
			state.Transcript = append(state.Transcript,
				llm.ToolResultMessage(rec.InvocationID, rec.Tool, resultContent(rec)))
			if !rec.Malformed {
				deltas = append(deltas, rec.Delta)
			}
		}
		state.Merge(deltas)
		state.Iterations++

		e.emit(RoundEvent{
			Sector:      sector,
			Iteration:   state.Iterations,
			Invocations: records,
		})

		if state.Iterations >= e.cap {
			break
		}
	}

	e.emit(RoundEvent{Sector: sector, Iteration: state.Iterations, Done: true})
	return state, nil
}

// decide asks the decision capability for the next tool invocations,
// grounding it in the current slot snapshot.
func (e *Engine) decide(ctx context.Context, state *RequestState) (*llm.Response, error) {
	messages := append([]llm.Message{}, state.Transcript...)
	messages = append(messages, llm.UserMessage("Current state:\n"+state.snapshot()))
	return e.provider.Chat(ctx, messages, e.catalog.Descriptors(), nil)
}

// dispatch runs a round's invocations and waits for all of them before
// returning, so the next decide never observes a half-merged round.
// Invocations answer 1:1 by position; unknown tool names are recorded as
// malformed and skipped without touching any slot.
func (e *Engine) dispatch(ctx context.Context, calls []llm.ToolCall) ([]InvocationRecord, error) {
	records := make([]InvocationRecord, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		rec := InvocationRecord{InvocationID: call.ID, Tool: call.Name}

		if _, known := e.catalog.Lookup(call.Name); !known {
			rec.Malformed = true
			rec.Err = tools.ErrMalformedToolRequest.Error()
			records[i] = rec
			log.Printf("orchestrator: skipping unknown tool %q", call.Name)
			continue
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			delta, _ := e.catalog.Execute(gctx, call.Name, call.Arguments)
			rec.Delta = delta
			records[i] = rec
			return nil
		})
	}

	// Barrier: every invocation completes before the round merges.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (e *Engine) emit(event RoundEvent) {
	if e.OnRound != nil {
		e.OnRound(event)
	}
}
