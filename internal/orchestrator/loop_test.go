package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"sectorpulse/internal/llm"
	"sectorpulse/internal/tools"
	"sectorpulse/pkg/models"
)

// scriptedProvider replays a fixed sequence of responses; after the script
// runs out it keeps returning the last entry.
type scriptedProvider struct {
	mu      sync.Mutex
	script  []*llm.Response
	calls   int
	pingErr error
}

func (s *scriptedProvider) Name() string               { return "scripted" }
func (s *scriptedProvider) Models() []string           { return nil }
func (s *scriptedProvider) Ping(context.Context) error { return s.pingErr }

func (s *scriptedProvider) Chat(_ context.Context, _ []llm.Message, _ []llm.Tool, _ *llm.ChatOptions) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return &llm.Response{}, nil
	}
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	return s.script[idx], nil
}

func (s *scriptedProvider) chatCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// slotHandler writes a canned delta, tracking concurrent executions.
type slotHandler struct {
	slot    models.Slot
	payload any

	mu      sync.Mutex
	running int
	maxSeen int
	started chan struct{}
	release chan struct{}
}

func (h *slotHandler) Run(_ context.Context, _ json.RawMessage) models.SlotDelta {
	h.mu.Lock()
	h.running++
	if h.running > h.maxSeen {
		h.maxSeen = h.running
	}
	h.mu.Unlock()

	if h.started != nil {
		h.started <- struct{}{}
	}
	if h.release != nil {
		<-h.release
	}

	h.mu.Lock()
	h.running--
	h.mu.Unlock()
	return models.OKDelta(h.slot, h.payload)
}

func entryFor(name string, h *slotHandler) tools.Entry {
	return tools.Entry{
		Descriptor: llm.Tool{Name: name, Description: name, Parameters: llm.ObjectSchema("", nil)},
		Slot:       h.slot,
		Handler:    h,
	}
}

func toolCall(id, name string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(`{}`)}
}

func testCatalog(t *testing.T, handlers ...*slotHandler) *tools.Catalog {
	t.Helper()
	entries := make([]tools.Entry, 0, len(handlers))
	for i, h := range handlers {
		entries = append(entries, entryFor(fmt.Sprintf("tool_%d_%s", i, h.slot), h))
	}
	c, err := tools.NewCatalog(entries...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRunNoToolCallsTerminatesImmediately(t *testing.T) {
	provider := &scriptedProvider{script: []*llm.Response{{Content: "nothing to do"}}}
	engine := NewEngine(provider, testCatalog(t))

	state, err := engine.Run(context.Background(), "semiconductors")
	if err != nil {
		t.Fatal(err)
	}
	if state.Iterations != 0 {
		t.Errorf("iterations_used = %d, want 0", state.Iterations)
	}
	for _, name := range []models.Slot{models.SlotMomentum, models.SlotLiveNews, models.SlotRetrieval} {
		if state.Slot(name).Status != models.SlotUnset {
			t.Errorf("slot %s = %s, want unset", name, state.Slot(name).Status)
		}
	}
}

func TestRunUnknownToolEveryRoundStillTerminates(t *testing.T) {
	// The decision capability never cooperates: every round asks for a
	// tool that does not exist.
	malformed := &llm.Response{ToolCalls: []llm.ToolCall{toolCall("call_1", "no_such_tool")}}
	provider := &scriptedProvider{script: []*llm.Response{malformed}}

	var events []RoundEvent
	engine := NewEngine(provider, testCatalog(t), WithRoundHook(func(ev RoundEvent) {
		events = append(events, ev)
	}))

	state, err := engine.Run(context.Background(), "biotech")
	if err != nil {
		t.Fatal(err)
	}
	if state.Iterations != 7 {
		t.Errorf("iterations_used = %d, want exactly 7", state.Iterations)
	}
	for _, name := range []models.Slot{models.SlotMomentum, models.SlotLiveNews, models.SlotRetrieval} {
		if state.Slot(name).Status != models.SlotUnset {
			t.Errorf("slot %s populated by malformed rounds", name)
		}
	}

	rounds := 0
	for _, ev := range events {
		if ev.Done {
			continue
		}
		rounds++
		if len(ev.Invocations) != 1 || !ev.Invocations[0].Malformed {
			t.Errorf("round %d missing malformed record: %+v", ev.Iteration, ev.Invocations)
		}
	}
	if rounds != 7 {
		t.Errorf("expected 7 round events, got %d", rounds)
	}
}

func TestRunRespectsCustomCap(t *testing.T) {
	malformed := &llm.Response{ToolCalls: []llm.ToolCall{toolCall("c", "ghost")}}
	provider := &scriptedProvider{script: []*llm.Response{malformed}}
	engine := NewEngine(provider, testCatalog(t), WithIterationCap(3))

	state, err := engine.Run(context.Background(), "ai")
	if err != nil {
		t.Fatal(err)
	}
	if state.Iterations != 3 {
		t.Errorf("iterations_used = %d, want 3", state.Iterations)
	}
	// Decide runs once per round, never more than the cap.
	if provider.chatCalls() != 3 {
		t.Errorf("decide called %d times, want 3", provider.chatCalls())
	}
}

func TestRunMergesAndStops(t *testing.T) {
	momentum := &slotHandler{slot: models.SlotMomentum, payload: &models.MomentumResult{Signal: models.MomentumPositive}}
	news := &slotHandler{slot: models.SlotLiveNews, payload: &models.LiveNewsResult{Query: "ai"}}

	provider := &scriptedProvider{script: []*llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "tool_0_momentum")}},
		{ToolCalls: []llm.ToolCall{toolCall("c2", "tool_1_live_news")}},
		{Content: "done"},
	}}
	engine := NewEngine(provider, testCatalog(t, momentum, news))

	state, err := engine.Run(context.Background(), "ai")
	if err != nil {
		t.Fatal(err)
	}
	if state.Iterations != 2 {
		t.Errorf("iterations_used = %d, want 2", state.Iterations)
	}
	if state.Slot(models.SlotMomentum).Status != models.SlotOK {
		t.Error("momentum slot not merged")
	}
	if state.Slot(models.SlotLiveNews).Status != models.SlotOK {
		t.Error("live news slot from round 2 not merged")
	}
	// The second round never targeted momentum; its round-1 result survives.
	if state.Slot(models.SlotMomentum).Payload == nil {
		t.Error("untouched slot lost its payload")
	}
	if state.Slot(models.SlotRetrieval).Status != models.SlotUnset {
		t.Error("retrieval slot must stay unset")
	}
}

func TestMergeIdempotent(t *testing.T) {
	state := NewRequestState("defense")
	delta := models.OKDelta(models.SlotMomentum, &models.MomentumResult{Signal: models.MomentumNegative})

	state.Merge([]models.SlotDelta{delta})
	before := state.Slot(models.SlotMomentum)
	state.Merge([]models.SlotDelta{delta})
	after := state.Slot(models.SlotMomentum)

	if before != after {
		t.Errorf("re-applying an unchanged delta altered the slot: %+v vs %+v", before, after)
	}
	if state.Slot(models.SlotLiveNews).Status != models.SlotUnset {
		t.Error("merge touched a slot it did not target")
	}
}

func TestDispatchBarrierAndParallelism(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	a := &slotHandler{slot: models.SlotMomentum, started: started, release: release}
	b := &slotHandler{slot: models.SlotLiveNews, started: started, release: release}

	engine := NewEngine(&scriptedProvider{}, testCatalog(t, a, b))

	done := make(chan []InvocationRecord)
	go func() {
		records, err := engine.dispatch(context.Background(), []llm.ToolCall{
			toolCall("c1", "tool_0_momentum"),
			toolCall("c2", "tool_1_live_news"),
		})
		if err != nil {
			t.Error(err)
		}
		done <- records
	}()

	// Both invocations run before either completes.
	<-started
	<-started

	select {
	case <-done:
		t.Fatal("dispatch returned before all invocations completed")
	default:
	}

	close(release)
	records := <-done

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].InvocationID != "c1" || records[1].InvocationID != "c2" {
		t.Errorf("result ids must answer invocation ids 1:1: %+v", records)
	}
}

func TestRunDecisionCapabilityDownIsFatal(t *testing.T) {
	provider := &scriptedProvider{pingErr: errors.New("connection refused")}
	engine := NewEngine(provider, testCatalog(t))

	if _, err := engine.Run(context.Background(), "blockchain"); err == nil {
		t.Fatal("expected fatal error when decision capability is down at start")
	}
	if provider.chatCalls() != 0 {
		t.Error("no decide call should happen after a failed probe")
	}
}

// stallingProvider blocks inside Chat until its context is cancelled.
type stallingProvider struct {
	deciding chan struct{}
}

func (s *stallingProvider) Name() string               { return "stalling" }
func (s *stallingProvider) Models() []string           { return nil }
func (s *stallingProvider) Ping(context.Context) error { return nil }

func (s *stallingProvider) Chat(ctx context.Context, _ []llm.Message, _ []llm.Tool, _ *llm.ChatOptions) (*llm.Response, error) {
	s.deciding <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunCancelledDuringDecide(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := &stallingProvider{deciding: make(chan struct{})}
	engine := NewEngine(provider, testCatalog(t))

	type result struct {
		state *RequestState
		err   error
	}
	done := make(chan result)
	go func() {
		state, err := engine.Run(ctx, "ai")
		done <- result{state, err}
	}()

	// Cancel while the decision request is in flight, not before it.
	<-provider.deciding
	cancel()

	got := <-done
	if !errors.Is(got.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", got.err)
	}
	if got.state != nil {
		t.Error("a cancelled request must not hand state to assembly")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &scriptedProvider{script: []*llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c", "ghost")}},
	}}
	engine := NewEngine(provider, testCatalog(t))

	if _, err := engine.Run(ctx, "ai"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
