package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// mockProvider implements Provider for router tests.
type mockProvider struct {
	name    string
	resp    *Response
	err     error
	pingErr error
	calls   int
	mu      sync.Mutex
}

func (m *mockProvider) Name() string     { return m.name }
func (m *mockProvider) Models() []string { return []string{"mock-model"} }

func (m *mockProvider) Chat(context.Context, []Message, []Tool, *ChatOptions) (*Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *mockProvider) Ping(context.Context) error { return m.pingErr }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestOpenAIChatToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "sector_momentum" {
			t.Errorf("tools not forwarded: %+v", req.Tools)
		}

		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id":   "call_abc",
						"type": "function",
						"function": map[string]any{
							"name":      "sector_momentum",
							"arguments": `{"sector":"semiconductors"}`,
						},
					}},
				},
				"finish_reason": "tool_calls",
			}},
			"usage": map[string]any{"total_tokens": 42},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("test-key", WithOpenAIBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	tool := Tool{
		Name:        "sector_momentum",
		Description: "Compute sector momentum",
		Parameters:  ObjectSchema("", map[string]*JSONSchema{"sector": StringProp("sector name")}, "sector"),
	}
	resp, err := p.Chat(context.Background(), []Message{UserMessage("outlook for semiconductors")}, []Tool{tool}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.HasToolCalls() {
		t.Fatal("expected tool calls in response")
	}
	if resp.ToolCalls[0].ID != "call_abc" || resp.ToolCalls[0].Name != "sector_momentum" {
		t.Errorf("tool call mangled: %+v", resp.ToolCalls[0])
	}
	if resp.TotalTokens != 42 {
		t.Errorf("expected 42 tokens, got %d", resp.TotalTokens)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(""); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestOpenAIRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, _ := NewOpenAIProvider("test-key", WithOpenAIBaseURL(srv.URL))
	_, err := p.Chat(context.Background(), []Message{UserMessage("hi")}, nil, nil)
	if !errors.Is(err, ErrRateLimit) {
		t.Errorf("expected ErrRateLimit, got %v", err)
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "query: semiconductor outlook" {
			t.Errorf("prompt not forwarded verbatim: %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	vec, err := p.Embed(context.Background(), "query: semiconductor outlook")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %d", len(vec))
	}
}

func TestOllamaChatSynthesizesCallIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ollamaChatResponse{
			Message: ollamaMessage{
				Role: "assistant",
				ToolCalls: []ollamaToolCall{
					{Function: ollamaFunctionCall{Name: "live_news_search", Arguments: json.RawMessage(`{"query":"ai"}`)}},
					{Function: ollamaFunctionCall{Name: "sector_momentum", Arguments: json.RawMessage(`{"sector":"ai"}`)}},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	resp, err := p.Chat(context.Background(), []Message{UserMessage("go")}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID == resp.ToolCalls[1].ID {
		t.Error("synthesized call ids must be distinct")
	}
}

func TestRouterFallback(t *testing.T) {
	primary := &mockProvider{name: "openai", err: errors.New("boom")}
	backup := &mockProvider{name: "ollama", resp: &Response{Content: "ok", Provider: "ollama"}}

	r := NewRouter("openai", WithFallbacks("ollama"), WithMaxRetries(0), WithRetryDelay(time.Millisecond))
	r.Register(primary)
	r.Register(backup)

	resp, err := r.Chat(context.Background(), []Message{UserMessage("hi")}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Provider != "ollama" {
		t.Errorf("expected fallback provider, got %s", resp.Provider)
	}
	if primary.callCount() != 1 {
		t.Errorf("primary should be tried once, got %d", primary.callCount())
	}
}

func TestRouterNoProviders(t *testing.T) {
	r := NewRouter("openai")
	if _, err := r.Chat(context.Background(), nil, nil, nil); !errors.Is(err, ErrNoProviders) {
		t.Errorf("expected ErrNoProviders, got %v", err)
	}
}

func TestRouterBadKeyNotRetried(t *testing.T) {
	primary := &mockProvider{name: "openai", err: ErrNoAPIKey}
	backup := &mockProvider{name: "ollama", resp: &Response{Content: "ok"}}

	r := NewRouter("openai", WithFallbacks("ollama"), WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	r.Register(primary)
	r.Register(backup)

	_, err := r.Chat(context.Background(), nil, nil, nil)
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey surfaced, got %v", err)
	}
	if primary.callCount() != 1 {
		t.Errorf("bad key must not be retried, got %d calls", primary.callCount())
	}
	if backup.callCount() != 0 {
		t.Errorf("bad key must not fall back, got %d calls", backup.callCount())
	}
}
