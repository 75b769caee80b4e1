// Package llm provides the external decision capability behind the
// orchestration loop: a unified chat interface over OpenAI-compatible and
// Ollama backends with tool/function calling, plus text embeddings for the
// retrieval engine, with provider routing and fallback.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Provider names for routing and configuration.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Common errors returned by providers.
var (
	ErrNoAPIKey     = errors.New("llm: API key not configured")
	ErrRateLimit    = errors.New("llm: rate limit exceeded")
	ErrProviderDown = errors.New("llm: provider unavailable")
	ErrNoProviders  = errors.New("llm: no providers configured")
)

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool result messages
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Tool describes a capability the model may invoke. It is a descriptor
// only; execution lives in the tool catalog.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  *JSONSchema `json:"parameters"`
}

// JSONSchema is the subset of JSON Schema used for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
}

// ObjectSchema builds an object schema with the given properties.
func ObjectSchema(desc string, props map[string]*JSONSchema, required ...string) *JSONSchema {
	return &JSONSchema{Type: "object", Description: desc, Properties: props, Required: required}
}

// StringProp builds a string property schema.
func StringProp(desc string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: desc}
}

// Response is a complete model reply.
type Response struct {
	Content     string        `json:"content"`
	ToolCalls   []ToolCall    `json:"tool_calls,omitempty"`
	Model       string        `json:"model"`
	Provider    string        `json:"provider"`
	TotalTokens int           `json:"total_tokens"`
	Latency     time.Duration `json:"latency"`
}

// HasToolCalls reports whether the model requested tool execution.
func (r *Response) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// ChatOptions configures a single chat request.
type ChatOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Provider is the chat backend contract.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Chat sends a conversation, optionally offering tools, and returns the
	// complete response.
	Chat(ctx context.Context, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error)

	// Models lists models known to work with this provider.
	Models() []string

	// Ping checks reachability and credentials.
	Ping(ctx context.Context) error
}

// Embedder converts text to a vector. The retrieval engine owns the
// query/passage prefix convention; implementations embed verbatim.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SystemMessage builds a system prompt message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantToolCallMessage builds the assistant turn carrying tool calls.
func AssistantToolCallMessage(calls []ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// ToolResultMessage builds the tool result turn answering a tool call.
func ToolResultMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, Name: name}
}
