// Package llmclient defines the abstract "stream a response" contract the
// agent loop drives: a Client produces a typed event stream per request,
// ending in a finalized AssistantMessage. Concrete providers (see
// pkg/llmclient/gemini) implement Client against a real backend.
package llmclient

import (
	"context"

	"github.com/mariozechner/agentcore/pkg/eventstream"
	"github.com/mariozechner/agentcore/pkg/message"
)

// EventType discriminates the kind of a streamed Event.
type EventType string

const (
	EventStart         EventType = "start"
	EventTextStart     EventType = "text_start"
	EventTextDelta     EventType = "text_delta"
	EventTextEnd       EventType = "text_end"
	EventThinkingStart EventType = "thinking_start"
	EventThinkingDelta EventType = "thinking_delta"
	EventThinkingEnd   EventType = "thinking_end"
	EventToolCallStart EventType = "toolcall_start"
	EventToolCallDelta EventType = "toolcall_delta"
	EventToolCallEnd   EventType = "toolcall_end"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Event is one increment of a streamed model response. Partial always
// carries the cumulative, best-effort assistant message assembled so far;
// consumers needing only the final result can ignore every event but the
// last (EventDone/EventError) and call Stream.Result() instead.
type Event struct {
	Type EventType

	// ToolCallID/ToolCallName are set on toolcall_* events; ArgsDelta and
	// ArgsPartial (the cumulative, possibly-incomplete JSON-ish argument
	// object decoded best-effort) are set on toolcall_delta/toolcall_end.
	ToolCallID   string
	ToolCallName string
	ArgsDelta    string
	ArgsPartial  map[string]any

	TextDelta     string
	ThinkingDelta string

	Partial message.AssistantMessage
	Err     error
}

// Tool is the provider-facing declaration of a callable tool: name,
// description, and a JSON-schema-shaped parameter definition.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one model call: the system prompt, full message history, and
// the toolset available this turn.
type Request struct {
	SystemPrompt string
	Messages     []message.Message
	Tools        []Tool
}

// ModelInfo describes one model a Provider exposes, including its context
// window size — used by compaction's threshold check and model-selection
// fallback chain.
type ModelInfo struct {
	ID        string
	Provider  string
	MaxTokens int
}

// Client is the abstract LLM backend the agent loop and compaction drive.
// Stream must never block past returning the Stream value itself; all
// further waiting happens through the returned stream's Subscribe/Result.
type Client interface {
	// Name identifies the provider (e.g. "gemini").
	Name() string

	// List returns the models this client can serve, for model-selection
	// fallback chains.
	List(ctx context.Context) ([]ModelInfo, error)

	// Stream begins a model call and returns immediately with a stream
	// that the caller iterates for Event values, ending in a terminal
	// EventDone/EventError event whose Result() carries the finalized
	// AssistantMessage.
	Stream(ctx context.Context, modelID string, req Request) (*eventstream.Stream[Event, message.AssistantMessage], error)
}
