// Package llmclient defines the capability surface the agent pipeline
// needs from a language model provider: structured generation for the
// classifier and follow-up generator, tool-calling for the research
// loop, and streaming text generation for the answer writer.
package llmclient

import "context"

// Message is one turn of conversation handed to the model. A plain
// turn carries only Content. An assistant turn that called tools also
// carries ToolCalls alongside (or instead of) Content; the paired user
// turn that reports their outcomes carries ToolResults instead of
// Content (spec.md §4.6: "append an assistant tool_calls message ...
// and per-tool tool result messages").
type Message struct {
	Role        string // "user" or "assistant"
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolSpec describes one callable tool in JSON-schema form, mirroring
// the provider's function-calling contract.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolResult is fed back to the model after a tool call executes.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// GenerateRequest parameterizes a single call to the model.
type GenerateRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int
	Temperature *float64
}

// GenerateResponse is a non-streaming model response, possibly
// carrying tool calls instead of (or alongside) text.
type GenerateResponse struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
}

// TextDelta is one incremental chunk of a streaming text response.
type TextDelta struct {
	Text string
	Done bool
}

// Client is the capability interface the agent pipeline programs
// against; Anthropic is the only backing implementation today but the
// interface makes that substitutable.
type Client interface {
	// Generate performs one blocking call, used for tool-calling rounds
	// in the research loop and for structured-output calls (classifier,
	// follow-up generator) where the caller parses Text as JSON.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// StreamText performs one blocking call and streams text deltas as
	// they arrive, used by the answer writer. The channel is closed
	// when the stream ends, whether by completion or error; a final
	// error (if any) is available via the returned error value once the
	// channel is drained, mirroring the teacher's accumulate-then-close
	// streaming discipline.
	StreamText(ctx context.Context, req GenerateRequest) (<-chan TextDelta, <-chan error)
}
