package llmclient

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient builds a client for the given model using apiKey.
func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llmclient: anthropic api key is required")
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{client: &c, model: model}, nil
}

// toAnthropicMessages builds one MessageParam per Message, emitting
// tool_use blocks for an assistant's tool calls and tool_result blocks
// for their paired outcomes (spec.md §4.6), the way the teacher's
// MessageBuilderService turns stored tool_use/tool_result rows back
// into provider content blocks.
func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolResults))
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tr := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func toAnthropicTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: t.Parameters["properties"],
			Required:   toStringSlice(t.Parameters["required"]),
		}, t.Name))
	}
	return out
}

func toStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (c *AnthropicClient) buildParams(req GenerateRequest) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  toAnthropicMessages(req.Messages),
		MaxTokens: maxTokens,
		Tools:     toAnthropicTools(req.Tools),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params
}

// Generate implements Client.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	params := c.buildParams(req)
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llmclient: anthropic generate: %w", err)
	}

	resp := &GenerateResponse{StopReason: string(message.StopReason)}
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += b.Text
		case anthropic.ToolUseBlock:
			args, _ := asJSONObject(b.Input)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}
	return resp, nil
}

// StreamText implements Client.
func (c *AnthropicClient) StreamText(ctx context.Context, req GenerateRequest) (<-chan TextDelta, <-chan error) {
	deltas := make(chan TextDelta, 16)
	errs := make(chan error, 1)

	params := c.buildParams(req)

	go func() {
		defer close(deltas)
		defer close(errs)

		stream := c.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			switch e := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if e.Delta.Type == "text_delta" && e.Delta.Text != "" {
					select {
					case <-ctx.Done():
						errs <- ctx.Err()
						return
					case deltas <- TextDelta{Text: e.Delta.Text}:
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errs <- fmt.Errorf("llmclient: anthropic stream: %w", err)
			return
		}
		deltas <- TextDelta{Done: true}
	}()

	return deltas, errs
}

func asJSONObject(raw interface{}) (map[string]interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	if m, ok := raw.(map[string]interface{}); ok {
		return m, nil
	}
	return nil, fmt.Errorf("llmclient: tool input was not a JSON object")
}
