package llmclient

import "testing"

func TestToStringSliceExtractsStrings(t *testing.T) {
	got := toStringSlice([]interface{}{"a", "b", 3, "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestToStringSliceNilOnWrongType(t *testing.T) {
	if got := toStringSlice("not a slice"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestToAnthropicMessagesPreservesOrder(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}
	out := toAnthropicMessages(msgs)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
}

func TestToAnthropicMessagesBuildsToolUseAndResultBlocks(t *testing.T) {
	msgs := []Message{
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "call-1", Name: "web_search", Arguments: map[string]interface{}{"q": "go"}}}},
		{Role: "user", ToolResults: []ToolResult{{ToolCallID: "call-1", Content: "1 result", IsError: false}}},
	}
	out := toAnthropicMessages(msgs)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
}
