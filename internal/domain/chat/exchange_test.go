package chat

import (
	"encoding/json"
	"testing"
)

func TestSummarizeExchangeTextOnly(t *testing.T) {
	msgs := []*Message{
		NewUserMessage("s1", "hi"),
		NewAssistantMessage("s1", "hello"),
	}

	text, calls := SummarizeExchange(msgs)
	if text != "hello" {
		t.Errorf("assistantText = %q, want %q", text, "hello")
	}
	if calls == nil {
		t.Fatal("toolCalls is nil, want an empty slice")
	}
	if len(calls) != 0 {
		t.Errorf("toolCalls = %v, want empty", calls)
	}
}

func TestSummarizeExchangeToolLoop(t *testing.T) {
	input := json.RawMessage(`{"sql": "SELECT 1"}`)
	msgs := []*Message{
		NewUserMessage("s1", "how many?"),
		NewAssistantMessage("s1", "checking"),
		NewToolUseMessage("s1", "u1", "query", input),
		NewToolResultMessage("s1", "u1", "1"),
		NewAssistantMessage("s1", "one"),
	}

	text, calls := SummarizeExchange(msgs)
	if text != "one" {
		t.Errorf("assistantText = %q, want the final assistant text", text)
	}
	if len(calls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(calls))
	}
	call := calls[0]
	if call.Name != "query" || string(call.Input) != string(input) || call.Result != "1" {
		t.Errorf("tool call = %+v", call)
	}
}

func TestSummarizeExchangeResultJoinsByUseID(t *testing.T) {
	msgs := []*Message{
		NewToolUseMessage("s1", "u1", "query", json.RawMessage(`{"sql": "SELECT a"}`)),
		NewToolResultMessage("s1", "u1", "ra"),
		NewToolUseMessage("s1", "u2", "list_tables", nil),
		NewToolResultMessage("s1", "u2", "rb"),
		NewAssistantMessage("s1", "done"),
	}

	_, calls := SummarizeExchange(msgs)
	if len(calls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(calls))
	}
	if calls[0].Name != "query" || calls[0].Result != "ra" {
		t.Errorf("call 0 = %+v", calls[0])
	}
	if calls[1].Name != "list_tables" || calls[1].Result != "rb" {
		t.Errorf("call 1 = %+v", calls[1])
	}
}
