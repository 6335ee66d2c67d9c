package chat

import "encoding/json"

// ToolCall summarizes one tool_use/tool_result pair from an agent exchange.
type ToolCall struct {
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input"`
	Result string          `json:"result"`
}

// SummarizeExchange projects the messages appended by one agent exchange
// onto the API response shape: the final assistant text plus the tool calls
// in invocation order, each result joined back to its call by toolUseId.
// The slice is never nil so an exchange without tools serializes as [].
func SummarizeExchange(msgs []*Message) (string, []ToolCall) {
	var assistantText string
	calls := []ToolCall{}
	index := map[string]int{}
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			assistantText = m.Content
		case RoleToolUse:
			index[m.ToolUseID] = len(calls)
			calls = append(calls, ToolCall{Name: m.ToolName, Input: m.ToolInput})
		case RoleToolResult:
			if i, ok := index[m.ToolUseID]; ok {
				calls[i].Result = m.Content
			}
		}
	}
	return assistantText, calls
}
