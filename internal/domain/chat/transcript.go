package chat

import "fmt"

// TurnRole is the two-valued role of an LLM conversation turn.
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

// Turn is one vendor-neutral LLM message: a role plus ordered content
// blocks. The llm adapter converts turns into the vendor's wire shape.
type Turn struct {
	Role   TurnRole
	Blocks []Variant
}

// ToTurns translates a persisted transcript into LLM turns.
//
// Coalescing rules:
//   - user text starts a user turn, except directly after tool results,
//     where it joins the pending user turn.
//   - assistant text always starts a new assistant turn.
//   - tool_use attaches to the current assistant turn (coalescing with the
//     preceding assistant text); it never appears on a user turn.
//   - tool_result attaches to the current user turn, opening one if needed;
//     it never appears on an assistant turn.
//
// A tool_use immediately followed by its tool_result thus yields
// (assistant{text,tool_use})(user{tool_result}).
func ToTurns(messages []*Message) ([]Turn, error) {
	var turns []Turn

	last := func() *Turn {
		if len(turns) == 0 {
			return nil
		}
		return &turns[len(turns)-1]
	}
	push := func(role TurnRole, block Variant) {
		turns = append(turns, Turn{Role: role, Blocks: []Variant{block}})
	}

	for i, msg := range messages {
		v, err := msg.Variant()
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}

		switch block := v.(type) {
		case UserText:
			if t := last(); t != nil && t.Role == TurnUser && endsWithToolResult(t) {
				t.Blocks = append(t.Blocks, block)
			} else {
				push(TurnUser, block)
			}

		case AssistantText:
			push(TurnAssistant, block)

		case ToolUse:
			if t := last(); t != nil && t.Role == TurnAssistant {
				t.Blocks = append(t.Blocks, block)
			} else {
				push(TurnAssistant, block)
			}

		case ToolResult:
			if t := last(); t != nil && t.Role == TurnUser && endsWithToolResult(t) {
				t.Blocks = append(t.Blocks, block)
			} else {
				push(TurnUser, block)
			}
		}
	}

	return turns, nil
}

// endsWithToolResult reports whether the turn's last block is a tool result.
// Only such user turns accept further coalesced blocks; a plain user text
// turn is complete.
func endsWithToolResult(t *Turn) bool {
	if len(t.Blocks) == 0 {
		return false
	}
	_, ok := t.Blocks[len(t.Blocks)-1].(ToolResult)
	return ok
}

// RoleProjection flattens turns back to the ordered (role, toolUseID)
// sequence of the transcript. Used to check that translation preserves
// ordering and tool correlation.
func RoleProjection(turns []Turn) []string {
	var out []string
	for _, t := range turns {
		for _, b := range t.Blocks {
			switch block := b.(type) {
			case UserText:
				out = append(out, "user")
			case AssistantText:
				out = append(out, "assistant")
			case ToolUse:
				out = append(out, "tool_use:"+block.ToolUseID)
			case ToolResult:
				out = append(out, "tool_result:"+block.ToolUseID)
			}
		}
	}
	return out
}
