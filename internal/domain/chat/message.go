// Package chat defines conversation sessions, the message sum type, and the
// transcript translation that feeds the LLM.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Role tags the closed set of message variants. Every persisted message is
// exactly one of these; the optional fields a role carries are fixed by the
// variant, not probed at use sites.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolUse    Role = "tool_use"
	RoleToolResult Role = "tool_result"
)

// Sentinel errors for the chat layer.
var (
	// ErrSessionNotFound indicates the conversation session does not exist
	// (or is not owned by the caller, which reads the same from outside).
	ErrSessionNotFound = errors.New("conversation session not found")

	// ErrMalformedMessage indicates a persisted message violates its
	// variant's shape (e.g. a tool_use without a toolUseId).
	ErrMalformedMessage = errors.New("malformed message")
)

// Message is the persisted record of one transcript entry. Use the
// constructors; they enforce the per-variant field shape that Variant()
// later relies on.
type Message struct {
	ID        string          `bson:"_id,omitempty" json:"id,omitempty"`
	SessionID string          `bson:"sessionId" json:"sessionId"`
	Role      Role            `bson:"role" json:"role"`
	Content   string          `bson:"content" json:"content"`
	ToolName  string          `bson:"toolName,omitempty" json:"toolName,omitempty"`
	ToolInput json.RawMessage `bson:"toolInput,omitempty" json:"toolInput,omitempty"`
	ToolUseID string          `bson:"toolUseId,omitempty" json:"toolUseId,omitempty"`
	CreatedAt time.Time       `bson:"createdAt" json:"createdAt"`
}

// NewUserMessage builds a user text message.
func NewUserMessage(sessionID, text string) *Message {
	return &Message{SessionID: sessionID, Role: RoleUser, Content: text, CreatedAt: time.Now()}
}

// NewAssistantMessage builds an assistant text message.
func NewAssistantMessage(sessionID, text string) *Message {
	return &Message{SessionID: sessionID, Role: RoleAssistant, Content: text, CreatedAt: time.Now()}
}

// NewToolUseMessage builds a tool_use message. toolUseID correlates the
// eventual tool_result back to this call.
func NewToolUseMessage(sessionID, toolUseID, toolName string, input json.RawMessage) *Message {
	return &Message{
		SessionID: sessionID,
		Role:      RoleToolUse,
		ToolName:  toolName,
		ToolInput: input,
		ToolUseID: toolUseID,
		CreatedAt: time.Now(),
	}
}

// NewToolResultMessage builds a tool_result message for a prior tool_use.
func NewToolResultMessage(sessionID, toolUseID, content string) *Message {
	return &Message{
		SessionID: sessionID,
		Role:      RoleToolResult,
		Content:   content,
		ToolUseID: toolUseID,
		CreatedAt: time.Now(),
	}
}

// Variant is the closed sum over message shapes. Translation code switches
// exhaustively over the four concrete types.
type Variant interface {
	isVariant()
}

// UserText is a plain user turn.
type UserText struct {
	Text string
}

// AssistantText is a plain assistant turn.
type AssistantText struct {
	Text string
}

// ToolUse is an assistant-originated tool invocation.
type ToolUse struct {
	ToolUseID string
	ToolName  string
	Input     json.RawMessage
}

// ToolResult is the outcome of a prior ToolUse, fed back as user content.
type ToolResult struct {
	ToolUseID string
	Content   string
}

func (UserText) isVariant()      {}
func (AssistantText) isVariant() {}
func (ToolUse) isVariant()       {}
func (ToolResult) isVariant()    {}

// Variant projects the persisted record onto the sum type, validating the
// per-role field shape.
func (m *Message) Variant() (Variant, error) {
	switch m.Role {
	case RoleUser:
		return UserText{Text: m.Content}, nil
	case RoleAssistant:
		return AssistantText{Text: m.Content}, nil
	case RoleToolUse:
		if m.ToolUseID == "" || m.ToolName == "" {
			return nil, fmt.Errorf("%w: tool_use missing toolUseId or toolName", ErrMalformedMessage)
		}
		return ToolUse{ToolUseID: m.ToolUseID, ToolName: m.ToolName, Input: m.ToolInput}, nil
	case RoleToolResult:
		if m.ToolUseID == "" {
			return nil, fmt.Errorf("%w: tool_result missing toolUseId", ErrMalformedMessage)
		}
		return ToolResult{ToolUseID: m.ToolUseID, Content: m.Content}, nil
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrMalformedMessage, m.Role)
	}
}
