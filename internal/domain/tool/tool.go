// Package tool defines the descriptor and result types shared by the tool
// catalog, the ACL engine, and the MCP dispatch layer.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Descriptor describes a callable tool: its name, a description for the LLM,
// and a JSON-schema object constraining its arguments.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Handler executes a tool call and returns the textual result.
// Arguments arrive schema-validated; handlers may still reject values the
// schema cannot express (e.g. unknown pattern names).
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Registration pairs a descriptor with its handler for catalog assembly.
type Registration struct {
	Descriptor Descriptor
	Handler    Handler
}

// Content is a single content block in a tool result.
// Only text blocks are produced by this catalog.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the MCP-shaped outcome of a tool call. Expected failures
// (denials, validation errors, backend errors) are results with IsError set,
// not protocol errors.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult wraps text in a successful result.
func TextResult(text string) *Result {
	return &Result{Content: []Content{{Type: "text", Text: text}}}
}

// ErrorResult formats a message into an error result.
func ErrorResult(format string, args ...any) *Result {
	return &Result{
		Content: []Content{{Type: "text", Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// JoinedText concatenates the text blocks of a result with newlines.
// This is the shape the LLM bridge feeds back into the conversation.
func (r *Result) JoinedText() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
