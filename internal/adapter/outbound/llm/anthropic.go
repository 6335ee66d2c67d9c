// Package llm adapts vendor-neutral conversation turns onto the Anthropic
// messages API. The agent loop never sees SDK types; it works in chat.Turn
// and chat.Variant and this package does the wire translation both ways.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chetandr-lohono/lohono-db-connect/internal/config"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/chat"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
)

// ToolDef is one tool advertised to the model.
type ToolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Response is one completed model round: the assistant's content blocks in
// order, the stop reason, and token usage.
type Response struct {
	Blocks       []chat.Variant
	StopReason   string
	InputTokens  int64
	OutputTokens int64
}

// StopToolUse is the stop reason indicating the model wants tool calls run.
const StopToolUse = "tool_use"

// Client wraps the Anthropic SDK with the conversation-turn translation.
type Client struct {
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics attaches token usage counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New builds the messages client from configuration.
func New(cfg config.LLMConfig, opts ...Option) *Client {
	c := &Client{
		api:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete runs one non-streaming model round.
func (c *Client) Complete(ctx context.Context, system string, turns []chat.Turn, tools []ToolDef) (*Response, error) {
	msgs, err := encodeTurns(turns)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		MaxTokens: c.maxTokens,
		Messages:  msgs,
		Model:     c.model,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		encoded, err := encodeTools(tools)
		if err != nil {
			return nil, err
		}
		params.Tools = encoded
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}

	resp := translateMessage(msg)
	if c.metrics != nil {
		c.metrics.LLMTokensTotal.WithLabelValues("input").Add(float64(resp.InputTokens))
		c.metrics.LLMTokensTotal.WithLabelValues("output").Add(float64(resp.OutputTokens))
	}
	c.logger.DebugContext(ctx, "model round complete",
		"stop_reason", resp.StopReason,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return resp, nil
}

// encodeTurns converts vendor-neutral turns into SDK message params.
func encodeTurns(turns []chat.Turn) ([]anthropic.MessageParam, error) {
	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for i, turn := range turns {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Blocks))
		for _, v := range turn.Blocks {
			switch b := v.(type) {
			case chat.UserText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case chat.AssistantText:
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case chat.ToolUse:
				var input any
				if len(b.Input) > 0 {
					input = b.Input
				} else {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUseID, input, b.ToolName))
			case chat.ToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, false))
			default:
				return nil, fmt.Errorf("turn %d: unsupported block type %T", i, v)
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch turn.Role {
		case chat.TurnUser:
			msgs = append(msgs, anthropic.NewUserMessage(blocks...))
		case chat.TurnAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("turn %d: unsupported role %q", i, turn.Role)
		}
	}
	return msgs, nil
}

// encodeTools converts tool descriptors into SDK tool params. Input schemas
// are JSON schema documents; the SDK takes them as loose maps.
func encodeTools(tools []ToolDef) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schemaFields map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schemaFields); err != nil {
				return nil, fmt.Errorf("tool %q: invalid input schema: %w", t.Name, err)
			}
		}
		u := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{ExtraFields: schemaFields}, t.Name)
		if u.OfTool != nil && t.Description != "" {
			u.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

// translateMessage maps the SDK response onto conversation variants.
// Unknown block types are skipped rather than failed; the API may grow
// block kinds this server does not use.
func translateMessage(msg *anthropic.Message) *Response {
	resp := &Response{
		StopReason:   string(msg.StopReason),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				resp.Blocks = append(resp.Blocks, chat.AssistantText{Text: block.Text})
			}
		case "tool_use":
			resp.Blocks = append(resp.Blocks, chat.ToolUse{
				ToolUseID: block.ID,
				ToolName:  block.Name,
				Input:     json.RawMessage(block.Input),
			})
		}
	}
	return resp
}
