package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/llm"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/chat"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/tool"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
)

// MaxRounds caps the model/tool loop per user message. The counter guards
// against tool-call loops; a well-behaved exchange finishes in a few rounds.
const MaxRounds = 20

const systemPrompt = `You are a data assistant for the Lohono sales team with read-only access to the reporting database through tools. Use the schema introspection tools before guessing table shapes, prefer the sales funnel query patterns for funnel questions, and always use positional parameters instead of splicing values into SQL. Answer concisely and show the numbers you found.`

// ModelClient is the single LLM round the agent depends on.
// Implemented by *llm.Client.
type ModelClient interface {
	Complete(ctx context.Context, system string, turns []chat.Turn, tools []llm.ToolDef) (*llm.Response, error)
}

// ToolRunner lists and executes tools for a caller identity. Implemented by
// the in-process catalog and by the MCP bridge.
type ToolRunner interface {
	ListTools(ctx context.Context, email string) []tool.Descriptor
	RunTool(ctx context.Context, name string, args map[string]any, email string) (text string, isError bool, err error)
}

// Agent runs the conversation loop: persist the user message, feed the
// transcript to the model, execute requested tools, and persist every block
// until the model stops asking for tools.
type Agent struct {
	store   chat.Store
	model   ModelClient
	tools   ToolRunner
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewAgent wires the agent service.
func NewAgent(store chat.Store, model ModelClient, tools ToolRunner, metrics *observability.Metrics, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{store: store, model: model, tools: tools, metrics: metrics, logger: logger}
}

// SendMessage appends a user message to the session and runs the agent loop
// to completion. Returns every message appended by this call, the user's
// included, in persistence order.
func (a *Agent) SendMessage(ctx context.Context, sessionID, userID, text string) ([]*chat.Message, error) {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		// Foreign sessions read as absent; existence is not disclosed.
		return nil, chat.ErrSessionNotFound
	}

	prior, err := a.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var appended []*chat.Message
	persist := func(msg *chat.Message) error {
		if err := a.store.AppendMessage(ctx, msg); err != nil {
			return err
		}
		appended = append(appended, msg)
		return nil
	}

	if err := persist(chat.NewUserMessage(sessionID, text)); err != nil {
		return nil, err
	}
	if len(prior) == 0 {
		if err := a.store.UpdateTitle(ctx, sessionID, chat.SynthesizeTitle(text)); err != nil {
			a.logger.WarnContext(ctx, "failed to set session title", "session", sessionID, "error", err)
		}
	}

	toolDefs := a.toolDefs(ctx, userID)

	rounds := 0
	for rounds < MaxRounds {
		if err := ctx.Err(); err != nil {
			return appended, err
		}
		rounds++

		resp, err := a.runRound(ctx, sessionID, rounds, toolDefs)
		if err != nil {
			return appended, err
		}

		ranTools := false
		for _, block := range resp.Blocks {
			switch b := block.(type) {
			case chat.AssistantText:
				if err := persist(chat.NewAssistantMessage(sessionID, b.Text)); err != nil {
					return appended, err
				}
			case chat.ToolUse:
				ranTools = true
				if err := persist(chat.NewToolUseMessage(sessionID, b.ToolUseID, b.ToolName, b.Input)); err != nil {
					return appended, err
				}
				content := a.runTool(ctx, b, userID)
				if err := persist(chat.NewToolResultMessage(sessionID, b.ToolUseID, content)); err != nil {
					return appended, err
				}
			}
		}

		// A tool_use stop reason without any tool_use blocks would replay an
		// unchanged transcript, so it ends the loop too.
		if resp.StopReason != llm.StopToolUse || !ranTools {
			break
		}
	}

	if a.metrics != nil {
		a.metrics.AgentRounds.Observe(float64(rounds))
	}
	a.logger.InfoContext(ctx, "agent exchange complete",
		"session", sessionID, "rounds", rounds, "messages", len(appended))
	return appended, nil
}

// runRound replays the transcript and asks the model for the next blocks.
func (a *Agent) runRound(ctx context.Context, sessionID string, round int, toolDefs []llm.ToolDef) (*llm.Response, error) {
	ctx, span := observability.Tracer().Start(ctx, "agent.round",
		trace.WithAttributes(attribute.Int("round", round)))
	defer span.End()

	msgs, err := a.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := chat.ToTurns(msgs)
	if err != nil {
		return nil, err
	}
	return a.model.Complete(ctx, systemPrompt, turns, toolDefs)
}

// runTool executes one requested tool call. Failures become in-band
// tool_result content so the model can recover; the loop never aborts on a
// single bad call.
func (a *Agent) runTool(ctx context.Context, call chat.ToolUse, userID string) string {
	ctx, span := observability.Tracer().Start(ctx, "agent.tool",
		trace.WithAttributes(attribute.String("tool", call.ToolName)))
	defer span.End()

	args := map[string]any{}
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return fmt.Sprintf("Error: invalid tool arguments: %v", err)
		}
	}

	text, isError, err := a.tools.RunTool(ctx, call.ToolName, args, userID)
	if err != nil {
		a.logger.WarnContext(ctx, "tool call failed",
			"tool", call.ToolName, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	if isError {
		a.logger.InfoContext(ctx, "tool returned error result", "tool", call.ToolName)
	}
	return text
}

func (a *Agent) toolDefs(ctx context.Context, email string) []llm.ToolDef {
	descriptors := a.tools.ListTools(ctx, email)
	defs := make([]llm.ToolDef, 0, len(descriptors))
	for _, d := range descriptors {
		defs = append(defs, llm.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}
	return defs
}
