// Package toolset assembles the tool catalog and runs every invocation
// through the common gate: access check, schema validation, handler, and
// error capture. Expected failures (denials, bad arguments, backend errors)
// come back as error results, never as Go errors; only an unknown tool name
// is a protocol-level error for the dispatcher to map.
package toolset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/postgres"
	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/redash"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/acl"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/tool"
	"github.com/chetandr-lohono/lohono-db-connect/internal/observability"
)

// ErrUnknownTool indicates the tool name is not in the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// Relational is the read-only SQL surface the database tools need.
// Satisfied by *postgres.Pool.
type Relational interface {
	ExecuteReadOnly(ctx context.Context, query string, params []any) (*postgres.QueryResult, error)
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]postgres.TableInfo, error)
	DescribeTable(ctx context.Context, schema, table string) ([]postgres.ColumnInfo, error)
}

// QueryStore is the BI query-fetch surface the redash tools need.
// Satisfied by *redash.Client.
type QueryStore interface {
	Configured() bool
	GetQuery(ctx context.Context, id int) (*redash.Query, error)
}

// Deps are the backends the catalog wires tools onto.
type Deps struct {
	DB      Relational
	Redash  QueryStore
	Engine  *acl.Engine
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Catalog is the assembled tool set.
type Catalog struct {
	regs    map[string]tool.Registration
	order   []string
	schemas map[string]*jsonschema.Schema
	engine  *acl.Engine
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New builds the catalog and compiles every input schema. A schema that does
// not compile is a programming error and fails startup.
func New(deps Deps) (*Catalog, error) {
	c := &Catalog{
		regs:    map[string]tool.Registration{},
		schemas: map[string]*jsonschema.Schema{},
		engine:  deps.Engine,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	for _, reg := range buildRegistrations(deps) {
		if err := c.register(reg); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) register(reg tool.Registration) error {
	name := reg.Descriptor.Name
	if _, dup := c.regs[name]; dup {
		return fmt.Errorf("duplicate tool %q", name)
	}

	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(reg.Descriptor.InputSchema)); err != nil {
		return fmt.Errorf("tool %q: invalid input schema: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("tool %q: failed to compile input schema: %w", name, err)
	}

	c.regs[name] = reg
	c.order = append(c.order, name)
	c.schemas[name] = schema
	return nil
}

// Descriptors returns every tool descriptor in registration order.
func (c *Catalog) Descriptors() []tool.Descriptor {
	out := make([]tool.Descriptor, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.regs[name].Descriptor)
	}
	return out
}

// VisibleDescriptors returns the descriptors the caller may invoke, so tool
// listings never advertise what a later call would deny.
func (c *Catalog) VisibleDescriptors(ctx context.Context, email string) []tool.Descriptor {
	return c.engine.FilterTools(ctx, c.Descriptors(), email)
}

// Invoke runs one tool call through the gate. The error return is non-nil
// only for unknown tool names; everything else is an in-band result.
func (c *Catalog) Invoke(ctx context.Context, name string, args map[string]any, email string) (*tool.Result, error) {
	reg, ok := c.regs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	decision := c.engine.CheckToolAccess(ctx, name, email)
	if !decision.Allowed {
		c.count(name, "denied")
		c.logger.InfoContext(ctx, "tool access denied",
			"tool", name, "email", email, "reason", decision.Reason)
		return tool.ErrorResult("%s", decision.Reason), nil
	}

	if err := c.validateArgs(name, args); err != nil {
		c.count(name, "error")
		return tool.ErrorResult("Invalid arguments for %s: %v", name, err), nil
	}

	text, err := reg.Handler(ctx, args)
	if err != nil {
		c.count(name, "error")
		c.logger.WarnContext(ctx, "tool call failed", "tool", name, "error", err)
		return tool.ErrorResult("%s", err.Error()), nil
	}

	c.count(name, "ok")
	return tool.TextResult(text), nil
}

// validateArgs checks args against the tool's compiled schema. Arguments are
// round-tripped through JSON first so callers that built the map in Go (with
// int values and the like) validate the same as wire-decoded ones.
func (c *Catalog) validateArgs(name string, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return c.schemas[name].Validate(decoded)
}

func (c *Catalog) count(name, status string) {
	if c.metrics != nil {
		c.metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
	}
}

// buildRegistrations wires the full tool list onto the backends.
func buildRegistrations(deps Deps) []tool.Registration {
	regs := []tool.Registration{
		queryTool(deps.DB),
		listTablesTool(deps.DB),
		describeTableTool(deps.DB),
		listSchemasTool(deps.DB),
		salesFunnelContextTool(),
		classifySalesIntentTool(),
		queryTemplateTool(),
		listQueryPatternsTool(),
		analyzeQueryTool(),
		generateRulesTool(),
		fetchRedashQueryTool(deps.Redash),
		generateRulesFromRedashTool(deps.Redash),
	}
	return regs
}

// stringArg extracts an optional string argument.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// marshalJSON serializes a handler payload for the text result.
func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize result: %w", err)
	}
	return string(data), nil
}
