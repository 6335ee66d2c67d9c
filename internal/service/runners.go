package service

import (
	"context"

	"github.com/chetandr-lohono/lohono-db-connect/internal/adapter/outbound/mcpclient"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/tool"
	"github.com/chetandr-lohono/lohono-db-connect/internal/toolset"
)

// CatalogRunner runs tools against the in-process catalog.
type CatalogRunner struct {
	Catalog *toolset.Catalog
}

var _ ToolRunner = (*CatalogRunner)(nil)

func (r *CatalogRunner) ListTools(ctx context.Context, email string) []tool.Descriptor {
	return r.Catalog.VisibleDescriptors(ctx, email)
}

func (r *CatalogRunner) RunTool(ctx context.Context, name string, args map[string]any, email string) (string, bool, error) {
	res, err := r.Catalog.Invoke(ctx, name, args, email)
	if err != nil {
		return "", false, err
	}
	return res.JoinedText(), res.IsError, nil
}

// BridgeRunner runs tools through a remote MCP server. The remote side does
// its own ACL filtering; listing returns whatever it advertises.
type BridgeRunner struct {
	Bridge *mcpclient.Bridge
}

var _ ToolRunner = (*BridgeRunner)(nil)

func (r *BridgeRunner) ListTools(ctx context.Context, email string) []tool.Descriptor {
	return r.Bridge.Tools()
}

func (r *BridgeRunner) RunTool(ctx context.Context, name string, args map[string]any, email string) (string, bool, error) {
	return r.Bridge.CallTool(ctx, name, args, email)
}
