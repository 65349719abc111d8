// Package mcpserver exposes the calculator operations as MCP tools.
package mcpserver

import (
	"context"
	"fmt"
	"time"

	mcp "trpc.group/trpc-go/trpc-mcp-go"

	"github.com/hession/calcmate/internal/audit"
	"github.com/hession/calcmate/internal/config"
	"github.com/hession/calcmate/internal/dispatch"
	"github.com/hession/calcmate/internal/logger"
	"github.com/hession/calcmate/internal/tools"
)

// Bridge turns MCP tool calls into dispatcher invocations
type Bridge struct {
	dispatcher *dispatch.Dispatcher
	store      audit.Store
}

// Option configures the Bridge instance.
type Option func(*Bridge)

// WithAuditStore records every tool call in store.
func WithAuditStore(store audit.Store) Option {
	return func(b *Bridge) { b.store = store }
}

// New creates a bridge over dispatcher.
func New(dispatcher *dispatch.Dispatcher, opts ...Option) *Bridge {
	b := &Bridge{dispatcher: dispatcher}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler returns the tool handler for the named operation.
// Arguments arrive as decoded JSON and go through the dispatcher unchanged.
func (b *Bridge) Handler(name string) toolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		var args map[string]any
		if req != nil {
			args = req.Params.Arguments
		}
		call := dispatch.NewRequest(name, args)
		res := b.dispatcher.Invoke(call)
		b.record(call, res, time.Since(start))

		if !res.OK() {
			return mcp.NewErrorResult(res.String()), nil
		}
		return mcp.NewTextResult(res.Text), nil
	}
}

func (b *Bridge) record(req dispatch.Request, res dispatch.Result, elapsed time.Duration) {
	if b.store == nil {
		return
	}
	entry := audit.NewEntry(audit.TransportMCP, req, res, elapsed)
	entry.Endpoint = "tools/call"
	if err := b.store.Record(entry); err != nil {
		logger.Warn("Failed to record audit entry for %s: %v", req.OperationName, err)
	}
}

// ServeHTTP runs a streamable HTTP MCP server on cfg.Address. It blocks until the server stops.
func (b *Bridge) ServeHTTP(cfg config.MCPConfig) error {
	server := mcp.NewServer(cfg.ServerName, cfg.ServerVersion, mcp.WithServerAddress(cfg.Address))
	b.registerTools(func(tool *mcp.Tool, handler toolHandler) {
		server.RegisterTool(tool, handler)
	})

	logger.Info("MCP server listening on %s (%d tools)", cfg.Address, b.dispatcher.Registry().Len())
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to run MCP server: %w", err)
	}
	return nil
}

// ServeStdio runs an MCP server over stdin/stdout. It blocks until stdin closes.
func (b *Bridge) ServeStdio(name, version string) error {
	server := mcp.NewStdioServer(name, version, mcp.WithStdioServerLogger(Logger{}))
	b.registerTools(func(tool *mcp.Tool, handler toolHandler) {
		server.RegisterTool(tool, handler)
	})

	logger.Info("MCP stdio server started (%d tools)", b.dispatcher.Registry().Len())
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to run MCP stdio server: %w", err)
	}
	return nil
}

type toolHandler = func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// registerTools hands every registry operation to register as an MCP tool
func (b *Bridge) registerTools(register func(tool *mcp.Tool, handler toolHandler)) {
	for _, spec := range b.dispatcher.Registry().List() {
		register(newTool(spec), b.Handler(spec.Name))
	}
}

// newTool describes an operation as an MCP tool with one number property per parameter
func newTool(spec tools.OperationSpec) *mcp.Tool {
	opts := make([]mcp.ToolOption, 0, len(spec.Parameters)+1)
	opts = append(opts, mcp.WithDescription(spec.Description))
	for _, p := range spec.Parameters {
		if p.Required {
			opts = append(opts, mcp.WithNumber(p.Name, mcp.Required(), mcp.Description(p.Description)))
		} else {
			opts = append(opts, mcp.WithNumber(p.Name, mcp.Description(p.Description)))
		}
	}
	return mcp.NewTool(spec.Name, opts...)
}
