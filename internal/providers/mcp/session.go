package mcp

import (
	"context"
	"sync"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
)

// Session is the part of an MCP client the source needs. *client.Client
// implements it.
type Session interface {
	ListTools(ctx context.Context, req mcpproto.ListToolsRequest) (*mcpproto.ListToolsResult, error)
	CallTool(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error)
	Close() error
}

// ManagedClient guards a session against double close and calls after close.
type ManagedClient struct {
	Session
	mu     sync.RWMutex
	closed bool
	name   string
}

func (mc *ManagedClient) Name() string {
	return mc.name
}

func (mc *ManagedClient) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.closed {
		return nil
	}
	mc.closed = true
	if mc.Session == nil {
		return nil
	}
	return mc.Session.Close()
}

func (mc *ManagedClient) IsClosed() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.closed
}
