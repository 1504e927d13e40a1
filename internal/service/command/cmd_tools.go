package command

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/core"
)

type ToolLister interface {
	Definitions() []core.Tool
}

type ServerLister interface {
	Servers() []string
}

type ToolsCommand struct {
	tools     ToolLister
	formatter *ResponseFormatter
}

func NewToolsCommand(tools ToolLister) *ToolsCommand {
	return &ToolsCommand{tools: tools, formatter: NewResponseFormatter()}
}

func (c *ToolsCommand) Name() string {
	return "tools"
}

func (c *ToolsCommand) Description() string {
	return "List tools the model may call"
}

func (c *ToolsCommand) Execute(ctx context.Context, threadID string, args []string) (string, error) {
	defs := c.tools.Definitions()
	if len(defs) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("Tools"),
			c.formatter.Label("Status", "no tools declared"),
		), nil
	}

	items := make([]string, len(defs))
	for i, def := range defs {
		items[i] = fmt.Sprintf("%s  %s", def.Function.Name, oneLine(def.Function.Description, 80))
	}
	return c.formatter.Combine(
		c.formatter.Info("Tools"),
		c.formatter.Label("Declared", fmt.Sprintf("%d", len(defs))),
		c.formatter.List(items),
	), nil
}

type MCPCommand struct {
	servers   ServerLister
	formatter *ResponseFormatter
}

func NewMCPCommand(servers ServerLister) *MCPCommand {
	return &MCPCommand{servers: servers, formatter: NewResponseFormatter()}
}

func (c *MCPCommand) Name() string {
	return "mcp"
}

func (c *MCPCommand) Description() string {
	return "Show connected MCP servers"
}

func (c *MCPCommand) Execute(ctx context.Context, threadID string, args []string) (string, error) {
	servers := c.servers.Servers()
	if len(servers) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("MCP Servers"),
			c.formatter.Label("Status", "no MCP servers are connected"),
			c.formatter.Tip("check mcp_config.json in the runtime directory"),
		), nil
	}

	return c.formatter.Combine(
		c.formatter.Info("MCP Servers"),
		c.formatter.Label("Connected", fmt.Sprintf("%d", len(servers))),
		c.formatter.List(servers),
	), nil
}
