// Package mcp connects to the MCP servers listed in mcp_config.json and
// declares their tools on the dispatcher.
package mcp

import "fmt"

type TransportType string

const (
	TransportHTTP  TransportType = "http"
	TransportSSE   TransportType = "sse"
	TransportStdio TransportType = "stdio"
)

type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig is one entry of mcp_config.json. URL selects streamable
// HTTP unless Type is "sse"; Command selects stdio.
type ServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// Disabled servers stay in the file but are not connected.
	Disabled bool `json:"disabled,omitempty"`
}

func (c *ServerConfig) GetTransport() (TransportType, error) {
	if c.URL != "" {
		if TransportType(c.Type) == TransportSSE {
			return TransportSSE, nil
		}
		return TransportHTTP, nil
	}
	if c.Command != "" {
		return TransportStdio, nil
	}
	return "", fmt.Errorf("invalid config: neither url nor command provided")
}
