// Package mcp bridges tool names of the form "<tool>@<server>" onto
// MCP servers, discovering their tool lists at startup and dispatching
// calls by stripping the server suffix. Grounded on hieuntg81-alfred-ai's
// internal/adapter/tool/mcp_bridge.go.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ServerConfig describes one MCP server to connect to.
type ServerConfig struct {
	Name      string
	Transport string // "stdio" | "http"
	Command   string
	Args      []string
	Env       map[string]string
	URL       string
}

type serverClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type serverConn struct {
	name   string
	client serverClient
	tools  map[string]mcp.Tool
}

// Client manages MCP server connections and dispatches "<tool>@<server>"
// calls to the matching server.
type Client struct {
	mu      sync.RWMutex
	servers map[string]*serverConn
	logger  *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{servers: make(map[string]*serverConn), logger: logger}
}

// Connect establishes and initializes a server connection and discovers its
// tool list. Failures here are non-fatal to the caller: a server that can't
// connect just has no tools resolvable under its name.
func (c *Client) Connect(ctx context.Context, cfg ServerConfig) error {
	var client serverClient
	var err error

	switch cfg.Transport {
	case "stdio":
		client, err = mcpclient.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
		if err != nil {
			return fmt.Errorf("create stdio client: %w", err)
		}
	case "http":
		t, tErr := transport.NewStreamableHTTP(cfg.URL)
		if tErr != nil {
			return fmt.Errorf("create http transport: %w", tErr)
		}
		httpClient := mcpclient.NewClient(t)
		if err := httpClient.Start(ctx); err != nil {
			return fmt.Errorf("start http client: %w", err)
		}
		client = httpClient
	default:
		return fmt.Errorf("unsupported mcp transport %q", cfg.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "orchestrion", Version: "1.0.0"}
	if ic, ok := client.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err := ic.Initialize(ctx, initReq); err != nil {
			client.Close()
			return fmt.Errorf("initialize mcp server %s: %w", cfg.Name, err)
		}
	}

	listResult, err := client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		client.Close()
		return fmt.Errorf("list tools for mcp server %s: %w", cfg.Name, err)
	}

	tools := make(map[string]mcp.Tool, len(listResult.Tools))
	for _, t := range listResult.Tools {
		tools[t.Name] = t
	}

	c.mu.Lock()
	c.servers[cfg.Name] = &serverConn{name: cfg.Name, client: client, tools: tools}
	c.mu.Unlock()

	c.logger.Info("mcp server connected", "name", cfg.Name, "transport", cfg.Transport, "tool_count", len(tools))
	return nil
}

// Call dispatches fullName ("<tool>@<server>") to the matching server.
func (c *Client) Call(ctx context.Context, fullName string, args map[string]interface{}) (interface{}, error) {
	toolName, serverName, ok := splitToolName(fullName)
	if !ok {
		return nil, fmt.Errorf("malformed mcp tool name %q", fullName)
	}

	c.mu.RLock()
	conn, ok := c.servers[serverName]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown mcp server %q", serverName)
	}
	if _, ok := conn.tools[toolName]; !ok {
		return nil, fmt.Errorf("mcp server %q has no tool %q", serverName, toolName)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	result, err := conn.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp call %s: %w", fullName, err)
	}

	return map[string]interface{}{
		"ok":   !result.IsError,
		"data": map[string]interface{}{"content": extractContent(result)},
	}, nil
}

// HasTool reports whether fullName ("<tool>@<server>") resolves to a
// connected server that discovered that tool.
func (c *Client) HasTool(fullName string) bool {
	toolName, serverName, ok := splitToolName(fullName)
	if !ok {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.servers[serverName]
	if !ok {
		return false
	}
	_, ok = conn.tools[toolName]
	return ok
}

// Descriptor is one discovered MCP tool, named "<tool>@<server>" to match
// the dispatch convention Call/HasTool expect.
type Descriptor struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Descriptors lists every tool discovered across all connected servers, for
// the orchestrator to fold into the round loop's candidate tool set
// alongside builtins and the terminal tools.
func (c *Client) Descriptors() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Descriptor
	for _, conn := range c.servers {
		for _, t := range conn.tools {
			params := map[string]interface{}{"type": "object"}
			if data, err := json.Marshal(t.InputSchema); err == nil {
				var decoded map[string]interface{}
				if json.Unmarshal(data, &decoded) == nil {
					params = decoded
				}
			}
			desc := t.Description
			if desc == "" {
				desc = fmt.Sprintf("MCP tool %q from server %q", t.Name, conn.name)
			}
			out = append(out, Descriptor{
				Name:        fmt.Sprintf("%s@%s", t.Name, conn.name),
				Description: desc,
				Parameters:  params,
			})
		}
	}
	return out
}

// Close shuts down every connected server.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.servers {
		if err := conn.client.Close(); err != nil {
			c.logger.Warn("mcp server close error", "server", conn.name, "error", err)
		}
	}
}

func splitToolName(fullName string) (tool, server string, ok bool) {
	idx := strings.LastIndex(fullName, "@")
	if idx < 0 || idx == len(fullName)-1 {
		return "", "", false
	}
	return fullName[:idx], fullName[idx+1:], true
}

func extractContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
