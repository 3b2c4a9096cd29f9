package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeServerClient struct {
	tools      []mcp.Tool
	callResult *mcp.CallToolResult
	callErr    error
	closed     bool
}

func (f *fakeServerClient) ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeServerClient) CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.callResult, nil
}

func (f *fakeServerClient) Close() error {
	f.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClientWithServer(t *testing.T, name string, fake *fakeServerClient) *Client {
	t.Helper()
	c := NewClient(discardLogger())
	c.servers[name] = &serverConn{name: name, client: fake, tools: toolMap(fake.tools)}
	return c
}

func toolMap(tools []mcp.Tool) map[string]mcp.Tool {
	m := make(map[string]mcp.Tool, len(tools))
	for _, t := range tools {
		m[t.Name] = t
	}
	return m
}

func TestSplitToolName(t *testing.T) {
	tool, server, ok := splitToolName("search@docs-server")
	if !ok || tool != "search" || server != "docs-server" {
		t.Fatalf("expected search/docs-server, got %q/%q ok=%v", tool, server, ok)
	}
	if _, _, ok := splitToolName("no-at-sign"); ok {
		t.Fatalf("expected malformed name to fail split")
	}
	if _, _, ok := splitToolName("trailing@"); ok {
		t.Fatalf("expected trailing @ to fail split")
	}
}

func TestClientCallDispatchesToMatchingServer(t *testing.T) {
	fake := &fakeServerClient{
		tools: []mcp.Tool{{Name: "search"}},
		callResult: &mcp.CallToolResult{
			Content: []interface{}{mcp.TextContent{Text: "result text"}},
		},
	}
	c := newTestClientWithServer(t, "docs-server", fake)

	result, err := c.Call(context.Background(), "search@docs-server", map[string]interface{}{"query": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	envelope, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected a map result, got %T", result)
	}
	if envelope["ok"] != true {
		t.Fatalf("expected ok true, got %v", envelope["ok"])
	}
	data := envelope["data"].(map[string]interface{})
	if data["content"] != "result text" {
		t.Fatalf("expected extracted content, got %v", data["content"])
	}
}

func TestClientCallUnknownServer(t *testing.T) {
	c := NewClient(discardLogger())
	if _, err := c.Call(context.Background(), "search@missing", nil); err == nil {
		t.Fatalf("expected error for unknown server")
	}
}

func TestClientCallUnknownTool(t *testing.T) {
	fake := &fakeServerClient{tools: []mcp.Tool{{Name: "other"}}}
	c := newTestClientWithServer(t, "docs-server", fake)
	if _, err := c.Call(context.Background(), "search@docs-server", nil); err == nil {
		t.Fatalf("expected error for tool not discovered on server")
	}
}

func TestClientCallPropagatesTransportError(t *testing.T) {
	fake := &fakeServerClient{tools: []mcp.Tool{{Name: "search"}}, callErr: errors.New("transport down")}
	c := newTestClientWithServer(t, "docs-server", fake)
	if _, err := c.Call(context.Background(), "search@docs-server", nil); err == nil {
		t.Fatalf("expected transport error to propagate")
	}
}

func TestHasTool(t *testing.T) {
	fake := &fakeServerClient{tools: []mcp.Tool{{Name: "search"}}}
	c := newTestClientWithServer(t, "docs-server", fake)
	if !c.HasTool("search@docs-server") {
		t.Fatalf("expected HasTool true for a discovered tool")
	}
	if c.HasTool("missing@docs-server") {
		t.Fatalf("expected HasTool false for an undiscovered tool")
	}
}

func TestClientCloseClosesEveryServer(t *testing.T) {
	fake := &fakeServerClient{}
	c := newTestClientWithServer(t, "docs-server", fake)
	c.Close()
	if !fake.closed {
		t.Fatalf("expected Close to close the underlying server client")
	}
}
