// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"
)

// inMemoryTransports returns a connected client/server transport pair using
// the stdio framing over an in-memory pipe.
func inMemoryTransports() (client, server Transport) {
	c, s := net.Pipe()
	return NewIOTransport(c), NewIOTransport(s)
}

// testServerHandler is the handler used across runtime tests: one tool,
// one prompt, one resource.
type testServerHandler struct {
	UnimplementedServerHandler
}

func (testServerHandler) HandleListTools(context.Context, *ServerSession, *ListToolsParams) (*ListToolsResult, error) {
	return &ListToolsResult{Tools: []*Tool{{Name: "say_hello", Description: "greets the caller"}}}, nil
}

func (testServerHandler) HandleCallTool(ctx context.Context, ss *ServerSession, params *CallToolParams) (*CallToolResult, error) {
	switch params.Name {
	case "say_hello":
		var args struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return nil, err
		}
		return &CallToolResult{
			Content: []Content{&TextContent{Text: fmt.Sprintf("Hello, %s!", args.Name)}},
		}, nil
	case "slow_echo":
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &CallToolResult{Content: []Content{&TextContent{Text: "echo"}}}, nil
	}
	return nil, fmt.Errorf("unknown tool %q", params.Name)
}

func (testServerHandler) HandleListPrompts(context.Context, *ServerSession, *ListPromptsParams) (*ListPromptsResult, error) {
	return &ListPromptsResult{Prompts: []*Prompt{{Name: "greeting"}}}, nil
}

func testServer(opts *ServerOptions) *Server {
	if opts == nil {
		opts = &ServerOptions{}
	}
	if opts.Capabilities == nil {
		opts.Capabilities = &ServerCapabilities{
			Tools:   &ToolsCapability{},
			Prompts: &PromptsCapability{},
		}
	}
	return NewServer(&Implementation{Name: "test-server", Version: "1.0.0"}, testServerHandler{}, opts)
}

// connectPair connects a test server and client over an in-memory pipe and
// returns the two sessions. Both are closed when the test ends.
func connectPair(t *testing.T, server *Server) (*ServerSession, *ClientSession) {
	t.Helper()
	ct, st := inMemoryTransports()

	ss, err := server.Connect(context.Background(), st)
	if err != nil {
		t.Fatalf("server Connect failed: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := NewClient(&Implementation{Name: "test-client", Version: "1.0.0"}, nil, nil)
	cs, err := client.Connect(context.Background(), ct)
	if err != nil {
		t.Fatalf("client Connect failed: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return ss, cs
}

func textOf(t *testing.T, res *CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	tc, ok := res.Content[0].(*TextContent)
	if !ok {
		t.Fatalf("content[0] is %T, want *TextContent", res.Content[0])
	}
	return tc.Text
}
