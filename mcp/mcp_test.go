// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mcpstack/go-mcp/jsonrpc"
)

func TestInitializeHandshake(t *testing.T) {
	ss, cs := connectPair(t, testServer(nil))

	res := cs.InitializeResult()
	if res == nil {
		t.Fatal("InitializeResult is nil after Connect")
	}
	if res.ServerInfo.Name != "test-server" {
		t.Errorf("ServerInfo.Name = %q, want test-server", res.ServerInfo.Name)
	}
	if !protocolVersionSupported(res.ProtocolVersion) {
		t.Errorf("negotiated unsupported version %q", res.ProtocolVersion)
	}
	if res.Capabilities.Tools == nil {
		t.Error("tools capability not advertised")
	}

	params := ss.InitializeParams()
	if params == nil || params.ClientInfo.Name != "test-client" {
		t.Errorf("server recorded client params %+v", params)
	}
}

func TestMethodBeforeInitialize(t *testing.T) {
	ct, st := inMemoryTransports()
	ss, err := testServer(nil).Connect(context.Background(), st)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ss.Close()

	conn, err := ct.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()
	d := newDispatcher(conn, time.Second, nil)
	d.start(context.Background())
	defer d.close()

	err = d.call(context.Background(), "tools/list", nil, nil, 0)
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc.CodeInternalError {
		t.Errorf("pre-initialize tools/list error = %v, want internal error", err)
	}
}

func TestListAndCallTool(t *testing.T) {
	_, cs := connectPair(t, testServer(nil))
	ctx := context.Background()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != "say_hello" {
		t.Fatalf("ListTools = %+v, want say_hello", tools.Tools)
	}

	res, err := cs.CallTool(ctx, &CallToolParams{
		Name:      "say_hello",
		Arguments: json.RawMessage(`{"name":"Ali"}`),
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if got := textOf(t, res); got != "Hello, Ali!" {
		t.Errorf("tool text = %q, want %q", got, "Hello, Ali!")
	}
}

func TestUnknownToolFromDefaultHandler(t *testing.T) {
	server := NewServer(
		&Implementation{Name: "bare", Version: "0.0.1"},
		UnimplementedServerHandler{},
		&ServerOptions{Capabilities: &ServerCapabilities{Tools: &ToolsCapability{}}},
	)
	_, cs := connectPair(t, server)

	_, err := cs.CallTool(context.Background(), &CallToolParams{Name: "nope"})
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc.CodeInvalidParams {
		t.Errorf("CallTool error = %v, want invalid params (unknown tool)", err)
	}
}

func TestCapabilityAssertion(t *testing.T) {
	// The handler implements prompts, but the server doesn't advertise the
	// capability, so dispatch must refuse.
	server := NewServer(
		&Implementation{Name: "limited", Version: "0.0.1"},
		testServerHandler{},
		&ServerOptions{Capabilities: &ServerCapabilities{Tools: &ToolsCapability{}}},
	)
	_, cs := connectPair(t, server)

	_, err := cs.ListPrompts(context.Background(), nil)
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc.CodeInternalError {
		t.Fatalf("ListPrompts error = %v, want internal error", err)
	}
	if !strings.Contains(rpcErr.Message, "prompts") {
		t.Errorf("error message %q does not name the missing capability", rpcErr.Message)
	}
}

func TestMethodNotFoundDefault(t *testing.T) {
	server := NewServer(
		&Implementation{Name: "bare", Version: "0.0.1"},
		UnimplementedServerHandler{},
		&ServerOptions{Capabilities: &ServerCapabilities{Completions: &CompletionsCapability{}}},
	)
	_, cs := connectPair(t, server)

	_, err := cs.Complete(context.Background(), &CompleteParams{Argument: &CompleteArgument{Name: "a"}})
	if !errors.Is(err, jsonrpc.ErrMethodNotFound) {
		t.Errorf("Complete error = %v, want method not found", err)
	}
}

func TestCustomRequest(t *testing.T) {
	handler := &customHandler{}
	server := NewServer(&Implementation{Name: "custom", Version: "0.0.1"}, handler, nil)
	_, cs := connectPair(t, server)

	var out map[string]string
	if err := cs.disp.call(context.Background(), "x/echo", map[string]string{"k": "v"}, &out, 0); err != nil {
		t.Fatalf("custom call failed: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"k": "v"}, out); diff != "" {
		t.Errorf("custom echo mismatch (-want +got):\n%s", diff)
	}
}

type customHandler struct {
	UnimplementedServerHandler
}

func (*customHandler) HandleCustomRequest(_ context.Context, _ *ServerSession, method string, params json.RawMessage) (any, error) {
	if method != "x/echo" {
		return nil, fmt.Errorf("unexpected method %q", method)
	}
	return params, nil
}

func TestPingBothDirections(t *testing.T) {
	ss, cs := connectPair(t, testServer(nil))
	ctx := context.Background()
	if err := cs.Ping(ctx); err != nil {
		t.Errorf("client ping failed: %v", err)
	}
	if err := ss.Ping(ctx); err != nil {
		t.Errorf("server ping failed: %v", err)
	}
}

func TestServerInitiatedRoots(t *testing.T) {
	roots := &ListRootsResult{Roots: []*Root{{URI: "file:///tmp", Name: "tmp"}}}
	client := NewClient(&Implementation{Name: "rooted", Version: "1"}, rootsHandler{roots: roots}, nil)

	ct, st := inMemoryTransports()
	ss, err := testServer(nil).Connect(context.Background(), st)
	if err != nil {
		t.Fatalf("server Connect failed: %v", err)
	}
	defer ss.Close()
	cs, err := client.Connect(context.Background(), ct)
	if err != nil {
		t.Fatalf("client Connect failed: %v", err)
	}
	defer cs.Close()

	got, err := ss.ListRoots(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListRoots failed: %v", err)
	}
	if len(got.Roots) != 1 || got.Roots[0].URI != "file:///tmp" {
		t.Errorf("ListRoots = %+v", got.Roots)
	}
}

type rootsHandler struct {
	UnimplementedClientHandler
	roots *ListRootsResult
}

func (h rootsHandler) HandleListRoots(context.Context, *ClientSession, *ListRootsParams) (*ListRootsResult, error) {
	return h.roots, nil
}

func TestBatchResponses(t *testing.T) {
	_, cs := connectPair(t, testServer(nil))

	id1, id2 := cs.disp.newRequestID(), cs.disp.newRequestID()
	batch := jsonrpc.Batch(
		&jsonrpc.Request{ID: id1, Method: "tools/list"},
		&jsonrpc.Request{Method: "notifications/progress", Params: json.RawMessage(`{"progressToken":"t","progress":1}`)},
		&jsonrpc.Request{ID: id2, Method: "ping"},
	)
	res, err := cs.disp.sendMessages(context.Background(), batch, 5*time.Second)
	if err != nil {
		t.Fatalf("sendMessages failed: %v", err)
	}
	// Exactly the two requests get responses, positionally, and no response
	// corresponds to the notification.
	if len(res.Items) != 2 {
		t.Fatalf("len(responses) = %d, want 2", len(res.Items))
	}
	for i, want := range []jsonrpc.ID{id1, id2} {
		resp := res.Items[i].(*jsonrpc.Response)
		if resp.ID.Raw() != want.Raw() {
			t.Errorf("response %d has ID %v, want %v", i, resp.ID.Raw(), want.Raw())
		}
		if resp.Error != nil {
			t.Errorf("response %d errored: %v", i, resp.Error)
		}
	}
}

func TestProtocolVersionNegotiation(t *testing.T) {
	for _, test := range []struct {
		proposed, want string
	}{
		{protocolVersion20250618, protocolVersion20250618},
		{protocolVersion20250326, protocolVersion20250326},
		{"1999-01-01", LatestProtocolVersion},
	} {
		if got := negotiatedProtocolVersion(test.proposed); got != test.want {
			t.Errorf("negotiatedProtocolVersion(%q) = %q, want %q", test.proposed, got, test.want)
		}
	}
}
