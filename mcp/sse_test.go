// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	if _, err := writeEvent(&buf, event{name: "message", id: "s_1", data: []byte(`{"a":1}`)}); err != nil {
		t.Fatal(err)
	}
	want := "event: message\nid: s_1\ndata: {\"a\":1}\n\n"
	if buf.String() != want {
		t.Errorf("writeEvent = %q, want %q", buf.String(), want)
	}
}

func TestScanEvents(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive comment",
		"event: endpoint",
		"data: /messages?session_id=abc",
		"",
		"retry: 1000",
		"id: 7",
		"data: first",
		"data: second",
		"",
	}, "\n")

	var got []event
	for evt, err := range scanEvents(strings.NewReader(stream)) {
		if err != nil {
			break
		}
		got = append(got, evt)
	}
	want := []event{
		{name: "endpoint", data: []byte("/messages?session_id=abc")},
		{id: "7", data: []byte("first\nsecond")},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(event{})); diff != "" {
		t.Errorf("scanEvents mismatch (-want +got):\n%s", diff)
	}
}

func TestEventWriteScanRoundTrip(t *testing.T) {
	events := []event{
		{name: "message", id: "x_0", data: []byte(`{"jsonrpc":"2.0","method":"a"}`)},
		{name: "message", data: []byte(`{"jsonrpc":"2.0","method":"b"}`)},
	}
	var buf bytes.Buffer
	for _, evt := range events {
		if _, err := writeEvent(&buf, evt); err != nil {
			t.Fatal(err)
		}
	}
	var got []event
	for evt, err := range scanEvents(&buf) {
		if err != nil {
			break
		}
		got = append(got, evt)
	}
	if diff := cmp.Diff(events, got, cmp.AllowUnexported(event{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSSEHandlerEndToEnd(t *testing.T) {
	handler := NewSSEHandler(func(*http.Request) *Server { return testServer(nil) }, nil)
	defer handler.Close()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := NewClient(&Implementation{Name: "sse-client", Version: "1"}, nil, nil)
	cs, err := client.Connect(context.Background(), &SSEClientTransport{Endpoint: srv.URL + "/sse"})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer cs.Close()

	res, err := cs.CallTool(context.Background(), &CallToolParams{
		Name:      "say_hello",
		Arguments: json.RawMessage(`{"name":"SSE"}`),
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if got := textOf(t, res); got != "Hello, SSE!" {
		t.Errorf("tool text = %q, want %q", got, "Hello, SSE!")
	}
}

func TestSSEHandlerEndpointEvent(t *testing.T) {
	handler := NewSSEHandler(func(*http.Request) *Server { return testServer(nil) }, nil)
	defer handler.Close()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/sse", nil)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	for evt, err := range scanEvents(resp.Body) {
		if err != nil {
			t.Fatalf("scanning endpoint event: %v", err)
		}
		if evt.name != "endpoint" {
			t.Fatalf("first event is %q, want endpoint", evt.name)
		}
		endpoint := string(evt.data)
		if !strings.Contains(endpoint, "/messages?") || !strings.Contains(endpoint, "session_id=") {
			t.Errorf("endpoint event data = %q", endpoint)
		}
		break
	}
}

func TestSSEHandlerPostToUnknownSession(t *testing.T) {
	handler := NewSSEHandler(func(*http.Request) *Server { return testServer(nil) }, nil)
	defer handler.Close()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/messages?session_id=nope", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
