// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const initializeBody = `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`

func newStreamableServer(t *testing.T, opts *StreamableHTTPOptions) (*httptest.Server, *StreamableHTTPHandler) {
	t.Helper()
	handler := NewStreamableHTTPHandler(func(*http.Request) *Server { return testServer(nil) }, opts)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		handler.Close()
	})
	return srv, handler
}

func doPOST(t *testing.T, url, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

// readEvents reads n data-bearing events from an SSE body.
func readEvents(t *testing.T, body io.Reader, n int) []event {
	t.Helper()
	var events []event
	for evt, err := range scanEvents(body) {
		if err != nil {
			break
		}
		if len(evt.data) == 0 {
			continue
		}
		events = append(events, evt)
		if len(events) == n {
			break
		}
	}
	if len(events) != n {
		t.Fatalf("read %d SSE events, want %d", len(events), n)
	}
	return events
}

func TestStreamableInitialize(t *testing.T) {
	srv, _ := newStreamableServer(t, nil)

	resp := doPOST(t, srv.URL, initializeBody, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	sessionID := resp.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		t.Fatal("initialize response carries no Mcp-Session-Id header")
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	events := readEvents(t, resp.Body, 1)
	var wire struct {
		Result InitializeResult `json:"result"`
	}
	if err := json.Unmarshal(events[0].data, &wire); err != nil {
		t.Fatalf("unmarshaling initialize event: %v", err)
	}
	if wire.Result.ServerInfo == nil || wire.Result.ServerInfo.Name != "test-server" {
		t.Errorf("initialize result = %+v", wire.Result)
	}
	if wire.Result.Capabilities == nil || wire.Result.Capabilities.Tools == nil {
		t.Error("initialize result does not advertise the tools capability")
	}
}

func TestStreamableBatchInitializeRejected(t *testing.T) {
	srv, _ := newStreamableServer(t, nil)

	batch := "[" + initializeBody + "," + initializeBody + "]"
	resp := doPOST(t, srv.URL, batch, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "-32600") || !strings.Contains(string(body), "Only one initialization request is allowed") {
		t.Errorf("body = %s, want -32600 with the single-initialize message", body)
	}
}

func TestStreamableMissingSession(t *testing.T) {
	srv, _ := newStreamableServer(t, nil)

	resp := doPOST(t, srv.URL, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "-32000") {
		t.Errorf("body = %s, want code -32000", body)
	}
}

func TestStreamableUnknownSession(t *testing.T) {
	srv, _ := newStreamableServer(t, nil)

	resp := doPOST(t, srv.URL, `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		map[string]string{"Mcp-Session-Id": "invalid-session-id"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "-32001") {
		t.Errorf("body = %s, want code -32001", body)
	}
}

func TestStreamableHeaderValidation(t *testing.T) {
	srv, _ := newStreamableServer(t, nil)

	t.Run("wrong content type", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(initializeBody))
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("Accept", "application/json, text/event-stream")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnsupportedMediaType {
			t.Errorf("status = %d, want 415", resp.StatusCode)
		}
	})

	t.Run("incomplete accept", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(initializeBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotAcceptable {
			t.Errorf("status = %d, want 406", resp.StatusCode)
		}
	})

	t.Run("unsupported protocol version header", func(t *testing.T) {
		resp := doPOST(t, srv.URL, initializeBody, map[string]string{"Mcp-Protocol-Version": "1900-01-01"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		resp := doPOST(t, srv.URL, `{"jsonrpc":`, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "-32700") || !strings.Contains(string(body), "Parse Error") {
			t.Errorf("body = %s, want -32700 Parse Error", body)
		}
	})

	t.Run("unsupported method", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, srv.URL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", resp.StatusCode)
		}
	})
}

func TestStreamableEndToEnd(t *testing.T) {
	srv, _ := newStreamableServer(t, nil)

	client := NewClient(&Implementation{Name: "e2e", Version: "1"}, nil, nil)
	cs, err := client.Connect(context.Background(), NewStreamableClientTransport(srv.URL, nil))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer cs.Close()

	if cs.SessionID() == "" {
		t.Error("client learned no session ID")
	}

	res, err := cs.CallTool(context.Background(), &CallToolParams{
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

func TestStreamableDelete(t *testing.T) {
	srv, _ := newStreamableServer(t, nil)

	resp := doPOST(t, srv.URL, initializeBody, nil)
	sessionID := resp.Header.Get("Mcp-Session-Id")
	readEvents(t, resp.Body, 1)
	resp.Body.Close()

	del := func() int {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL, nil)
		req.Header.Set("Mcp-Session-Id", sessionID)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE failed: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if status := del(); status != http.StatusOK {
		t.Errorf("first DELETE = %d, want 200", status)
	}
	// Terminating an already-terminated session is a 404, never a 500.
	if status := del(); status != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", status)
	}
}

func TestStreamableStandaloneStreamConflict(t *testing.T) {
	srv, _ := newStreamableServer(t, nil)

	resp := doPOST(t, srv.URL, initializeBody, nil)
	sessionID := resp.Header.Get("Mcp-Session-Id")
	readEvents(t, resp.Body, 1)
	resp.Body.Close()

	get := func(ctx context.Context) *http.Response {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Mcp-Session-Id", sessionID)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		return resp
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := get(ctx)
	defer first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first GET = %d, want 200", first.StatusCode)
	}

	// Give the first stream a moment to claim the session.
	time.Sleep(50 * time.Millisecond)

	second := get(context.Background())
	defer second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("second GET = %d, want 409", second.StatusCode)
	}
	body, _ := io.ReadAll(second.Body)
	if !strings.Contains(string(body), "-32000") {
		t.Errorf("conflict body = %s, want code -32000", body)
	}
}

func TestStreamableResumption(t *testing.T) {
	store := NewInMemorySessionStore()
	srv, _ := newStreamableServer(t, &StreamableHTTPOptions{
		SessionStore: store,
		EventStore:   NewInMemoryEventStore(),
	})

	resp := doPOST(t, srv.URL, initializeBody, nil)
	sessionID := resp.Header.Get("Mcp-Session-Id")
	readEvents(t, resp.Body, 1)
	resp.Body.Close()

	sessions := store.all()
	if len(sessions) != 1 {
		t.Fatalf("store holds %d sessions, want 1", len(sessions))
	}
	ss := sessions[0]

	// Two notifications queued on the standalone stream, with event IDs.
	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		if err := ss.Log(ctx, &LoggingMessageParams{Level: LevelInfo, Data: fmt.Sprintf("note-%d", i)}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	getCtx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(getCtx, http.MethodGet, srv.URL, nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	first, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	events := readEvents(t, first.Body, 2)
	if events[0].id == "" || events[1].id == "" {
		t.Fatal("events carry no IDs despite a configured event store")
	}
	if !strings.Contains(string(events[0].data), "note-1") || !strings.Contains(string(events[1].data), "note-2") {
		t.Fatalf("unexpected event order: %q, %q", events[0].data, events[1].data)
	}

	// Drop the stream, reconnect after the first event: exactly the second
	// is replayed, then delivery resumes live.
	cancel()
	first.Body.Close()
	time.Sleep(50 * time.Millisecond) // let the server release the stream

	req2, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req2.Header.Set("Accept", "text/event-stream")
	req2.Header.Set("Mcp-Session-Id", sessionID)
	req2.Header.Set("Last-Event-ID", events[0].id)
	second, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("resuming GET failed: %v", err)
	}
	defer second.Body.Close()

	replayed := readEvents(t, second.Body, 1)
	if !strings.Contains(string(replayed[0].data), "note-2") {
		t.Errorf("replayed event = %q, want note-2", replayed[0].data)
	}
	if replayed[0].id != events[1].id {
		t.Errorf("replayed event ID = %q, want %q", replayed[0].id, events[1].id)
	}

	if err := ss.Log(ctx, &LoggingMessageParams{Level: LevelInfo, Data: "note-3"}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	live := readEvents(t, second.Body, 1)
	if !strings.Contains(string(live[0].data), "note-3") {
		t.Errorf("live event after replay = %q, want note-3", live[0].data)
	}
}

func TestStreamableJSONResponseMode(t *testing.T) {
	srv, _ := newStreamableServer(t, &StreamableHTTPOptions{JSONResponse: true})

	resp := doPOST(t, srv.URL, initializeBody, nil)
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	sessionID := resp.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		t.Fatal("no session ID on JSON-mode initialize")
	}
	var wire struct {
		Result InitializeResult `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		t.Fatalf("decoding JSON body: %v", err)
	}
	if wire.Result.ServerInfo == nil || wire.Result.ServerInfo.Name != "test-server" {
		t.Errorf("initialize result = %+v", wire.Result)
	}

	// Notifications still get 202 with an empty body.
	ack := doPOST(t, srv.URL, `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	defer ack.Body.Close()
	if ack.StatusCode != http.StatusAccepted {
		t.Errorf("notification status = %d, want 202", ack.StatusCode)
	}

	call := doPOST(t, srv.URL,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"say_hello","arguments":{"name":"Go"}}}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	defer call.Body.Close()
	body, _ := io.ReadAll(call.Body)
	if !strings.Contains(string(body), "Hello, Go!") {
		t.Errorf("call body = %s, want Hello, Go!", body)
	}
}

func TestStreamableOriginProtection(t *testing.T) {
	protected := NewStreamableHTTPHandler(func(*http.Request) *Server { return testServer(nil) },
		&StreamableHTTPOptions{AllowedOrigins: []string{"https://trusted.example"}})
	srv2 := httptest.NewServer(protected)
	defer srv2.Close()
	defer protected.Close()

	resp := doPOST(t, srv2.URL, initializeBody, nil) // no Origin header
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status without Origin = %d, want 403", resp.StatusCode)
	}

	ok := doPOST(t, srv2.URL, initializeBody, map[string]string{"Origin": "https://TRUSTED.example"})
	defer ok.Body.Close()
	if ok.StatusCode != http.StatusOK {
		t.Errorf("status with allowed Origin = %d, want 200", ok.StatusCode)
	}
}
