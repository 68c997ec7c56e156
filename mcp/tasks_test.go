// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mcpstack/go-mcp/jsonrpc"
)

func taskServer() *Server {
	return NewServer(
		&Implementation{Name: "task-server", Version: "1"},
		testServerHandler{},
		&ServerOptions{
			Capabilities: &ServerCapabilities{
				Tools: &ToolsCapability{},
				Tasks: &TasksCapability{List: &struct{}{}, Cancel: &struct{}{}},
			},
			TaskPollInterval: 10 * time.Millisecond,
		},
	)
}

func TestTaskAugmentedToolCall(t *testing.T) {
	_, cs := connectPair(t, taskServer())
	ctx := context.Background()

	handle, err := cs.CallToolAsync(ctx, &CallToolParams{
		Name:      "say_hello",
		Arguments: json.RawMessage(`{"name":"Task"}`),
	}, &TaskParams{})
	if err != nil {
		t.Fatalf("CallToolAsync failed: %v", err)
	}
	task := handle.Task()
	if task == nil {
		t.Fatal("server answered synchronously, want CreateTaskResult")
	}
	if task.Status != TaskStatusWorking {
		t.Errorf("initial status = %q, want working", task.Status)
	}
	if task.CreatedAt == "" || task.TaskID == "" {
		t.Errorf("task missing bookkeeping fields: %+v", task)
	}

	res, err := handle.Await(ctx)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if got := textOf(t, res); got != "Hello, Task!" {
		t.Errorf("task result text = %q, want %q", got, "Hello, Task!")
	}
	if res.Meta[relatedTaskMetaKey] == nil {
		t.Error("task result is not annotated with its task")
	}
}

func TestTaskStatusQueries(t *testing.T) {
	_, cs := connectPair(t, taskServer())
	ctx := context.Background()

	handle, err := cs.CallToolAsync(ctx, &CallToolParams{
		Name:      "slow_echo",
		Arguments: json.RawMessage(`{}`),
	}, &TaskParams{})
	if err != nil {
		t.Fatalf("CallToolAsync failed: %v", err)
	}
	taskID := handle.Task().TaskID

	got, err := cs.GetTask(ctx, &GetTaskParams{TaskID: taskID})
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.TaskID != taskID {
		t.Errorf("GetTask returned task %q, want %q", got.TaskID, taskID)
	}

	list, err := cs.ListTasks(ctx, nil)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].TaskID != taskID {
		t.Errorf("ListTasks = %+v, want the one task", list.Tasks)
	}

	if _, err := handle.Await(ctx); err != nil {
		t.Fatalf("Await failed: %v", err)
	}

	// Once terminal, the status never changes.
	got, err = cs.GetTask(ctx, &GetTaskParams{TaskID: taskID})
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != TaskStatusCompleted {
		t.Errorf("status after completion = %q, want completed", got.Status)
	}
}

func TestTaskCancel(t *testing.T) {
	handler := &blockingToolHandler{release: make(chan struct{})}
	server := NewServer(&Implementation{Name: "block", Version: "1"}, handler, &ServerOptions{
		Capabilities: &ServerCapabilities{
			Tools: &ToolsCapability{},
			Tasks: &TasksCapability{Cancel: &struct{}{}},
		},
		TaskPollInterval: 10 * time.Millisecond,
	})
	defer close(handler.release)
	_, cs := connectPair(t, server)
	ctx := context.Background()

	handle, err := cs.CallToolAsync(ctx, &CallToolParams{Name: "block", Arguments: json.RawMessage(`{}`)}, nil)
	if err != nil {
		t.Fatalf("CallToolAsync failed: %v", err)
	}
	taskID := handle.Task().TaskID

	cancelled, err := cs.CancelTask(ctx, &CancelTaskParams{TaskID: taskID})
	if err != nil {
		t.Fatalf("CancelTask failed: %v", err)
	}
	if cancelled.Status != TaskStatusCancelled {
		t.Errorf("cancel result status = %q, want cancelled", cancelled.Status)
	}

	if _, err := handle.Await(ctx); !errors.Is(err, ErrTaskCancelled) {
		t.Errorf("Await after cancel = %v, want ErrTaskCancelled", err)
	}

	// Cancelling a terminal task is an error, not a transition.
	_, err = cs.CancelTask(ctx, &CancelTaskParams{TaskID: taskID})
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) || !strings.Contains(rpcErr.Message, "terminal") {
		t.Errorf("second cancel = %v, want terminal-status error", err)
	}
}

type blockingToolHandler struct {
	UnimplementedServerHandler
	release chan struct{}
}

func (h *blockingToolHandler) HandleCallTool(ctx context.Context, _ *ServerSession, _ *CallToolParams) (*CallToolResult, error) {
	select {
	case <-h.release:
		return &CallToolResult{Content: []Content{&TextContent{Text: "released"}}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestTaskFailure(t *testing.T) {
	_, cs := connectPair(t, taskServer())
	ctx := context.Background()

	handle, err := cs.CallToolAsync(ctx, &CallToolParams{
		Name:      "no_such_tool",
		Arguments: json.RawMessage(`{}`),
	}, nil)
	if err != nil {
		t.Fatalf("CallToolAsync failed: %v", err)
	}
	_, err = handle.Await(ctx)
	var failed *TaskFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Await = %v, want *TaskFailedError", err)
	}
}

func TestTaskTTLExpiry(t *testing.T) {
	_, cs := connectPair(t, taskServer())
	ctx := context.Background()

	ttl := int64(200)
	handle, err := cs.CallToolAsync(ctx, &CallToolParams{
		Name:      "say_hello",
		Arguments: json.RawMessage(`{"name":"T"}`),
	}, &TaskParams{TTL: &ttl})
	if err != nil {
		t.Fatalf("CallToolAsync failed: %v", err)
	}
	if _, err := handle.Await(ctx); err != nil {
		t.Fatalf("Await failed: %v", err)
	}

	// TTL runs from the terminal transition; after it elapses the task may
	// be garbage-collected.
	time.Sleep(300 * time.Millisecond)
	_, err = cs.GetTask(ctx, &GetTaskParams{TaskID: handle.Task().TaskID})
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) || !strings.Contains(rpcErr.Message, "expired") {
		t.Errorf("GetTask after TTL = %v, want expired error", err)
	}
}

func TestTaskIgnoredWithoutCapability(t *testing.T) {
	// testServer advertises no tasks capability: the augmentation is
	// ignored and the call completes synchronously.
	_, cs := connectPair(t, testServer(nil))

	handle, err := cs.CallToolAsync(context.Background(), &CallToolParams{
		Name:      "say_hello",
		Arguments: json.RawMessage(`{"name":"Sync"}`),
	}, nil)
	if err != nil {
		t.Fatalf("CallToolAsync failed: %v", err)
	}
	if handle.Task() != nil {
		t.Fatal("server created a task without advertising the capability")
	}
	res, err := handle.Await(context.Background())
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if got := textOf(t, res); got != "Hello, Sync!" {
		t.Errorf("tool text = %q", got)
	}
}
