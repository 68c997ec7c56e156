// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	internaljson "github.com/mcpstack/go-mcp/internal/json"
)

// Client-side task store: tracks tasks created by task-augmented requests,
// preferring pushed status notifications and falling back to polling
// tasks/get at the task's advertised interval, never beyond its TTL.

// ErrTaskTimeout is reported when a task's TTL elapses before it reaches a
// terminal status.
var ErrTaskTimeout = errors.New("task timed out")

// ErrTaskCancelled is reported when an awaited task was cancelled.
var ErrTaskCancelled = errors.New("task cancelled")

// A TaskFailedError is reported when an awaited task failed.
type TaskFailedError struct {
	Reason string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task failed: %s", e.Reason)
}

type clientTaskStore struct {
	mu       sync.Mutex
	watchers map[string][]chan *Task
	closed   bool
}

func newClientTaskStore() *clientTaskStore {
	return &clientTaskStore{watchers: make(map[string][]chan *Task)}
}

// observe fans a pushed status update out to the task's watchers.
func (s *clientTaskStore) observe(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers[t.TaskID] {
		select {
		case ch <- t:
		default:
		}
	}
}

func (s *clientTaskStore) watch(taskID string) chan *Task {
	ch := make(chan *Task, 4)
	s.mu.Lock()
	s.watchers[taskID] = append(s.watchers[taskID], ch)
	s.mu.Unlock()
	return ch
}

func (s *clientTaskStore) unwatch(taskID string, ch chan *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	watchers := s.watchers[taskID]
	for i, w := range watchers {
		if w == ch {
			s.watchers[taskID] = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
	if len(s.watchers[taskID]) == 0 {
		delete(s.watchers, taskID)
	}
}

func (s *clientTaskStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.watchers = make(map[string][]chan *Task)
}

// A TaskHandle tracks one task-augmented tool call.
type TaskHandle struct {
	cs   *ClientSession
	task *Task

	// direct holds the result when the server chose to answer synchronously
	// despite the task request.
	direct *CallToolResult
}

// Task returns the task as last known, or nil if the server answered
// synchronously.
func (h *TaskHandle) Task() *Task { return h.task }

// CallToolAsync calls a tool with task augmentation. The server may accept
// the task, in which case Await drives it to completion, or answer
// synchronously, in which case Await returns immediately.
func (cs *ClientSession) CallToolAsync(ctx context.Context, params *CallToolParams, task *TaskParams) (*TaskHandle, error) {
	augmented := *params
	if task == nil {
		task = &TaskParams{}
	}
	augmented.Task = task

	raw, err := marshalParams(&augmented)
	if err != nil {
		return nil, err
	}
	var result json.RawMessage
	if err := cs.disp.call(ctx, methodCallTool, raw, &result, 0); err != nil {
		return nil, err
	}

	// Discriminate CreateTaskResult from a direct CallToolResult by the
	// "task" field.
	var probe struct {
		Task *Task `json:"task"`
	}
	if err := internaljson.Unmarshal(result, &probe); err == nil && probe.Task != nil {
		return &TaskHandle{cs: cs, task: probe.Task}, nil
	}
	res := new(CallToolResult)
	if err := internaljson.Unmarshal(result, res); err != nil {
		return nil, fmt.Errorf("unmarshaling tool result: %w", err)
	}
	return &TaskHandle{cs: cs, direct: res}, nil
}

// Await blocks until the task reaches a terminal status, then resolves it:
// the tool result on completion, ErrTaskCancelled or a *TaskFailedError
// otherwise. If the task's TTL elapses first, Await reports
// ErrTaskTimeout.
func (h *TaskHandle) Await(ctx context.Context) (*CallToolResult, error) {
	if h.direct != nil {
		return h.direct, nil
	}

	// Bound the wait by the task's TTL, counted from the start of Await.
	if h.task.TTL != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*h.task.TTL)*time.Millisecond)
		defer cancel()
	}

	status, err := h.awaitTerminal(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", ErrTaskTimeout, h.task.TaskID)
		}
		return nil, err
	}

	switch status.Status {
	case TaskStatusCompleted:
		res := new(CallToolResult)
		if err := h.cs.disp.call(ctx, methodTaskResult, &TaskResultParams{TaskID: h.task.TaskID}, res, 0); err != nil {
			return nil, err
		}
		return res, nil
	case TaskStatusCancelled:
		return nil, fmt.Errorf("%w: %s", ErrTaskCancelled, h.task.TaskID)
	case TaskStatusFailed:
		return nil, &TaskFailedError{Reason: status.StatusMessage}
	default:
		return nil, fmt.Errorf("task %s stopped in non-terminal status %q", h.task.TaskID, status.Status)
	}
}

// awaitTerminal waits for a terminal status, taking pushed notifications
// when they arrive and polling as a fallback.
func (h *TaskHandle) awaitTerminal(ctx context.Context) (*Task, error) {
	updates := h.cs.tasks.watch(h.task.TaskID)
	defer h.cs.tasks.unwatch(h.task.TaskID, updates)

	pollInterval := time.Duration(h.task.PollInterval) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case t := <-updates:
			h.task = t
			if t.Status.Terminal() {
				return t, nil
			}
		case <-ticker.C:
			res, err := h.cs.GetTask(ctx, &GetTaskParams{TaskID: h.task.TaskID})
			if err != nil {
				return nil, err
			}
			t := Task(*res)
			h.task = &t
			if t.Status.Terminal() {
				return &t, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-h.cs.done:
			return nil, ErrConnectionClosed
		}
	}
}
