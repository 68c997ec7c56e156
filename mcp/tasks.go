// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mcpstack/go-mcp/jsonrpc"
)

// Server-side task store: tool calls augmented with task params run
// asynchronously, their lifecycle queryable through tasks/get, tasks/list,
// tasks/cancel and tasks/result.

type serverTaskStore struct {
	pollInterval time.Duration

	mu    sync.Mutex
	next  uint64
	tasks map[string]*serverTaskEntry
}

type serverTaskEntry struct {
	seq uint64

	task      Task
	expiresAt *time.Time // set at the terminal transition when a TTL was requested
	ttl       *int64

	cancel context.CancelFunc
	done   chan struct{}

	result *CallToolResult
	err    error
}

func newServerTaskStore(pollInterval time.Duration) *serverTaskStore {
	return &serverTaskStore{
		pollInterval: pollInterval,
		tasks:        make(map[string]*serverTaskEntry),
	}
}

func (s *serverTaskStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.tasks {
		if e.cancel != nil {
			e.cancel()
		}
	}
}

// callTool routes tools/call, deciding between synchronous execution and
// task-augmented asynchronous execution.
func (ss *ServerSession) callTool(ctx context.Context, params *CallToolParams) (any, error) {
	// Without the tasks capability any task augmentation is ignored and the
	// call proceeds normally.
	if params.Task == nil || ss.tasks == nil {
		plain := *params
		plain.Task = nil
		return ss.callToolNow(ctx, &plain)
	}

	entry, err := ss.tasks.create(params.Task)
	if err != nil {
		return nil, err
	}

	// Run the tool asynchronously. The task outlives the initiating request,
	// so it runs on a fresh context cancelled only by tasks/cancel or
	// session shutdown.
	taskCtx, cancel := context.WithCancel(context.Background())
	ss.tasks.setCancel(entry, cancel)
	go func() {
		defer cancel()
		plain := *params
		plain.Task = nil
		res, err := ss.callToolNow(taskCtx, &plain)
		if t := ss.tasks.finish(entry, res, err); t != nil {
			ss.notifyTaskStatus(t)
		}
		close(entry.done)
	}()

	t := entry.task // copy
	return &CreateTaskResult{Task: &t}, nil
}

func (ss *ServerSession) callToolNow(ctx context.Context, params *CallToolParams) (*CallToolResult, error) {
	res, err := ss.server.handler.HandleCallTool(ctx, ss, params)
	if err == nil && res == nil {
		res = &CallToolResult{}
	}
	if err == nil && res.Content == nil {
		res2 := *res
		res2.Content = []Content{} // avoid "null"
		res = &res2
	}
	return res, err
}

func (s *serverTaskStore) create(tp *TaskParams) (*serverTaskEntry, error) {
	taskID, err := newTaskID()
	if err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInternalError, "generating task id: %v", err)
	}

	now := time.Now().UTC()
	createdAt := now.Format(time.RFC3339)

	var ttl *int64
	if tp != nil && tp.TTL != nil {
		v := *tp.TTL
		ttl = &v
	}

	e := &serverTaskEntry{
		ttl:  ttl,
		done: make(chan struct{}),
		task: Task{
			TaskID:        taskID,
			Status:        TaskStatusWorking,
			StatusMessage: "The operation is now in progress.",
			CreatedAt:     createdAt,
			LastUpdatedAt: createdAt,
			TTL:           ttl,
			PollInterval:  s.pollInterval.Milliseconds(),
		},
	}

	s.mu.Lock()
	s.next++
	e.seq = s.next
	s.tasks[taskID] = e
	s.mu.Unlock()
	return e, nil
}

func (s *serverTaskStore) setCancel(entry *serverTaskEntry, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[entry.task.TaskID]; ok {
		cur.cancel = cancel
	}
}

// finish records the tool outcome. It returns the task to announce, or nil
// if the task had already reached a terminal status.
func (s *serverTaskStore) finish(entry *serverTaskEntry, res *CallToolResult, err error) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.tasks[entry.task.TaskID]
	if cur == nil {
		return nil
	}
	cur.result = res
	cur.err = err

	// Once terminal, a status never changes: a cancelled task stays
	// cancelled even if the tool later returns.
	if cur.task.Status.Terminal() {
		return nil
	}
	cur.task.LastUpdatedAt = time.Now().UTC().Format(time.RFC3339)
	switch {
	case err != nil:
		cur.task.Status = TaskStatusFailed
		cur.task.StatusMessage = err.Error()
	case res != nil && res.IsError:
		cur.task.Status = TaskStatusFailed
		cur.task.StatusMessage = "tool execution failed"
	default:
		cur.task.Status = TaskStatusCompleted
		cur.task.StatusMessage = ""
	}
	s.markTerminal(cur)
	t := cur.task
	return &t
}

// markTerminal starts the TTL clock. s.mu must be held.
func (s *serverTaskStore) markTerminal(e *serverTaskEntry) {
	if e.ttl != nil {
		exp := time.Now().Add(time.Duration(*e.ttl) * time.Millisecond)
		e.expiresAt = &exp
	}
}

// get returns a live task entry, garbage-collecting it if its TTL expired.
func (s *serverTaskStore) get(taskID string) (*serverTaskEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.tasks[taskID]
	if e == nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "Failed to retrieve task: Task not found"}
	}
	if e.expiresAt != nil && time.Now().After(*e.expiresAt) {
		delete(s.tasks, taskID)
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "Failed to retrieve task: Task has expired"}
	}
	return e, nil
}

func (ss *ServerSession) getTask(_ context.Context, params *GetTaskParams) (*GetTaskResult, error) {
	e, err := ss.tasks.get(params.TaskID)
	if err != nil {
		return nil, err
	}
	ss.tasks.mu.Lock()
	t := GetTaskResult(e.task)
	ss.tasks.mu.Unlock()
	return &t, nil
}

func (ss *ServerSession) listTasks(_ context.Context, params *ListTasksParams) (*ListTasksResult, error) {
	cursor, err := decodeTaskCursor(params.Cursor)
	if err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "Invalid cursor"}
	}

	entries := ss.tasks.list()
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	start := 0
	if cursor != 0 {
		for i, e := range entries {
			if e.seq == cursor {
				start = i + 1
				break
			}
		}
		if start == 0 {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "Invalid cursor"}
		}
	}

	end := min(start+ss.server.opts.PageSize, len(entries))
	res := &ListTasksResult{Tasks: []*Task{}}
	ss.tasks.mu.Lock()
	for _, e := range entries[start:end] {
		t := e.task
		res.Tasks = append(res.Tasks, &t)
	}
	ss.tasks.mu.Unlock()
	if end < len(entries) {
		res.NextCursor = encodeTaskCursor(entries[end-1].seq)
	}
	return res, nil
}

func (s *serverTaskStore) list() []*serverTaskEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*serverTaskEntry
	now := time.Now()
	for id, e := range s.tasks {
		if e.expiresAt != nil && now.After(*e.expiresAt) {
			delete(s.tasks, id)
			continue
		}
		out = append(out, e)
	}
	return out
}

func (ss *ServerSession) cancelTask(_ context.Context, params *CancelTaskParams) (*CancelTaskResult, error) {
	e, err := ss.tasks.get(params.TaskID)
	if err != nil {
		return nil, err
	}

	ss.tasks.mu.Lock()
	cur := ss.tasks.tasks[e.task.TaskID]
	if cur == nil {
		ss.tasks.mu.Unlock()
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "Failed to cancel task: Task not found"}
	}
	if cur.task.Status.Terminal() {
		ss.tasks.mu.Unlock()
		return nil, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidParams,
			Message: fmt.Sprintf("Cannot cancel task: already in terminal status %q", cur.task.Status),
		}
	}
	cur.task.Status = TaskStatusCancelled
	cur.task.StatusMessage = "The task was cancelled by request."
	cur.task.LastUpdatedAt = time.Now().UTC().Format(time.RFC3339)
	ss.tasks.markTerminal(cur)
	cancel := cur.cancel
	t := cur.task
	ss.tasks.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	ss.notifyTaskStatus(&t)

	res := CancelTaskResult(t)
	return &res, nil
}

func (ss *ServerSession) taskResult(ctx context.Context, params *TaskResultParams) (*CallToolResult, error) {
	e, err := ss.tasks.get(params.TaskID)
	if err != nil {
		return nil, err
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ss.done:
		return nil, ErrConnectionClosed
	}

	ss.tasks.mu.Lock()
	res, rerr := e.result, e.err
	ss.tasks.mu.Unlock()

	if rerr != nil {
		return nil, toJSONRPCError(rerr)
	}
	if res == nil {
		res = &CallToolResult{Content: []Content{}}
	}
	if res.Meta == nil {
		res.Meta = Meta{}
	}
	res.Meta[relatedTaskMetaKey] = map[string]any{"taskId": params.TaskID}
	return res, nil
}

func newTaskID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	// Hex is fine; task IDs only need to be unique strings.
	return hex.EncodeToString(b[:]), nil
}

func encodeTaskCursor(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}

func decodeTaskCursor(cursor string) (uint64, error) {
	if cursor == "" {
		return 0, nil
	}
	return strconv.ParseUint(cursor, 10, 64)
}
