// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

// Protocol types for the subset of the MCP schema that the runtime itself
// dispatches on. Method params and results that the runtime merely relays are
// kept structural; anything not listed here flows through handlers as raw
// JSON.

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/yosida95/uritemplate/v3"

	internaljson "github.com/mcpstack/go-mcp/internal/json"
)

// Protocol versions, newest first. The server negotiates down to the newest
// version both sides support.
const (
	protocolVersion20250618 = "2025-06-18"
	protocolVersion20250326 = "2025-03-26"
	protocolVersion20241105 = "2024-11-05"
)

// LatestProtocolVersion is the newest protocol version this module speaks.
const LatestProtocolVersion = protocolVersion20250618

var supportedProtocolVersions = []string{
	protocolVersion20250618,
	protocolVersion20250326,
	protocolVersion20241105,
}

func protocolVersionSupported(v string) bool {
	for _, s := range supportedProtocolVersions {
		if s == v {
			return true
		}
	}
	return false
}

// negotiatedProtocolVersion returns the version the server should answer with
// for a client-proposed version: the proposal if supported, else the latest
// version the server speaks.
func negotiatedProtocolVersion(proposed string) string {
	if protocolVersionSupported(proposed) {
		return proposed
	}
	return LatestProtocolVersion
}

// Method names. Spelled once, here.
const (
	methodInitialize            = "initialize"
	methodPing                  = "ping"
	methodListResources         = "resources/list"
	methodListResourceTemplates = "resources/templates/list"
	methodReadResource          = "resources/read"
	methodSubscribe             = "resources/subscribe"
	methodUnsubscribe           = "resources/unsubscribe"
	methodListPrompts           = "prompts/list"
	methodGetPrompt             = "prompts/get"
	methodListTools             = "tools/list"
	methodCallTool              = "tools/call"
	methodSetLevel              = "logging/setLevel"
	methodComplete              = "completion/complete"
	methodListRoots             = "roots/list"
	methodCreateMessage         = "sampling/createMessage"
	methodElicit                = "elicitation/create"
	methodGetTask               = "tasks/get"
	methodListTasks             = "tasks/list"
	methodCancelTask            = "tasks/cancel"
	methodTaskResult            = "tasks/result"

	notificationInitialized      = "notifications/initialized"
	notificationCancelled        = "notifications/cancelled"
	notificationProgress         = "notifications/progress"
	notificationMessage          = "notifications/message"
	notificationRootsListChanged = "notifications/roots/list_changed"
	notificationToolListChanged  = "notifications/tools/list_changed"
	notificationResourceUpdated  = "notifications/resources/updated"
	notificationTaskStatus       = "notifications/tasks/status"
)

// Meta carries protocol-reserved metadata ("_meta") on params and results.
type Meta map[string]any

// relatedTaskMetaKey marks a result as belonging to a task.
const relatedTaskMetaKey = "io.modelcontextprotocol/related-task"

// An Implementation describes the name and version of an MCP client or
// server.
type Implementation struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// ClientCapabilities are advertised by the client in its initialize request.
type ClientCapabilities struct {
	Experimental map[string]any `json:"experimental,omitempty"`
	Roots        *RootsCapability `json:"roots,omitempty"`
	Sampling     *SamplingCapability `json:"sampling,omitempty"`
	Elicitation  *ElicitationCapability `json:"elicitation,omitempty"`
}

type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type SamplingCapability struct{}

type ElicitationCapability struct{}

// ServerCapabilities are advertised by the server in its initialize result.
type ServerCapabilities struct {
	Experimental map[string]any      `json:"experimental,omitempty"`
	Logging      *LoggingCapability  `json:"logging,omitempty"`
	Completions  *CompletionsCapability `json:"completions,omitempty"`
	Prompts      *PromptsCapability  `json:"prompts,omitempty"`
	Resources    *ResourcesCapability `json:"resources,omitempty"`
	Tools        *ToolsCapability    `json:"tools,omitempty"`
	Tasks        *TasksCapability    `json:"tasks,omitempty"`
}

type LoggingCapability struct{}

type CompletionsCapability struct{}

type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ResourcesCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
	Subscribe   bool `json:"subscribe,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type TasksCapability struct {
	// List and Cancel advertise the optional task operations.
	List   *struct{} `json:"list,omitempty"`
	Cancel *struct{} `json:"cancel,omitempty"`
}

// InitializeParams is the params type of the initialize request.
type InitializeParams struct {
	Meta            Meta                `json:"_meta,omitempty"`
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    *ClientCapabilities `json:"capabilities"`
	ClientInfo      *Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's reply to initialize.
type InitializeResult struct {
	Meta            Meta                `json:"_meta,omitempty"`
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    *ServerCapabilities `json:"capabilities"`
	ServerInfo      *Implementation     `json:"serverInfo"`
	Instructions    string              `json:"instructions,omitempty"`
}

// InitializedParams is the params type of notifications/initialized.
type InitializedParams struct {
	Meta Meta `json:"_meta,omitempty"`
}

// PingParams is the params type of ping, in both directions.
type PingParams struct {
	Meta Meta `json:"_meta,omitempty"`
}

// EmptyResult is returned by requests whose result carries no data.
type EmptyResult struct {
	Meta Meta `json:"_meta,omitempty"`
}

// A Role identifies the sender or recipient of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content is the interface of message content variants, discriminated on the
// wire by the "type" field.
type Content interface {
	contentType() string
}

// TextContent is text provided to or from an LLM.
type TextContent struct {
	Meta Meta   `json:"_meta,omitempty"`
	Text string `json:"text"`
}

func (*TextContent) contentType() string { return "text" }

// ImageContent is a base64-encoded image.
type ImageContent struct {
	Meta     Meta   `json:"_meta,omitempty"`
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

func (*ImageContent) contentType() string { return "image" }

// AudioContent is base64-encoded audio.
type AudioContent struct {
	Meta     Meta   `json:"_meta,omitempty"`
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

func (*AudioContent) contentType() string { return "audio" }

// EmbeddedResource is the contents of a resource embedded in a message.
type EmbeddedResource struct {
	Meta     Meta              `json:"_meta,omitempty"`
	Resource *ResourceContents `json:"resource"`
}

func (*EmbeddedResource) contentType() string { return "resource" }

// wireContent is the union wire form of all content variants.
type wireContent struct {
	Type     string            `json:"type"`
	Meta     Meta              `json:"_meta,omitempty"`
	Text     string            `json:"text,omitempty"`
	Data     string            `json:"data,omitempty"`
	MIMEType string            `json:"mimeType,omitempty"`
	Resource *ResourceContents `json:"resource,omitempty"`
}

func contentToWire(c Content) (*wireContent, error) {
	switch c := c.(type) {
	case *TextContent:
		return &wireContent{Type: "text", Meta: c.Meta, Text: c.Text}, nil
	case *ImageContent:
		return &wireContent{Type: "image", Meta: c.Meta, Data: c.Data, MIMEType: c.MIMEType}, nil
	case *AudioContent:
		return &wireContent{Type: "audio", Meta: c.Meta, Data: c.Data, MIMEType: c.MIMEType}, nil
	case *EmbeddedResource:
		return &wireContent{Type: "resource", Meta: c.Meta, Resource: c.Resource}, nil
	case nil:
		return nil, fmt.Errorf("nil content")
	default:
		return nil, fmt.Errorf("unknown content type %T", c)
	}
}

func contentFromWire(w *wireContent) (Content, error) {
	switch w.Type {
	case "text":
		return &TextContent{Meta: w.Meta, Text: w.Text}, nil
	case "image":
		return &ImageContent{Meta: w.Meta, Data: w.Data, MIMEType: w.MIMEType}, nil
	case "audio":
		return &AudioContent{Meta: w.Meta, Data: w.Data, MIMEType: w.MIMEType}, nil
	case "resource":
		return &EmbeddedResource{Meta: w.Meta, Resource: w.Resource}, nil
	default:
		return nil, fmt.Errorf("unknown content type %q", w.Type)
	}
}

func contentsToWire(cs []Content) ([]*wireContent, error) {
	wires := make([]*wireContent, 0, len(cs))
	for _, c := range cs {
		w, err := contentToWire(c)
		if err != nil {
			return nil, err
		}
		wires = append(wires, w)
	}
	return wires, nil
}

func contentsFromWire(wires []*wireContent) ([]Content, error) {
	cs := make([]Content, 0, len(wires))
	for _, w := range wires {
		c, err := contentFromWire(w)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return cs, nil
}

// A Tool definition the server offers to clients.
type Tool struct {
	Meta         Meta               `json:"_meta,omitempty"`
	Name         string             `json:"name"`
	Title        string             `json:"title,omitempty"`
	Description  string             `json:"description,omitempty"`
	InputSchema  *jsonschema.Schema `json:"inputSchema"`
	OutputSchema *jsonschema.Schema `json:"outputSchema,omitempty"`
	Execution    *ToolExecution     `json:"execution,omitempty"`
}

// ToolExecution declares whether a tool can run as a task.
type ToolExecution struct {
	// TaskSupport is "forbidden" (the default), "optional" or "required".
	TaskSupport string `json:"taskSupport,omitempty"`
}

// ListToolsParams is the params type of tools/list.
type ListToolsParams struct {
	Meta   Meta   `json:"_meta,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResult is the result type of tools/list.
type ListToolsResult struct {
	Meta       Meta    `json:"_meta,omitempty"`
	Tools      []*Tool `json:"tools"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// CallToolParams is the params type of tools/call as seen by the server.
// Arguments stay raw so handlers can unmarshal into their own types.
type CallToolParams struct {
	Meta      Meta            `json:"_meta,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	// Task, if set, asks the server to run the tool as a task and answer with
	// a CreateTaskResult.
	Task *TaskParams `json:"task,omitempty"`
}

// CallToolResult is the server's response to a tool call.
type CallToolResult struct {
	Meta              Meta      `json:"_meta,omitempty"`
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError,omitempty"`
}

// MarshalJSON implements json.Marshaler, flattening Content to its wire form.
func (x *CallToolResult) MarshalJSON() ([]byte, error) {
	type res CallToolResult // avoid recursion
	wires, err := contentsToWire(x.Content)
	if err != nil {
		return nil, err
	}
	return internaljson.Marshal(struct {
		res
		Content []*wireContent `json:"content"`
	}{res: res(*x), Content: wires})
}

// UnmarshalJSON implements json.Unmarshaler.
func (x *CallToolResult) UnmarshalJSON(data []byte) error {
	type res CallToolResult // avoid recursion
	var wire struct {
		res
		Content []*wireContent `json:"content"`
	}
	if err := internaljson.Unmarshal(data, &wire); err != nil {
		return err
	}
	var err error
	if wire.res.Content, err = contentsFromWire(wire.Content); err != nil {
		return err
	}
	*x = CallToolResult(wire.res)
	return nil
}

// A Prompt the server offers.
type Prompt struct {
	Meta        Meta              `json:"_meta,omitempty"`
	Name        string            `json:"name"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Arguments   []*PromptArgument `json:"arguments,omitempty"`
}

type PromptArgument struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptMessage is one message of a prompt.
type PromptMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

func (m *PromptMessage) MarshalJSON() ([]byte, error) {
	w, err := contentToWire(m.Content)
	if err != nil {
		return nil, err
	}
	return internaljson.Marshal(struct {
		Role    Role         `json:"role"`
		Content *wireContent `json:"content"`
	}{Role: m.Role, Content: w})
}

func (m *PromptMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role    Role         `json:"role"`
		Content *wireContent `json:"content"`
	}
	if err := internaljson.Unmarshal(data, &wire); err != nil {
		return err
	}
	c, err := contentFromWire(wire.Content)
	if err != nil {
		return err
	}
	m.Role, m.Content = wire.Role, c
	return nil
}

type ListPromptsParams struct {
	Meta   Meta   `json:"_meta,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

type ListPromptsResult struct {
	Meta       Meta      `json:"_meta,omitempty"`
	Prompts    []*Prompt `json:"prompts"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

type GetPromptParams struct {
	Meta      Meta              `json:"_meta,omitempty"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

type GetPromptResult struct {
	Meta        Meta             `json:"_meta,omitempty"`
	Description string           `json:"description,omitempty"`
	Messages    []*PromptMessage `json:"messages"`
}

// A Resource the server exposes.
type Resource struct {
	Meta        Meta   `json:"_meta,omitempty"`
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// ResourceContents is the contents of one resource, text or binary.
type ResourceContents struct {
	Meta     Meta   `json:"_meta,omitempty"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     []byte `json:"blob,omitempty"`
}

// A ResourceTemplate describes a parameterized family of resources.
type ResourceTemplate struct {
	Meta        Meta   `json:"_meta,omitempty"`
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

// Matches reports whether uri matches the template, per RFC 6570.
func (t *ResourceTemplate) Matches(uri string) bool {
	tmpl, err := uritemplate.New(t.URITemplate)
	if err != nil {
		return false
	}
	return tmpl.Regexp().MatchString(uri)
}

type ListResourcesParams struct {
	Meta   Meta   `json:"_meta,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

type ListResourcesResult struct {
	Meta       Meta        `json:"_meta,omitempty"`
	Resources  []*Resource `json:"resources"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

type ListResourceTemplatesParams struct {
	Meta   Meta   `json:"_meta,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

type ListResourceTemplatesResult struct {
	Meta              Meta                `json:"_meta,omitempty"`
	ResourceTemplates []*ResourceTemplate `json:"resourceTemplates"`
	NextCursor        string              `json:"nextCursor,omitempty"`
}

type ReadResourceParams struct {
	Meta Meta   `json:"_meta,omitempty"`
	URI  string `json:"uri"`
}

type ReadResourceResult struct {
	Meta     Meta                `json:"_meta,omitempty"`
	Contents []*ResourceContents `json:"contents"`
}

type SubscribeParams struct {
	Meta Meta   `json:"_meta,omitempty"`
	URI  string `json:"uri"`
}

type UnsubscribeParams struct {
	Meta Meta   `json:"_meta,omitempty"`
	URI  string `json:"uri"`
}

type ResourceUpdatedNotificationParams struct {
	Meta Meta   `json:"_meta,omitempty"`
	URI  string `json:"uri"`
}

// A LoggingLevel is a syslog severity, least to most severe.
type LoggingLevel string

const (
	LevelDebug     LoggingLevel = "debug"
	LevelInfo      LoggingLevel = "info"
	LevelNotice    LoggingLevel = "notice"
	LevelWarning   LoggingLevel = "warning"
	LevelError     LoggingLevel = "error"
	LevelCritical  LoggingLevel = "critical"
	LevelAlert     LoggingLevel = "alert"
	LevelEmergency LoggingLevel = "emergency"
)

type SetLoggingLevelParams struct {
	Meta  Meta         `json:"_meta,omitempty"`
	Level LoggingLevel `json:"level"`
}

type LoggingMessageParams struct {
	Meta   Meta         `json:"_meta,omitempty"`
	Level  LoggingLevel `json:"level"`
	Logger string       `json:"logger,omitempty"`
	Data   any          `json:"data"`
}

// CompleteParams is the params type of completion/complete. Refs stay
// structural: the runtime relays them untouched.
type CompleteParams struct {
	Meta     Meta            `json:"_meta,omitempty"`
	Ref      json.RawMessage `json:"ref"`
	Argument *CompleteArgument `json:"argument"`
	Context  json.RawMessage `json:"context,omitempty"`
}

type CompleteArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type CompleteResult struct {
	Meta       Meta                `json:"_meta,omitempty"`
	Completion *CompletionDetails  `json:"completion"`
}

type CompletionDetails struct {
	Values  []string `json:"values"`
	Total   int      `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// ProgressNotificationParams is the params type of notifications/progress.
type ProgressNotificationParams struct {
	Meta          Meta    `json:"_meta,omitempty"`
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// CancelledParams is the params type of notifications/cancelled.
type CancelledParams struct {
	Meta      Meta   `json:"_meta,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID any    `json:"requestId"`
}

// A Root is a directory or file the client grants the server access to.
type Root struct {
	Meta Meta   `json:"_meta,omitempty"`
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

type ListRootsParams struct {
	Meta Meta `json:"_meta,omitempty"`
}

type ListRootsResult struct {
	Meta  Meta    `json:"_meta,omitempty"`
	Roots []*Root `json:"roots"`
}

// SamplingMessage is one message in a sampling conversation.
type SamplingMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

func (m *SamplingMessage) MarshalJSON() ([]byte, error) {
	w, err := contentToWire(m.Content)
	if err != nil {
		return nil, err
	}
	return internaljson.Marshal(struct {
		Role    Role         `json:"role"`
		Content *wireContent `json:"content"`
	}{Role: m.Role, Content: w})
}

func (m *SamplingMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role    Role         `json:"role"`
		Content *wireContent `json:"content"`
	}
	if err := internaljson.Unmarshal(data, &wire); err != nil {
		return err
	}
	c, err := contentFromWire(wire.Content)
	if err != nil {
		return err
	}
	m.Role, m.Content = wire.Role, c
	return nil
}

// CreateMessageParams is the params type of sampling/createMessage
// (server → client).
type CreateMessageParams struct {
	Meta             Meta               `json:"_meta,omitempty"`
	Messages         []*SamplingMessage `json:"messages"`
	ModelPreferences json.RawMessage    `json:"modelPreferences,omitempty"`
	SystemPrompt     string             `json:"systemPrompt,omitempty"`
	MaxTokens        int                `json:"maxTokens,omitempty"`
	Temperature      float64            `json:"temperature,omitempty"`
	StopSequences    []string           `json:"stopSequences,omitempty"`
}

type CreateMessageResult struct {
	Meta       Meta    `json:"_meta,omitempty"`
	Role       Role    `json:"role"`
	Content    Content `json:"content"`
	Model      string  `json:"model"`
	StopReason string  `json:"stopReason,omitempty"`
}

func (r *CreateMessageResult) MarshalJSON() ([]byte, error) {
	w, err := contentToWire(r.Content)
	if err != nil {
		return nil, err
	}
	return internaljson.Marshal(struct {
		Meta       Meta         `json:"_meta,omitempty"`
		Role       Role         `json:"role"`
		Content    *wireContent `json:"content"`
		Model      string       `json:"model"`
		StopReason string       `json:"stopReason,omitempty"`
	}{Meta: r.Meta, Role: r.Role, Content: w, Model: r.Model, StopReason: r.StopReason})
}

func (r *CreateMessageResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Meta       Meta         `json:"_meta,omitempty"`
		Role       Role         `json:"role"`
		Content    *wireContent `json:"content"`
		Model      string       `json:"model"`
		StopReason string       `json:"stopReason,omitempty"`
	}
	if err := internaljson.Unmarshal(data, &wire); err != nil {
		return err
	}
	c, err := contentFromWire(wire.Content)
	if err != nil {
		return err
	}
	*r = CreateMessageResult{Meta: wire.Meta, Role: wire.Role, Content: c, Model: wire.Model, StopReason: wire.StopReason}
	return nil
}

// ElicitParams is the params type of elicitation/create (server → client).
type ElicitParams struct {
	Meta            Meta            `json:"_meta,omitempty"`
	Message         string          `json:"message"`
	RequestedSchema json.RawMessage `json:"requestedSchema,omitempty"`
}

type ElicitResult struct {
	Meta Meta `json:"_meta,omitempty"`
	// Action is "accept", "decline" or "cancel".
	Action  string         `json:"action"`
	Content map[string]any `json:"content,omitempty"`
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusWorking       TaskStatus = "working"
	TaskStatusInputRequired TaskStatus = "input_required"
	TaskStatusCompleted     TaskStatus = "completed"
	TaskStatusFailed        TaskStatus = "failed"
	TaskStatusCancelled     TaskStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// TaskParams augments a request, asking the receiver to run it as a task.
type TaskParams struct {
	// TTL is the requested retention for the task result, in milliseconds,
	// measured from the terminal transition.
	TTL *int64 `json:"ttl,omitempty"`
}

// A Task tracks one augmented request.
type Task struct {
	Meta          Meta       `json:"_meta,omitempty"`
	TaskID        string     `json:"taskId"`
	Status        TaskStatus `json:"status"`
	StatusMessage string     `json:"statusMessage,omitempty"`
	CreatedAt     string     `json:"createdAt"`
	LastUpdatedAt string     `json:"lastUpdatedAt"`
	TTL           *int64     `json:"ttl"`
	// PollInterval advises clients how often to poll tasks/get, in
	// milliseconds.
	PollInterval int64 `json:"pollInterval,omitempty"`
}

// CreateTaskResult is returned in place of the direct result when a request
// is accepted for asynchronous execution.
type CreateTaskResult struct {
	Meta Meta  `json:"_meta,omitempty"`
	Task *Task `json:"task"`
}

type GetTaskParams struct {
	Meta   Meta   `json:"_meta,omitempty"`
	TaskID string `json:"taskId"`
}

type GetTaskResult Task

type ListTasksParams struct {
	Meta   Meta   `json:"_meta,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

type ListTasksResult struct {
	Meta       Meta    `json:"_meta,omitempty"`
	Tasks      []*Task `json:"tasks"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

type CancelTaskParams struct {
	Meta   Meta   `json:"_meta,omitempty"`
	TaskID string `json:"taskId"`
}

type CancelTaskResult Task

type TaskResultParams struct {
	Meta   Meta   `json:"_meta,omitempty"`
	TaskID string `json:"taskId"`
}

// TaskStatusNotificationParams is the params type of
// notifications/tasks/status.
type TaskStatusNotificationParams Task
