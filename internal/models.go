package internal

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultSessionTitle is the placeholder title a session carries until one is derived
const DefaultSessionTitle = "New Chat"

// Role identifies the author of a message
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// NormalizeRole maps provider role names onto the two roles the console knows
func NormalizeRole(role string) Role {
	switch role {
	case "model", "assistant":
		return RoleModel
	default:
		return RoleUser
	}
}

// Feedback is the user's rating of a model message
type Feedback string

const (
	FeedbackNone     Feedback = ""
	FeedbackLiked    Feedback = "liked"
	FeedbackDisliked Feedback = "disliked"
)

// ToolCallState tracks a tool call through the approval round-trip
type ToolCallState string

const (
	ToolCallPending   ToolCallState = "pending"
	ToolCallApproved  ToolCallState = "approved"
	ToolCallCompleted ToolCallState = "completed"
	ToolCallFailed    ToolCallState = "failed"
)

// Terminal reports whether no further transition is allowed
func (s ToolCallState) Terminal() bool {
	return s == ToolCallCompleted || s == ToolCallFailed
}

// SessionInfo is the listing view of a chat session
type SessionInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Session is a chat session with its ordered message log
type Session struct {
	SessionInfo `yaml:",inline"`
	Messages    []Message `json:"messages" yaml:"messages"`
}

// ImageAttachment is an inline image sent with a user message
type ImageAttachment struct {
	MIMEType string `json:"mimeType" yaml:"mime_type"`
	Data     string `json:"data" yaml:"data"` // base64
}

// ToolCall is a model-originated request to invoke a tool
type ToolCall struct {
	ID     string          `json:"id" yaml:"id"`
	Name   string          `json:"name" yaml:"name"`
	Args   json.RawMessage `json:"args,omitempty" yaml:"-"`
	State  ToolCallState   `json:"state,omitempty" yaml:"state"`
	Result string          `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// ArgsMap decodes the argument payload; a missing or invalid payload yields an empty map
func (tc ToolCall) ArgsMap() map[string]any {
	args := map[string]any{}
	if len(tc.Args) == 0 {
		return args
	}
	if err := json.Unmarshal(tc.Args, &args); err != nil {
		return map[string]any{}
	}
	return args
}

// MarshalYAML writes Args as a mapping rather than raw bytes
func (tc ToolCall) MarshalYAML() (any, error) {
	type plain ToolCall
	return struct {
		plain `yaml:",inline"`
		Args  map[string]any `yaml:"args,omitempty"`
	}{plain(tc), tc.ArgsMap()}, nil
}

// Message is a single entry in a session's log
type Message struct {
	ID               string           `json:"id" yaml:"id"`
	Role             Role             `json:"role" yaml:"role"`
	Content          string           `json:"content" yaml:"content"`
	Image            *ImageAttachment `json:"image,omitempty" yaml:"image,omitempty"`
	Feedback         Feedback         `json:"feedback,omitempty" yaml:"feedback,omitempty"`
	ToolCalls        []ToolCall       `json:"toolCalls,omitempty" yaml:"tool_calls,omitempty"`
	AwaitingApproval bool             `json:"awaitingApproval,omitempty" yaml:"awaiting_approval,omitempty"`
	Artifact         *Artifact        `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	IsToolResult     bool             `json:"is_tool_result,omitempty" yaml:"is_tool_result,omitempty"`
	ToolCallID       string           `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Clone returns a deep copy so callers can modify it without touching shared state
func (m Message) Clone() Message {
	out := m
	if m.Image != nil {
		img := *m.Image
		out.Image = &img
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			if tc.Args != nil {
				tc.Args = append(json.RawMessage(nil), tc.Args...)
			}
			out.ToolCalls[i] = tc
		}
	}
	if m.Artifact != nil {
		a := m.Artifact.clone()
		out.Artifact = &a
	}
	return out
}

// HasPendingToolCall reports whether any tool call still waits for approval
func (m Message) HasPendingToolCall() bool {
	for _, tc := range m.ToolCalls {
		if tc.State == ToolCallPending {
			return true
		}
	}
	return false
}

// SyncAwaitingApproval re-derives AwaitingApproval from the tool call states
func (m *Message) SyncAwaitingApproval() {
	m.AwaitingApproval = m.HasPendingToolCall()
}

// ArtifactType discriminates artifact payloads
type ArtifactType string

const (
	ArtifactTestCases   ArtifactType = "test_cases"
	ArtifactProjectPlan ArtifactType = "project_plan"
)

// TestCase is one entry of a test_cases artifact
type TestCase struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Steps    []string `json:"steps,omitempty" yaml:"steps,omitempty"`
	Expected string   `json:"expected,omitempty" yaml:"expected,omitempty"`
	Priority string   `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// PlanStep is one entry of a project_plan artifact
type PlanStep struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Owner       string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Artifact is a typed side-document attached to a model message
type Artifact struct {
	Type  ArtifactType `json:"type" yaml:"type"`
	Title string       `json:"title" yaml:"title"`
	Cases []TestCase   `json:"cases,omitempty" yaml:"cases,omitempty"`
	Steps []PlanStep   `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// Validate checks the fields each artifact type requires
func (a Artifact) Validate() error {
	switch a.Type {
	case ArtifactTestCases:
		if len(a.Cases) == 0 {
			return fmt.Errorf("artifact %s requires at least one test case", a.Type)
		}
		for i, c := range a.Cases {
			if c.Title == "" {
				return fmt.Errorf("artifact %s: case %d has no title", a.Type, i)
			}
		}
	case ArtifactProjectPlan:
		if len(a.Steps) == 0 {
			return fmt.Errorf("artifact %s requires at least one step", a.Type)
		}
		for i, s := range a.Steps {
			if s.Title == "" {
				return fmt.Errorf("artifact %s: step %d has no title", a.Type, i)
			}
		}
	default:
		return fmt.Errorf("unknown artifact type %q", a.Type)
	}
	return nil
}

func (a Artifact) clone() Artifact {
	out := a
	if a.Cases != nil {
		out.Cases = make([]TestCase, len(a.Cases))
		for i, c := range a.Cases {
			c.Steps = append([]string(nil), c.Steps...)
			out.Cases[i] = c
		}
	}
	if a.Steps != nil {
		out.Steps = append([]PlanStep(nil), a.Steps...)
	}
	return out
}

// TransportType selects how a tool server is reached
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
	TransportSSE   TransportType = "sse"
)

// ParseTransportType validates a transport name
func ParseTransportType(s string) (TransportType, error) {
	switch TransportType(s) {
	case TransportStdio, TransportHTTP, TransportSSE:
		return TransportType(s), nil
	default:
		return "", fmt.Errorf("unknown transport type %q (supported: stdio, http, sse)", s)
	}
}

// ConnectionStatus is the lifecycle state of a tool-server connection
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Connection is a tool server known to the console
type Connection struct {
	ID        string           `json:"id" yaml:"id"`
	Target    string           `json:"target" yaml:"target"`
	Type      TransportType    `json:"type" yaml:"type"`
	Status    ConnectionStatus `json:"status" yaml:"status"`
	ToolCount int              `json:"tools" yaml:"tools"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Tool is a tool capability exposed by a connection
type Tool struct {
	ConnectionID string         `json:"connection_id,omitempty"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"parameters,omitempty"`
}

// Resource is a resource capability exposed by a connection
type Resource struct {
	ConnectionID string `json:"connection_id"`
	Name         string `json:"name"`
	URI          string `json:"uri"`
	MIMEType     string `json:"mimeType,omitempty"`
	Description  string `json:"description,omitempty"`
}

// PromptArgument describes one argument of a prompt template
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt is a prompt capability exposed by a connection
type Prompt struct {
	ConnectionID string           `json:"connection_id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Arguments    []PromptArgument `json:"arguments,omitempty"`
}
