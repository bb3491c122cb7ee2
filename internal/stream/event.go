// Package stream implements the "data: " framed event protocol spoken between
// the station server and its consoles.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event kinds as they appear in the "type" field
const (
	TypeText                = "text"
	TypeToolApprovalRequest = "tool_approval_request"
	TypeToolResult          = "tool_result"
	TypeError               = "error"
)

// Event is one decoded frame. The set of implementations is closed:
// TextEvent, ToolApprovalRequestEvent, ToolResultEvent and ErrorEvent.
type Event interface {
	Type() string
	isEvent()
}

// TextEvent carries an incremental piece of model text
type TextEvent struct {
	Content string
}

// ToolRequest identifies a tool call the model wants to make
type ToolRequest struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolApprovalRequestEvent asks the user to approve a tool call
type ToolApprovalRequestEvent struct {
	Tool ToolRequest
}

// ToolResultEvent reports a tool's output, keyed by tool name. IsError marks
// output the tool produced while failing.
type ToolResultEvent struct {
	Tool    string
	Result  string
	IsError bool
}

// ErrorEvent reports a backend failure inside the stream
type ErrorEvent struct {
	Message string
}

func (TextEvent) Type() string                { return TypeText }
func (ToolApprovalRequestEvent) Type() string { return TypeToolApprovalRequest }
func (ToolResultEvent) Type() string          { return TypeToolResult }
func (ErrorEvent) Type() string               { return TypeError }

func (TextEvent) isEvent()                {}
func (ToolApprovalRequestEvent) isEvent() {}
func (ToolResultEvent) isEvent()          {}
func (ErrorEvent) isEvent()               {}

type wireEvent struct {
	Type    string          `json:"type,omitempty"`
	Content *string         `json:"content,omitempty"`
	Tool    json.RawMessage `json:"tool,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

// ErrUnknownEvent is returned for frames whose type is not recognised
var ErrUnknownEvent = errors.New("unknown event type")

// ParseEvent decodes a frame payload (without the "data: " prefix)
func ParseEvent(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, err
	}

	switch w.Type {
	case TypeText:
		if w.Content == nil {
			return nil, errors.New("text event without content")
		}
		return TextEvent{Content: *w.Content}, nil

	case TypeToolApprovalRequest:
		var req ToolRequest
		if len(w.Tool) == 0 {
			return nil, errors.New("tool_approval_request without tool")
		}
		if err := json.Unmarshal(w.Tool, &req); err != nil {
			return nil, fmt.Errorf("tool_approval_request: %w", err)
		}
		if req.Name == "" {
			return nil, errors.New("tool_approval_request without tool name")
		}
		if len(req.Args) == 0 || string(req.Args) == "null" {
			req.Args = json.RawMessage(`{}`)
		}
		return ToolApprovalRequestEvent{Tool: req}, nil

	case TypeToolResult:
		var name string
		if err := json.Unmarshal(w.Tool, &name); err != nil {
			return nil, fmt.Errorf("tool_result tool name: %w", err)
		}
		return ToolResultEvent{Tool: name, Result: resultText(w.Result), IsError: w.IsError}, nil

	case TypeError:
		return ErrorEvent{Message: w.Error}, nil

	case "":
		// frames without a type but with an error field are still errors
		if w.Error != "" {
			return ErrorEvent{Message: w.Error}, nil
		}
		return nil, errors.New("event without type")

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, w.Type)
	}
}

// MarshalEvent encodes an event as a frame payload
func MarshalEvent(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case TextEvent:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}{TypeText, e.Content})
	case ToolApprovalRequestEvent:
		tool := e.Tool
		if len(tool.Args) == 0 {
			tool.Args = json.RawMessage(`{}`)
		}
		return json.Marshal(struct {
			Type string      `json:"type"`
			Tool ToolRequest `json:"tool"`
		}{TypeToolApprovalRequest, tool})
	case ToolResultEvent:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Tool    string `json:"tool"`
			Result  string `json:"result"`
			IsError bool   `json:"is_error,omitempty"`
		}{TypeToolResult, e.Tool, e.Result, e.IsError})
	case ErrorEvent:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}{TypeError, e.Message})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// resultText keeps string results as-is and renders anything else as JSON
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
