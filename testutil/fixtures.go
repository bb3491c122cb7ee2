package testutil

import (
	"encoding/json"
	"strings"
	"testing"
)

// DoneFrame is the terminal frame of an event stream
const DoneFrame = "data: [DONE]\n\n"

// Frame encodes v as a single "data: " frame
func Frame(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal frame: %v", err)
	}
	return "data: " + string(data) + "\n\n"
}

// TextFrame is a text event frame
func TextFrame(t *testing.T, content string) string {
	t.Helper()
	return Frame(t, map[string]any{"type": "text", "content": content})
}

// ApprovalFrame is a tool_approval_request frame
func ApprovalFrame(t *testing.T, id, name string, args map[string]any) string {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	return Frame(t, map[string]any{
		"type": "tool_approval_request",
		"tool": map[string]any{"id": id, "name": name, "args": args},
	})
}

// ResultFrame is a tool_result frame
func ResultFrame(t *testing.T, name, result string) string {
	t.Helper()
	return Frame(t, map[string]any{"type": "tool_result", "tool": name, "result": result})
}

// FailedResultFrame is a tool_result frame for a tool that reported an error
func FailedResultFrame(t *testing.T, name, result string) string {
	t.Helper()
	return Frame(t, map[string]any{"type": "tool_result", "tool": name, "result": result, "is_error": true})
}

// ErrorFrame is an error frame
func ErrorFrame(t *testing.T, msg string) string {
	t.Helper()
	return Frame(t, map[string]any{"type": "error", "error": msg})
}

// Stream joins frames into a single body
func Stream(frames ...string) string {
	return strings.Join(frames, "")
}
