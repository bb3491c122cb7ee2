package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/iksnae/mcp-station/internal"
)

// JSONLExporter exports sessions in JSONL format (one message per line)
type JSONLExporter struct{}

type jsonlToolCall struct {
	Name  string                 `json:"name"`
	State internal.ToolCallState `json:"state"`
	Args  json.RawMessage        `json:"args,omitempty"`
}

type jsonlRecord struct {
	SessionID    string            `json:"session_id"`
	ID           string            `json:"id"`
	Role         internal.Role     `json:"role"`
	Content      string            `json:"content"`
	Feedback     internal.Feedback `json:"feedback,omitempty"`
	ToolCalls    []jsonlToolCall   `json:"tool_calls,omitempty"`
	IsToolResult bool              `json:"is_tool_result,omitempty"`
	ToolCallID   string            `json:"tool_call_id,omitempty"`
	Timestamp    string            `json:"timestamp,omitempty"`
}

// Export exports a session to JSONL format
func (e *JSONLExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, msg := range session.Messages {
		rec := jsonlRecord{
			SessionID:    session.ID,
			ID:           msg.ID,
			Role:         msg.Role,
			Content:      msg.Content,
			Feedback:     msg.Feedback,
			IsToolResult: msg.IsToolResult,
			ToolCallID:   msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			rec.ToolCalls = append(rec.ToolCalls, jsonlToolCall{Name: tc.Name, State: tc.State, Args: tc.Args})
		}
		if !msg.CreatedAt.IsZero() {
			rec.Timestamp = msg.CreatedAt.UTC().Format(time.RFC3339)
		}

		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
