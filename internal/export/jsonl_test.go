package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/mcp-station/internal"
)

func TestJSONLExporter_Export(t *testing.T) {
	tests := []struct {
		name    string
		session *internal.Session
		want    []string
	}{
		{
			name:    "empty session",
			session: internal.CreateTestSessionWithMessages("test1", []internal.Message{}),
		},
		{
			name:    "session with messages",
			session: internal.CreateTestSession("test2"),
			want: []string{
				`"role":"user"`,
				`"role":"model"`,
				`"feedback":"liked"`,
				`"tool_calls":[{"name":"tools__generate_secure_password","state":"completed","args":{"length":16}}]`,
				`"is_tool_result":true`,
			},
		},
		{
			name: "session with timestamp",
			session: internal.CreateTestSessionWithMessages("test3", []internal.Message{
				{ID: "m1", Role: internal.RoleUser, Content: "Hello", CreatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
			}),
			want: []string{`"timestamp":"2023-01-01T00:00:00Z"`},
		},
		{
			name: "session without timestamp",
			session: internal.CreateTestSessionWithMessages("test4", []internal.Message{
				{ID: "m1", Role: internal.RoleUser, Content: "Hello"},
			}),
			want: []string{`"session_id":"test4"`, `"content":"Hello"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			exporter := &JSONLExporter{}

			if err := exporter.Export(tt.session, &buf); err != nil {
				t.Fatalf("JSONLExporter.Export() error = %v", err)
			}

			output := buf.String()
			if len(tt.session.Messages) == 0 {
				if output != "" {
					t.Errorf("Empty session should produce empty output, got: %q", output)
				}
				return
			}

			lines := strings.Split(strings.TrimSpace(output), "\n")
			if len(lines) != len(tt.session.Messages) {
				t.Errorf("got %d lines, want %d", len(lines), len(tt.session.Messages))
			}
			for i, line := range lines {
				var msg map[string]any
				if err := json.Unmarshal([]byte(line), &msg); err != nil {
					t.Errorf("Line %d is not valid JSON: %v", i, err)
					continue
				}
				for _, key := range []string{"session_id", "id", "role", "content"} {
					if _, ok := msg[key]; !ok {
						t.Errorf("Line %d missing %q field", i, key)
					}
				}
			}
			if strings.Contains(tt.name, "without timestamp") && strings.Contains(output, "timestamp") {
				t.Errorf("Output should not contain a timestamp: %s", output)
			}

			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("Output should contain %q\nGot: %s", want, output)
				}
			}
		})
	}
}

func TestJSONLExporter_Extension(t *testing.T) {
	exporter := &JSONLExporter{}
	if got := exporter.Extension(); got != "jsonl" {
		t.Errorf("JSONLExporter.Extension() = %v, want jsonl", got)
	}
}
