package stream

import (
	"errors"
	"testing"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
		wantErr bool
	}{
		{
			name:    "text",
			payload: `{"type":"text","content":"Hello"}`,
			want:    TextEvent{Content: "Hello"},
		},
		{
			name:    "empty text",
			payload: `{"type":"text","content":""}`,
			want:    TextEvent{Content: ""},
		},
		{
			name:    "tool result",
			payload: `{"type":"tool_result","tool":"tools__generate_uuid","result":"abc"}`,
			want:    ToolResultEvent{Tool: "tools__generate_uuid", Result: "abc"},
		},
		{
			name:    "tool result with structured payload",
			payload: `{"type":"tool_result","tool":"calc","result":{"v":1}}`,
			want:    ToolResultEvent{Tool: "calc", Result: `{"v":1}`},
		},
		{
			name:    "failed tool result",
			payload: `{"type":"tool_result","tool":"calc","result":"Tool Execution Error: boom","is_error":true}`,
			want:    ToolResultEvent{Tool: "calc", Result: "Tool Execution Error: boom", IsError: true},
		},
		{
			name:    "typed error",
			payload: `{"type":"error","error":"rate limited"}`,
			want:    ErrorEvent{Message: "rate limited"},
		},
		{
			name:    "legacy error",
			payload: `{"error":"No LLM provider available"}`,
			want:    ErrorEvent{Message: "No LLM provider available"},
		},
		{name: "text without content", payload: `{"type":"text"}`, wantErr: true},
		{name: "no type", payload: `{"content":"x"}`, wantErr: true},
		{name: "approval without tool", payload: `{"type":"tool_approval_request"}`, wantErr: true},
		{name: "approval without name", payload: `{"type":"tool_approval_request","tool":{"id":"1"}}`, wantErr: true},
		{name: "invalid json", payload: `{"type":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("ParseEvent() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseEvent_ToolApprovalRequest(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantArgs string
	}{
		{"with args", `{"type":"tool_approval_request","tool":{"id":"c1","name":"calc","args":{"a":1}}}`, `{"a":1}`},
		{"null args", `{"type":"tool_approval_request","tool":{"id":"c1","name":"calc","args":null}}`, `{}`},
		{"missing args", `{"type":"tool_approval_request","tool":{"id":"c1","name":"calc"}}`, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.payload))
			if err != nil {
				t.Fatalf("ParseEvent() error = %v", err)
			}
			req, ok := ev.(ToolApprovalRequestEvent)
			if !ok {
				t.Fatalf("ParseEvent() = %T, want ToolApprovalRequestEvent", ev)
			}
			if req.Tool.ID != "c1" || req.Tool.Name != "calc" {
				t.Errorf("tool = %+v", req.Tool)
			}
			if string(req.Tool.Args) != tt.wantArgs {
				t.Errorf("args = %s, want %s", req.Tool.Args, tt.wantArgs)
			}
		})
	}
}

func TestParseEvent_Unknown(t *testing.T) {
	_, err := ParseEvent([]byte(`{"type":"thought","content":"hmm"}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("ParseEvent() error = %v, want ErrUnknownEvent", err)
	}
}

func TestMarshalEvent_ParsesBack(t *testing.T) {
	events := []Event{
		TextEvent{Content: "line\nbreak"},
		ToolResultEvent{Tool: "t", Result: "ok"},
		ToolResultEvent{Tool: "t", Result: "Invalid arguments", IsError: true},
		ErrorEvent{Message: "bad"},
	}
	for _, ev := range events {
		data, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("MarshalEvent(%T) error = %v", ev, err)
		}
		got, err := ParseEvent(data)
		if err != nil {
			t.Fatalf("ParseEvent(%s) error = %v", data, err)
		}
		if got != ev {
			t.Errorf("round trip = %#v, want %#v", got, ev)
		}
	}

	data, err := MarshalEvent(ToolApprovalRequestEvent{Tool: ToolRequest{ID: "1", Name: "n"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"tool_approval_request","tool":{"id":"1","name":"n","args":{}}}` {
		t.Errorf("MarshalEvent() = %s", data)
	}
}
