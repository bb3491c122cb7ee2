package tui

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/console"
)

func TestRenderMessages(t *testing.T) {
	th := newTheme()
	if got := renderMessages(nil, 80, th); !strings.Contains(got, "No messages yet") {
		t.Errorf("empty render = %q", got)
	}

	msgs := []internal.Message{
		{ID: "u1", Role: internal.RoleUser, Content: "hash abc", Image: &internal.ImageAttachment{MIMEType: "image/png"}},
		{ID: "m1", Role: internal.RoleModel, Content: "Hashing.", Feedback: internal.FeedbackLiked, ToolCalls: []internal.ToolCall{
			{ID: "c1", Name: "tools__calculate_hash", Args: json.RawMessage(`{"text":"abc"}`), State: internal.ToolCallPending},
		}},
		{ID: "r1", Role: internal.RoleUser, IsToolResult: true, Content: "1\n2\n3\n4\n5\n6\n7\n8"},
		{ID: "m2", Role: internal.RoleModel, ToolCalls: []internal.ToolCall{
			{ID: "c2", Name: "x", State: internal.ToolCallFailed, Error: "cancelled"},
		}},
		{ID: "m3", Role: internal.RoleModel},
	}
	got := renderMessages(msgs, 80, th)
	for _, want := range []string{
		"you", "hash abc", "[image: image/png]",
		"model +1", "Hashing.",
		`⚙ tools__calculate_hash {"text":"abc"}`, "awaiting approval",
		"⤷ tool result", "… 2 more lines",
		"failed: cancelled",
		"…",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("render missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\n7\n") {
		t.Errorf("tool result was not clipped:\n%s", got)
	}
}

func TestClipLines(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"a\nb", 3, "a\nb"},
		{"a\nb\nc\nd", 2, "a\nb\n… 2 more lines"},
	}
	for _, tt := range tests {
		if got := clipLines(tt.in, tt.n); got != tt.want {
			t.Errorf("clipLines(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRenderHeader(t *testing.T) {
	view := console.SessionView{Info: internal.SessionInfo{ID: "s1", Title: "Hashing"}}
	conns := []internal.Connection{
		{ID: "a", Status: internal.StatusConnected, ToolCount: 3},
		{ID: "b", Status: internal.StatusError, ToolCount: 2},
	}
	got := renderHeader(view, "", conns, 100, newTheme())
	for _, want := range []string{"Hashing", "server default", "1/2 servers", "3 tools"} {
		if !strings.Contains(got, want) {
			t.Errorf("header missing %q: %q", want, got)
		}
	}
}

func TestRenderLists(t *testing.T) {
	sessions := renderSessions([]internal.SessionInfo{{ID: "0123456789", Title: "One"}, {ID: "s2", Title: "Two"}}, "s2")
	if !strings.Contains(sessions, "  1. One  (01234567)") || !strings.Contains(sessions, "* 2. Two") {
		t.Errorf("renderSessions() = %q", sessions)
	}
	conns := renderConnections([]internal.Connection{{ID: "a", Type: internal.TransportSSE, Status: internal.StatusError, Error: "refused"}})
	if !strings.Contains(conns, "- a [sse] error: 0 tools (refused)") {
		t.Errorf("renderConnections() = %q", conns)
	}
	if got := renderTools(nil); got != "No tools available." {
		t.Errorf("renderTools(nil) = %q", got)
	}
}
