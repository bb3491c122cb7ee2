package backend

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/iksnae/mcp-station/internal"
)

type stubProvider struct {
	name      string
	available bool
}

func (s stubProvider) Name() string    { return s.name }
func (s stubProvider) Model() string   { return s.name + "-model" }
func (s stubProvider) Available() bool { return s.available }
func (s stubProvider) Complete(ctx context.Context, req CompletionRequest, onText func(string) error) (Completion, error) {
	return Completion{}, nil
}
func (s stubProvider) Title(ctx context.Context, text string) (string, error) { return "", nil }

func TestNewProviders_Fallback(t *testing.T) {
	tests := []struct {
		name   string
		active string
		want   string
	}{
		{"requested available", "b", "b"},
		{"requested unavailable", "a", "b"},
		{"unknown", "nope", "b"},
		{"empty", "", "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewProviders(tt.active, stubProvider{"a", false}, stubProvider{"b", true}, stubProvider{"c", true})
			if got := set.Active(); got != tt.want {
				t.Errorf("Active() = %q, want %q", got, tt.want)
			}
		})
	}

	none := NewProviders("a", stubProvider{"a", false})
	if none.Active() != "" {
		t.Errorf("Active() = %q, want empty", none.Active())
	}
	if _, err := none.Get(""); err == nil {
		t.Error("Get(\"\") should fail without an available provider")
	}
}

func TestProviders_SwitchAndStatus(t *testing.T) {
	set := NewProviders("b", stubProvider{"a", false}, stubProvider{"b", true}, stubProvider{"c", true})

	for _, name := range []string{"", "a", "zzz"} {
		if err := set.Switch(name); err == nil {
			t.Errorf("Switch(%q) should fail", name)
		}
	}
	if set.Active() != "b" {
		t.Fatalf("failed switch changed the active provider to %q", set.Active())
	}

	if err := set.Switch("c"); err != nil {
		t.Fatalf("Switch(c) error = %v", err)
	}
	p, err := set.Get("")
	if err != nil || p.Name() != "c" {
		t.Errorf("Get(\"\") = %v, %v", p, err)
	}

	status := set.Status()
	if status.ActiveProvider != "c" {
		t.Errorf("ActiveProvider = %q", status.ActiveProvider)
	}
	if info := status.Providers["a"]; info.Available || info.Model != "" {
		t.Errorf("status a = %+v", info)
	}
	if info := status.Providers["b"]; !info.Available || info.Model != "b-model" {
		t.Errorf("status b = %+v", info)
	}
	if names := set.Names(); strings.Join(names, ",") != "a,b,c" {
		t.Errorf("Names() = %v", names)
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"Weather In Paris."`, "Weather In Paris"},
		{"## Title\nsecond line", "Title"},
		{"  **Bold Title**  ", "Bold Title"},
		{strings.Repeat("x", 80), strings.Repeat("x", internal.DefaultTitleMaxRune)},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanTitle(tt.in); got != tt.want {
			t.Errorf("cleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func collect(t *testing.T, p Provider, req CompletionRequest) (Completion, []string) {
	t.Helper()
	var chunks []string
	comp, err := p.Complete(context.Background(), req, func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	return comp, chunks
}

func TestEchoProvider_Complete(t *testing.T) {
	echo := NewEchoProvider()
	echo.newID = func() string { return "call_1" }
	tools := []internal.Tool{{Name: "tools__generate_uuid", Description: "Generates UUIDs"}}

	tests := []struct {
		name      string
		last      internal.Message
		wantText  string
		wantCalls int
	}{
		{"echo", internal.Message{Role: internal.RoleUser, Content: "hello there"}, "Echo: hello there", 0},
		{"image", internal.Message{Role: internal.RoleUser, Content: "look", Image: &internal.ImageAttachment{MIMEType: "image/png"}}, "Echo: look [image: image/png]", 0},
		{"list tools", internal.Message{Role: internal.RoleUser, Content: "/tools"}, "Available tools:\n- tools__generate_uuid: Generates UUIDs", 0},
		{"tool request", internal.Message{Role: internal.RoleUser, Content: `/tool tools__generate_uuid {"count":2}`}, "Requesting tools__generate_uuid.", 1},
		{"bad args", internal.Message{Role: internal.RoleUser, Content: `/tool x {nope`}, "invalid tool arguments", 0},
		{"tool result", internal.Message{Role: internal.RoleUser, IsToolResult: true, Content: "Tool 'x' Output:\n42"}, "The tool returned:\n42", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, chunks := collect(t, echo, CompletionRequest{History: []internal.Message{tt.last}, Tools: tools})
			if !strings.HasPrefix(comp.Text, tt.wantText) {
				t.Errorf("Text = %q, want prefix %q", comp.Text, tt.wantText)
			}
			if strings.Join(chunks, "") != comp.Text {
				t.Errorf("chunks %q do not add up to %q", chunks, comp.Text)
			}
			if len(comp.ToolCalls) != tt.wantCalls {
				t.Fatalf("ToolCalls = %d, want %d", len(comp.ToolCalls), tt.wantCalls)
			}
			if tt.wantCalls == 1 {
				call := comp.ToolCalls[0]
				if call.ID != "call_1" || call.State != internal.ToolCallPending || call.ArgsMap()["count"] != float64(2) {
					t.Errorf("ToolCall = %+v", call)
				}
			}
		})
	}
}

func TestEchoProvider_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	comp, err := NewEchoProvider().Complete(context.Background(), CompletionRequest{
		History: []internal.Message{{Role: internal.RoleUser, Content: "one two three"}},
	}, func(string) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("Complete() error = %v, want stop", err)
	}
	if comp.Text != "Echo: " {
		t.Errorf("partial Text = %q", comp.Text)
	}
}

func TestEchoProvider_Title(t *testing.T) {
	got, _ := NewEchoProvider().Title(context.Background(), "what is the weather like in Paris today")
	if got != "what is the weather like" {
		t.Errorf("Title() = %q", got)
	}
}

func TestBuildMessages(t *testing.T) {
	history := []internal.Message{
		{Role: internal.RoleUser, Content: "hash abc", Image: &internal.ImageAttachment{MIMEType: "image/png", Data: "AAAA"}},
		{Role: internal.RoleModel, Content: "Hashing.", ToolCalls: []internal.ToolCall{
			{ID: "c1", Name: "tools__calculate_hash", Args: json.RawMessage(`{"text":"abc"}`)},
		}},
		{Role: internal.RoleUser, IsToolResult: true, ToolCallID: "c1", Content: strings.Repeat("h", 30)},
		{Role: internal.RoleModel, ToolCalls: []internal.ToolCall{{ID: "c2", Name: "tools__generate_uuid"}}},
	}
	tools := []internal.Tool{{Name: "tools__calculate_hash", Description: "hash"}}

	got := buildMessages(history, tools, 10)
	if len(got) != 4 {
		t.Fatalf("buildMessages() returned %d messages, want 4: %+v", len(got), got)
	}
	if got[0].Role != "system" || !strings.Contains(got[0].Content.(string), "- tools__calculate_hash: hash") {
		t.Errorf("system message = %+v", got[0])
	}
	parts, ok := got[1].Content.([]map[string]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("user content = %#v", got[1].Content)
	}
	if url := parts[1]["image_url"].(map[string]string)["url"]; url != "data:image/png;base64,AAAA" {
		t.Errorf("image url = %q", url)
	}
	if got[2].Role != "assistant" || len(got[2].ToolCalls) != 1 || got[2].ToolCalls[0].Function.Arguments != `{"text":"abc"}` {
		t.Errorf("assistant message = %+v", got[2])
	}
	tool := got[3]
	if tool.Role != "tool" || tool.ToolCallID != "c1" || !strings.Contains(tool.Content.(string), "Output truncated. Total length: 30") {
		t.Errorf("tool message = %+v", tool)
	}
}

func TestArgsString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "{}"},
		{"null", "{}"},
		{`{"a":`, "{}"},
		{`{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := argsString(json.RawMessage(tt.in)); got != tt.want {
			t.Errorf("argsString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
