package backend

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
	"github.com/iksnae/mcp-station/internal/toolserver"
)

// inProcessDialer connects every target to srv without spawning processes
func inProcessDialer(srv *server.MCPServer) Dialer {
	return func(ctx context.Context, target string, typ internal.TransportType) (*client.Client, error) {
		c, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func newTestManager(t *testing.T, outputLimit int) *MCPManager {
	t.Helper()
	srv := toolserver.New("test", toolserver.WithClock(func() time.Time {
		return time.Date(2024, 1, 30, 9, 0, 0, 0, time.UTC)
	}))
	m := NewMCPManager(inProcessDialer(srv), 5*time.Second, outputLimit, "test")
	t.Cleanup(m.CloseAll)
	return m
}

func connectTools(t *testing.T, m *MCPManager, id string) api.ConnectResponse {
	t.Helper()
	resp, err := m.Connect(context.Background(), api.ConnectRequest{ID: id, Target: "station tool-server", Type: internal.TransportStdio})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return resp
}

func TestResolveTransport(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		typ        internal.TransportType
		wantTarget string
		wantType   internal.TransportType
		wantErr    bool
	}{
		{"gitmcp forces sse", "https://gitmcp.io/owner/repo", internal.TransportHTTP, "https://gitmcp.io/owner/repo/sse", internal.TransportSSE, false},
		{"gitmcp keeps suffix", "https://gitmcp.io/owner/repo/sse", internal.TransportSSE, "https://gitmcp.io/owner/repo/sse", internal.TransportSSE, false},
		{"script forces stdio", "server.py", internal.TransportSSE, "server.py", internal.TransportStdio, false},
		{"command stays stdio", "npx -y some-server", internal.TransportStdio, "npx -y some-server", internal.TransportStdio, false},
		{"url with stdio becomes http", "http://localhost:9000/mcp", internal.TransportStdio, "http://localhost:9000/mcp", internal.TransportHTTP, false},
		{"url sse", "http://localhost:9000/sse", internal.TransportSSE, "http://localhost:9000/sse", internal.TransportSSE, false},
		{"url no type", "https://example.com/mcp", "", "https://example.com/mcp", internal.TransportHTTP, false},
		{"empty", "  ", internal.TransportStdio, "", "", true},
		{"bad type", "https://example.com/mcp", "ftp", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, typ, err := ResolveTransport(tt.target, tt.typ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveTransport() error = %v, wantErr %v", err, tt.wantErr)
			}
			if target != tt.wantTarget || typ != tt.wantType {
				t.Errorf("ResolveTransport() = %q, %q, want %q, %q", target, typ, tt.wantTarget, tt.wantType)
			}
		})
	}
}

func TestStdioCommand(t *testing.T) {
	tests := []struct {
		target  string
		command string
		args    []string
		wantErr bool
	}{
		{"npx -y @modelcontextprotocol/server-everything", "npx", []string{"-y", "@modelcontextprotocol/server-everything"}, false},
		{`uvx "my server" --flag`, "uvx", []string{"my server", "--flag"}, false},
		{"python", "python3", []string{}, false},
		{"mcp-station tool-server", "mcp-station", []string{"tool-server"}, false},
		{`echo "unterminated`, "", nil, true},
		{"   ", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			command, args, err := StdioCommand(tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("StdioCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if command != tt.command || !slices.Equal(args, tt.args) {
				t.Errorf("StdioCommand() = %q %q, want %q %q", command, args, tt.command, tt.args)
			}
		})
	}

	command, args, _ := StdioCommand("missing/server.py --port 1")
	if command != "python3" || len(args) != 3 || args[0] != "missing/server.py" {
		t.Errorf("script command = %q %q", command, args)
	}
}

func TestExposedToolName(t *testing.T) {
	tests := []struct {
		conn, tool string
		want       string
	}{
		{"tools", "calculate_hash", "tools__calculate_hash"},
		{"my-server", "fs.read", "my_server__fs_read"},
		{"1st", "x", "action_1st__x"},
		{"_private", "x", "action__private__x"},
		{"c", strings.Repeat("t", 80), "c__" + strings.Repeat("t", 60)},
	}
	for _, tt := range tests {
		got := ExposedToolName(tt.conn, tt.tool)
		if got != tt.want {
			t.Errorf("ExposedToolName(%q, %q) = %q, want %q", tt.conn, tt.tool, got, tt.want)
		}
		if len(got) > maxToolNameLen {
			t.Errorf("ExposedToolName(%q, %q) has %d chars", tt.conn, tt.tool, len(got))
		}
	}
}

func TestMCPManager_ConnectAndList(t *testing.T) {
	m := newTestManager(t, 0)
	resp := connectTools(t, m, "tools")
	if resp.Status != "connected" || resp.Tools != 4 || resp.Resources != 1 || resp.Prompts != 1 {
		t.Errorf("Connect() = %+v", resp)
	}

	tools := m.Tools()
	var names []string
	for _, tl := range tools {
		names = append(names, tl.Name)
		if tl.ConnectionID != "tools" {
			t.Errorf("tool %s has connection %q", tl.Name, tl.ConnectionID)
		}
	}
	if !slices.Contains(names, "tools__calculate_hash") {
		t.Errorf("tools = %v", names)
	}
	for _, tl := range tools {
		if tl.Name == "tools__calculate_hash" {
			props, _ := tl.InputSchema["properties"].(map[string]any)
			if _, ok := props["text"]; !ok {
				t.Errorf("schema = %v, want a text property", tl.InputSchema)
			}
		}
	}

	if got := m.Resources(); len(got) != 1 || got[0].URI != toolserver.AboutURI {
		t.Errorf("Resources() = %+v", got)
	}
	if got := m.Prompts(); len(got) != 1 || got[0].Name != "generate_credentials" || len(got[0].Arguments) != 1 {
		t.Errorf("Prompts() = %+v", got)
	}
	if status := m.Status(); len(status) != 1 || status[0].Tools != 4 || status[0].Type != internal.TransportStdio {
		t.Errorf("Status() = %+v", status)
	}
}

func TestMCPManager_ToolDescriptionCutOnRunes(t *testing.T) {
	srv := server.NewMCPServer("wide", "1.0.0", server.WithToolCapabilities(false))
	desc := "a" + strings.Repeat("é", 1100)
	srv.AddTool(mcp.NewTool("describe", mcp.WithDescription(desc)), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})
	m := NewMCPManager(inProcessDialer(srv), 5*time.Second, 0, "test")
	t.Cleanup(m.CloseAll)
	connectTools(t, m, "wide")

	tools := m.Tools()
	if len(tools) != 1 {
		t.Fatalf("Tools() = %+v", tools)
	}
	got := tools[0].Description
	if !utf8.ValidString(got) {
		t.Error("description is not valid UTF-8 after truncation")
	}
	if n := utf8.RuneCountInString(got); n != maxToolDescription {
		t.Errorf("description runes = %d, want %d", n, maxToolDescription)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abc", 3, "abc"},
		{"ascii", "abcdef", 3, "abc"},
		{"multibyte", "héllo", 2, "hé"},
		{"emoji", "🔧🔧🔧", 1, "🔧"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateRunes(tt.in, tt.n); got != tt.want {
				t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestMCPManager_SupersedeAndDisconnect(t *testing.T) {
	m := newTestManager(t, 0)
	connectTools(t, m, "a")
	connectTools(t, m, "a")
	connectTools(t, m, "b")
	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", m.Count())
	}
	if got := len(m.Tools()); got != 8 {
		t.Errorf("tools = %d, want 8", got)
	}

	if err := m.Disconnect("a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Disconnect("a"); !errors.Is(err, internal.ErrConnectionNotFound) {
		t.Errorf("second Disconnect() error = %v", err)
	}
	for _, tl := range m.Tools() {
		if tl.ConnectionID != "b" {
			t.Errorf("tool %s survived its connection", tl.Name)
		}
	}

	m.CloseAll()
	if m.Count() != 0 {
		t.Errorf("Count() after CloseAll = %d", m.Count())
	}
}

func TestMCPManager_ConnectFailure(t *testing.T) {
	m := NewMCPManager(func(ctx context.Context, target string, typ internal.TransportType) (*client.Client, error) {
		return nil, errors.New("spawn failed")
	}, time.Second, 0, "test")

	_, err := m.Connect(context.Background(), api.ConnectRequest{ID: "x", Target: "nope", Type: internal.TransportStdio})
	var connErr *internal.ConnectionError
	if !errors.As(err, &connErr) || connErr.ConnectionID != "x" {
		t.Fatalf("Connect() error = %v, want ConnectionError", err)
	}
	if m.Count() != 0 {
		t.Error("failed connection was registered")
	}
}

func TestMCPManager_Execute(t *testing.T) {
	m := newTestManager(t, 0)
	connectTools(t, m, "tools")
	ctx := context.Background()

	tests := []struct {
		name     string
		tool     string
		args     string
		contains string
		isError  bool
	}{
		{"hash", "tools__calculate_hash", `{"text":"abc"}`, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", false},
		{"date", "tools__date_calculation", `{"days_offset":2}`, "2024-02-01", false},
		{"defaults from null args", "tools__generate_uuid", `null`, "UUIDs:", false},
		{"schema enum", "tools__calculate_hash", `{"text":"abc","algorithm":"crc32"}`, "Invalid arguments", true},
		{"schema required", "tools__calculate_hash", `{}`, "Invalid arguments", true},
		{"malformed json", "tools__calculate_hash", `{"text":`, "Invalid arguments", true},
		{"tool error", "tools__generate_secure_password", `{"length":2}`, "Invalid arguments", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := m.Execute(ctx, tt.tool, json.RawMessage(tt.args))
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if out.IsError != tt.isError {
				t.Errorf("IsError = %v, want %v (%s)", out.IsError, tt.isError, out.Text)
			}
			if !strings.Contains(out.Text, tt.contains) {
				t.Errorf("output = %q, want it to contain %q", out.Text, tt.contains)
			}
		})
	}

	if _, err := m.Execute(ctx, "tools__nope", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Execute(unknown) error = %v, want ErrUnknownTool", err)
	}
}

func TestMCPManager_ExecuteTruncates(t *testing.T) {
	m := newTestManager(t, 20)
	connectTools(t, m, "tools")

	out, err := m.Execute(context.Background(), "tools__generate_uuid", json.RawMessage(`{"count":5}`))
	if err != nil {
		t.Fatal(err)
	}
	head, _, ok := strings.Cut(out.Text, "\n\n[output truncated")
	if !ok {
		t.Fatalf("output = %q, want truncation notice", out.Text)
	}
	if len([]rune(head)) != 20 {
		t.Errorf("kept %d characters, want 20", len([]rune(head)))
	}
}

func TestMCPManager_ResourcesAndPrompts(t *testing.T) {
	m := newTestManager(t, 0)
	connectTools(t, m, "tools")
	ctx := context.Background()

	text, err := m.ReadResource(ctx, "tools", toolserver.AboutURI)
	if err != nil || !strings.Contains(text, toolserver.Name) {
		t.Errorf("ReadResource() = %q, %v", text, err)
	}
	if _, err := m.ReadResource(ctx, "missing", toolserver.AboutURI); !errors.Is(err, internal.ErrConnectionNotFound) {
		t.Errorf("ReadResource(missing) error = %v", err)
	}

	prompt, err := m.GetPrompt(ctx, "tools", "generate_credentials", map[string]string{"username": "ada"})
	if err != nil || !strings.Contains(prompt, "ada") {
		t.Errorf("GetPrompt() = %q, %v", prompt, err)
	}
}
