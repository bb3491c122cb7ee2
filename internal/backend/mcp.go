package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kballard/go-shellquote"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
)

// ErrUnknownTool is returned when an exposed tool name resolves to no connection
var ErrUnknownTool = errors.New("unknown tool")

const (
	maxToolNameLen     = 63
	maxToolDescription = 1024
)

// Dialer opens an MCP client for a resolved target. The client must be
// started but not yet initialized.
type Dialer func(ctx context.Context, target string, typ internal.TransportType) (*client.Client, error)

type mcpConnection struct {
	id        string
	target    string
	typ       internal.TransportType
	client    *client.Client
	tools     []mcp.Tool
	resources []mcp.Resource
	prompts   []mcp.Prompt
}

// ToolOutput is the rendered result of a tool call
type ToolOutput struct {
	Text    string
	IsError bool
}

// MCPManager owns the server-side tool-server connections
type MCPManager struct {
	dial        Dialer
	initTimeout time.Duration
	outputLimit int
	clientName  string
	version     string

	mu    sync.RWMutex
	conns map[string]*mcpConnection
}

// NewMCPManager creates a manager. A nil dial uses the stdio/http/sse dialer.
func NewMCPManager(dial Dialer, initTimeout time.Duration, outputLimit int, version string) *MCPManager {
	if initTimeout <= 0 {
		initTimeout = internal.DefaultInitTimeout
	}
	if outputLimit <= 0 {
		outputLimit = internal.DefaultOutputLimit
	}
	m := &MCPManager{
		dial:        dial,
		initTimeout: initTimeout,
		outputLimit: outputLimit,
		clientName:  "mcp-station",
		version:     version,
		conns:       make(map[string]*mcpConnection),
	}
	if m.dial == nil {
		m.dial = m.defaultDial
	}
	return m
}

// ResolveTransport applies the target-based transport rules: gitmcp.io hosts
// speak sse, anything that is not a URL runs as a local process, and URL
// targets never run as stdio.
func ResolveTransport(target string, typ internal.TransportType) (string, internal.TransportType, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", "", errors.New("connection target is required")
	}
	isURL := strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")

	switch {
	case strings.Contains(target, "gitmcp.io"):
		if !strings.HasSuffix(target, "/sse") {
			target = strings.TrimSuffix(target, "/") + "/sse"
		}
		if typ != internal.TransportSSE {
			internal.LogDebug("Using sse transport for GitMCP target %s", target)
		}
		return target, internal.TransportSSE, nil
	case !isURL:
		if typ != "" && typ != internal.TransportStdio {
			internal.LogWarn("Target %q is not a URL, switching transport from %s to stdio", target, typ)
		}
		return target, internal.TransportStdio, nil
	case typ == "" || typ == internal.TransportStdio:
		return target, internal.TransportHTTP, nil
	case typ == internal.TransportHTTP || typ == internal.TransportSSE:
		return target, typ, nil
	default:
		return "", "", fmt.Errorf("unknown transport type %q", typ)
	}
}

// StdioCommand splits a command line. Python scripts run under python3.
func StdioCommand(target string) (string, []string, error) {
	parts, err := shellquote.Split(target)
	if err != nil {
		return "", nil, fmt.Errorf("invalid command syntax: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("empty command")
	}
	switch {
	case strings.HasSuffix(parts[0], ".py"):
		return "python3", append([]string{scriptPath(parts[0])}, parts[1:]...), nil
	case parts[0] == "python" || parts[0] == "python3":
		args := parts[1:]
		if len(args) > 0 && strings.HasSuffix(args[0], ".py") {
			args[0] = scriptPath(args[0])
		}
		return "python3", args, nil
	default:
		return parts[0], parts[1:], nil
	}
}

func scriptPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		if _, err := os.Stat(abs); err == nil {
			return abs
		}
	}
	return p
}

func (m *MCPManager) defaultDial(ctx context.Context, target string, typ internal.TransportType) (*client.Client, error) {
	switch typ {
	case internal.TransportStdio:
		command, args, err := StdioCommand(target)
		if err != nil {
			return nil, err
		}
		internal.LogDebug("Launching %s %s", command, strings.Join(args, " "))
		env := append(os.Environ(), "PYTHONUNBUFFERED=1")
		return client.NewStdioMCPClient(command, env, args...)
	case internal.TransportSSE:
		c, err := client.NewSSEMCPClient(target, transport.WithHeaders(map[string]string{
			"User-Agent": m.clientName + "/" + m.version,
		}))
		if err != nil {
			return nil, err
		}
		// the event stream outlives the connect request
		if err := c.Start(context.WithoutCancel(ctx)); err != nil {
			c.Close()
			return nil, fmt.Errorf("sse connection failed: %w", err)
		}
		return c, nil
	case internal.TransportHTTP:
		c, err := client.NewStreamableHttpClient(target)
		if err != nil {
			return nil, err
		}
		if err := c.Start(context.WithoutCancel(ctx)); err != nil {
			c.Close()
			return nil, fmt.Errorf("http connection failed: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", typ)
	}
}

// Connect opens and initializes a connection, superseding any entry with the same id
func (m *MCPManager) Connect(ctx context.Context, req api.ConnectRequest) (api.ConnectResponse, error) {
	target, typ, err := ResolveTransport(req.Target, req.Type)
	if err != nil {
		return api.ConnectResponse{}, &internal.ConnectionError{ConnectionID: req.ID, Target: req.Target, Err: err}
	}
	id := req.ID
	if id == "" {
		return api.ConnectResponse{}, &internal.ConnectionError{Target: target, Err: errors.New("connection id is required")}
	}

	m.closeConnection(id)

	start := time.Now()
	c, err := m.dial(ctx, target, typ)
	if err != nil {
		return api.ConnectResponse{}, &internal.ConnectionError{ConnectionID: id, Target: target, Err: err}
	}

	initCtx, cancel := context.WithTimeout(ctx, m.initTimeout)
	defer cancel()
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: m.clientName, Version: m.version}
	initRes, err := c.Initialize(initCtx, initReq)
	if err != nil {
		c.Close()
		if errors.Is(initCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("server did not respond within %s: %w", m.initTimeout, err)
		}
		return api.ConnectResponse{}, &internal.ConnectionError{ConnectionID: id, Target: target, Err: err}
	}

	conn := &mcpConnection{id: id, target: target, typ: typ, client: c}
	caps := initRes.Capabilities
	if caps.Tools != nil {
		if res, err := c.ListTools(ctx, mcp.ListToolsRequest{}); err != nil {
			internal.LogWarn("Could not list tools of %s: %v", id, err)
		} else {
			conn.tools = res.Tools
		}
	}
	if caps.Resources != nil {
		if res, err := c.ListResources(ctx, mcp.ListResourcesRequest{}); err != nil {
			internal.LogWarn("Could not list resources of %s: %v", id, err)
		} else {
			conn.resources = res.Resources
		}
	}
	if caps.Prompts != nil {
		if res, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{}); err != nil {
			internal.LogWarn("Could not list prompts of %s: %v", id, err)
		} else {
			conn.prompts = res.Prompts
		}
	}

	m.mu.Lock()
	if prev, ok := m.conns[id]; ok {
		prev.client.Close()
	}
	m.conns[id] = conn
	m.mu.Unlock()

	internal.LogInfo("Connected %s via %s in %s (%d tools, %d resources, %d prompts)",
		id, typ, time.Since(start).Round(time.Millisecond), len(conn.tools), len(conn.resources), len(conn.prompts))
	return api.ConnectResponse{
		Status:    "connected",
		Tools:     len(conn.tools),
		Resources: len(conn.resources),
		Prompts:   len(conn.prompts),
	}, nil
}

// Disconnect closes one connection
func (m *MCPManager) Disconnect(id string) error {
	if !m.closeConnection(id) {
		return fmt.Errorf("%w: %s", internal.ErrConnectionNotFound, id)
	}
	internal.LogInfo("Disconnected %s", id)
	return nil
}

func (m *MCPManager) closeConnection(id string) bool {
	m.mu.Lock()
	conn, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()
	if ok {
		if err := conn.client.Close(); err != nil {
			internal.LogDebug("Closing %s: %v", id, err)
		}
	}
	return ok
}

// CloseAll closes every connection
func (m *MCPManager) CloseAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*mcpConnection)
	m.mu.Unlock()
	for id, conn := range conns {
		if err := conn.client.Close(); err != nil {
			internal.LogDebug("Closing %s: %v", id, err)
		}
	}
}

// Count returns the number of live connections
func (m *MCPManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Status lists live connections ordered by id
func (m *MCPManager) Status() []api.ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]api.ConnectionInfo, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, api.ConnectionInfo{
			ID:        c.id,
			Target:    c.target,
			Type:      c.typ,
			Tools:     len(c.tools),
			Resources: len(c.resources),
			Prompts:   len(c.prompts),
		})
	}
	slices.SortFunc(out, func(a, b api.ConnectionInfo) int { return strings.Compare(a.ID, b.ID) })
	return out
}

var nonToolChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// ExposedToolName builds the name a model sees for a connection's tool
func ExposedToolName(connectionID, tool string) string {
	name := nonToolChars.ReplaceAllString(connectionID+"__"+tool, "_")
	if c := name[0]; !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		name = "action_" + name
	}
	if len(name) > maxToolNameLen {
		name = name[:maxToolNameLen]
	}
	return name
}

type toolRef struct {
	conn *mcpConnection
	tool mcp.Tool
}

// toolMap indexes every tool by exposed name; callers hold m.mu
func (m *MCPManager) toolMap() map[string]toolRef {
	out := make(map[string]toolRef)
	for _, id := range m.sortedIDs() {
		conn := m.conns[id]
		for _, t := range conn.tools {
			name := ExposedToolName(id, t.Name)
			if prev, ok := out[name]; ok {
				internal.LogDebug("Tool name %s from %s shadows %s", name, id, prev.conn.id)
			}
			out[name] = toolRef{conn: conn, tool: t}
		}
	}
	return out
}

func (m *MCPManager) sortedIDs() []string {
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Tools lists every tool under its exposed name
func (m *MCPManager) Tools() []internal.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tm := m.toolMap()
	names := make([]string, 0, len(tm))
	for name := range tm {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]internal.Tool, 0, len(names))
	for _, name := range names {
		ref := tm[name]
		desc := ref.tool.Description
		if desc == "" {
			desc = "No description"
		}
		desc = truncateRunes(desc, maxToolDescription)
		out = append(out, internal.Tool{
			ConnectionID: ref.conn.id,
			Name:         name,
			Description:  desc,
			InputSchema:  inputSchema(ref.tool),
		})
	}
	return out
}

// inputSchema renders a tool's schema as a plain map, covering raw schemas too
func inputSchema(t mcp.Tool) map[string]any {
	data, err := json.Marshal(t)
	if err != nil {
		return map[string]any{}
	}
	var wire struct {
		InputSchema map[string]any `json:"inputSchema"`
	}
	if err := json.Unmarshal(data, &wire); err != nil || wire.InputSchema == nil {
		return map[string]any{}
	}
	return wire.InputSchema
}

// Resources lists every resource
func (m *MCPManager) Resources() []internal.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []internal.Resource
	for _, id := range m.sortedIDs() {
		for _, r := range m.conns[id].resources {
			out = append(out, internal.Resource{
				ConnectionID: id,
				Name:         r.Name,
				URI:          r.URI,
				MIMEType:     r.MIMEType,
				Description:  r.Description,
			})
		}
	}
	return out
}

// Prompts lists every prompt
func (m *MCPManager) Prompts() []internal.Prompt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []internal.Prompt
	for _, id := range m.sortedIDs() {
		for _, p := range m.conns[id].prompts {
			prompt := internal.Prompt{ConnectionID: id, Name: p.Name, Description: p.Description}
			for _, a := range p.Arguments {
				prompt.Arguments = append(prompt.Arguments, internal.PromptArgument{
					Name:        a.Name,
					Description: a.Description,
					Required:    a.Required,
				})
			}
			out = append(out, prompt)
		}
	}
	return out
}

func (m *MCPManager) connection(id string) (*mcpConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", internal.ErrConnectionNotFound, id)
	}
	return conn, nil
}

// Execute calls a tool by exposed name. Tool-side failures are rendered into
// the output for the model; only an unknown name is an error.
func (m *MCPManager) Execute(ctx context.Context, name string, rawArgs json.RawMessage) (ToolOutput, error) {
	m.mu.RLock()
	ref, ok := m.toolMap()[name]
	m.mu.RUnlock()
	if !ok {
		return ToolOutput{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	args := map[string]any{}
	if len(rawArgs) > 0 && string(rawArgs) != "null" {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return ToolOutput{Text: fmt.Sprintf("Invalid arguments for %s: %v", name, err), IsError: true}, nil
		}
	}
	if err := validateArgs(inputSchema(ref.tool), args); err != nil {
		return ToolOutput{Text: fmt.Sprintf("Invalid arguments for %s: %v", name, err), IsError: true}, nil
	}

	start := time.Now()
	req := mcp.CallToolRequest{}
	req.Params.Name = ref.tool.Name
	req.Params.Arguments = args
	res, err := ref.conn.client.CallTool(ctx, req)
	if err != nil {
		internal.LogWarn("Tool %s on %s failed after %s: %v", ref.tool.Name, ref.conn.id, time.Since(start).Round(time.Millisecond), err)
		return ToolOutput{Text: "Tool Exception: " + err.Error(), IsError: true}, nil
	}
	internal.LogDebug("Tool %s on %s finished in %s", ref.tool.Name, ref.conn.id, time.Since(start).Round(time.Millisecond))

	text := m.limit(renderToolResult(res), ref.tool.Name)
	if res.IsError {
		return ToolOutput{Text: "Tool Execution Error: " + text, IsError: true}, nil
	}
	if text == "" {
		text = "Success (No output)"
	}
	return ToolOutput{Text: text}, nil
}

func renderToolResult(res *mcp.CallToolResult) string {
	var parts []string
	if res.StructuredContent != nil {
		if data, err := json.MarshalIndent(res.StructuredContent, "", "  "); err == nil {
			parts = append(parts, string(data))
		}
	}
	for _, c := range res.Content {
		parts = append(parts, renderContent(c))
	}
	return strings.Join(parts, "\n")
}

func renderContent(c mcp.Content) string {
	switch v := c.(type) {
	case mcp.TextContent:
		return v.Text
	case *mcp.TextContent:
		return v.Text
	case mcp.ImageContent:
		return fmt.Sprintf("[Image Returned: %s]", v.MIMEType)
	case mcp.AudioContent:
		return fmt.Sprintf("[Audio Returned: %s]", v.MIMEType)
	case mcp.EmbeddedResource:
		return fmt.Sprintf("[Resource Embedded: %s]", resourceURI(v.Resource))
	default:
		data, _ := json.Marshal(c)
		return string(data)
	}
}

func resourceURI(rc mcp.ResourceContents) string {
	switch r := rc.(type) {
	case mcp.TextResourceContents:
		return r.URI
	case mcp.BlobResourceContents:
		return r.URI
	default:
		return "unknown"
	}
}

// truncateRunes cuts s to at most n runes
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// limit truncates output beyond the configured rune count and appends a notice
func (m *MCPManager) limit(text, tool string) string {
	runes := []rune(text)
	if len(runes) <= m.outputLimit {
		return text
	}
	internal.LogWarn("Truncating output of %s from %d to %d characters", tool, len(runes), m.outputLimit)
	return fmt.Sprintf("%s\n\n[output truncated: showing %d of %d characters; ask for a summary or a specific part]",
		string(runes[:m.outputLimit]), m.outputLimit, len(runes))
}

// ReadResource reads a resource's text contents; binary parts become placeholders
func (m *MCPManager) ReadResource(ctx context.Context, connectionID, uri string) (string, error) {
	conn, err := m.connection(connectionID)
	if err != nil {
		return "", err
	}
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	res, err := conn.client.ReadResource(ctx, req)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", uri, err)
	}
	var parts []string
	for _, rc := range res.Contents {
		switch r := rc.(type) {
		case mcp.TextResourceContents:
			parts = append(parts, r.Text)
		case mcp.BlobResourceContents:
			parts = append(parts, fmt.Sprintf("[Binary Blob: %s]", r.MIMEType))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// GetPrompt renders a prompt's text messages
func (m *MCPManager) GetPrompt(ctx context.Context, connectionID, name string, args map[string]string) (string, error) {
	conn, err := m.connection(connectionID)
	if err != nil {
		return "", err
	}
	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := conn.client.GetPrompt(ctx, req)
	if err != nil {
		return "", fmt.Errorf("get prompt %s: %w", name, err)
	}
	var parts []string
	for _, msg := range res.Messages {
		switch c := msg.Content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}
