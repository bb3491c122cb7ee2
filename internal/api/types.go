// Package api holds the JSON bodies exchanged between the station server and
// its clients.
package api

import (
	"encoding/json"

	"github.com/iksnae/mcp-station/internal"
)

// Paths served by the station server
const (
	PathHealth          = "/api/health"
	PathSessions        = "/api/sessions"
	PathMessages        = "/api/messages"
	PathChat            = "/api/chat"
	PathToolsExecute    = "/api/tools/execute"
	PathMCPConnect      = "/api/mcp/connect"
	PathMCPDisconnect   = "/api/mcp/disconnect"
	PathMCPStatus       = "/api/mcp/status"
	PathMCPTools        = "/api/mcp/tools/list"
	PathMCPResources    = "/api/mcp/resources/list"
	PathMCPResourceRead = "/api/mcp/resources/read"
	PathMCPPrompts      = "/api/mcp/prompts/list"
	PathMCPPromptGet    = "/api/mcp/prompts/get"
	PathLLMStatus       = "/api/llm/status"
	PathLLMSwitch       = "/api/llm/switch"
)

// StatusResponse is the generic acknowledgement body
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse reports server liveness
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	ActiveProvider string `json:"active_provider"`
	Connections    int    `json:"connections"`
}

// CreateSessionRequest creates a session; the server assigns the id unless one is given
type CreateSessionRequest struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
}

// SaveMessageRequest upserts a message into a session
type SaveMessageRequest struct {
	SessionID string           `json:"session_id"`
	Message   internal.Message `json:"message"`
}

// ChatConfig selects per-request options
type ChatConfig struct {
	Provider string `json:"provider,omitempty"`
}

// ChatRequest starts a model turn.
// History is deliberately not omitempty: absent or null leaves the stored log
// alone while an empty list truncates it.
// TruncateFrom names the first stored message the turn replaces. When the
// server holds that message it cuts the log there and ignores History, so
// messages only the server keeps (tool results) survive a regenerate or edit.
type ChatRequest struct {
	SessionID    string             `json:"session_id"`
	NewMessage   internal.Message   `json:"new_message"`
	History      []internal.Message `json:"history"`
	TruncateFrom string             `json:"truncate_from,omitempty"`
	ReplyID      string             `json:"reply_id,omitempty"`
	Config       *ChatConfig        `json:"config,omitempty"`
}

// ExecuteToolRequest runs an approved tool call and resumes the turn
type ExecuteToolRequest struct {
	SessionID  string          `json:"session_id"`
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	ToolArgs   json.RawMessage `json:"tool_args"`
	Config     *ChatConfig     `json:"config,omitempty"`
}

// ProviderName returns the requested provider name, "" for the server default
func (c *ChatConfig) ProviderName() string {
	if c == nil {
		return ""
	}
	return c.Provider
}

// ConnectRequest attaches a tool server
type ConnectRequest struct {
	ID     string                 `json:"id"`
	Target string                 `json:"target"`
	Type   internal.TransportType `json:"type"`
}

// ConnectResponse reports what a new connection exposes
type ConnectResponse struct {
	Status    string `json:"status"`
	Tools     int    `json:"tools"`
	Resources int    `json:"resources"`
	Prompts   int    `json:"prompts"`
}

// ConnectionInfo is one entry of the server's connection status
type ConnectionInfo struct {
	ID        string                 `json:"id"`
	Target    string                 `json:"target"`
	Type      internal.TransportType `json:"type"`
	Tools     int                    `json:"tools"`
	Resources int                    `json:"resources"`
	Prompts   int                    `json:"prompts"`
}

// MCPStatusResponse lists live server-side connections
type MCPStatusResponse struct {
	Connections []ConnectionInfo `json:"connections"`
}

// ToolsResponse lists every exposed tool
type ToolsResponse struct {
	Tools []internal.Tool `json:"tools"`
	Count int             `json:"count"`
}

// ResourcesResponse lists every exposed resource
type ResourcesResponse struct {
	Resources []internal.Resource `json:"resources"`
}

// PromptsResponse lists every exposed prompt
type PromptsResponse struct {
	Prompts []internal.Prompt `json:"prompts"`
}

// ReadResourceRequest reads one resource from a connection
type ReadResourceRequest struct {
	ConnectionID string `json:"connection_id"`
	URI          string `json:"uri"`
}

// GetPromptRequest renders a prompt from a connection
type GetPromptRequest struct {
	ConnectionID string            `json:"connection_id"`
	Name         string            `json:"name"`
	Args         map[string]string `json:"args,omitempty"`
}

// ContentResponse carries rendered resource or prompt text
type ContentResponse struct {
	Content string `json:"content"`
}

// ProviderInfo describes one model provider
type ProviderInfo struct {
	Available bool   `json:"available"`
	Model     string `json:"model,omitempty"`
}

// LLMStatusResponse reports the provider set
type LLMStatusResponse struct {
	ActiveProvider string                  `json:"active_provider"`
	Providers      map[string]ProviderInfo `json:"providers"`
}

// SwitchProviderResponse acknowledges a provider switch
type SwitchProviderResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}
