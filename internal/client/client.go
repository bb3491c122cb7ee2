// Package client is a typed client for the station server's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
)

// Client talks to a station server
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// no overall timeout: event streams stay open for the whole turn
		http: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks that the server is reachable
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := c.doJSON(ctx, http.MethodGet, api.PathHealth, nil, &out)
	return out, err
}

// ListSessions returns sessions newest first
func (c *Client) ListSessions(ctx context.Context) ([]internal.SessionInfo, error) {
	var out []internal.SessionInfo
	err := c.doJSON(ctx, http.MethodGet, api.PathSessions, nil, &out)
	return out, err
}

// CreateSession creates a session with the given title
func (c *Client) CreateSession(ctx context.Context, title string) (internal.SessionInfo, error) {
	var out internal.SessionInfo
	err := c.doJSON(ctx, http.MethodPost, api.PathSessions, api.CreateSessionRequest{Title: title}, &out)
	return out, err
}

// DeleteSession removes a session and its messages
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, api.PathSessions+"/"+url.PathEscape(id), nil, nil)
}

// ListMessages returns a session's message log
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]internal.Message, error) {
	var out []internal.Message
	err := c.doJSON(ctx, http.MethodGet, api.PathSessions+"/"+url.PathEscape(sessionID)+"/messages", nil, &out)
	return out, err
}

// SaveMessage upserts a message
func (c *Client) SaveMessage(ctx context.Context, sessionID string, msg internal.Message) error {
	return c.doJSON(ctx, http.MethodPost, api.PathMessages, api.SaveMessageRequest{SessionID: sessionID, Message: msg}, nil)
}

// Chat starts a model turn and returns the event stream body
func (c *Client) Chat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error) {
	return c.openStream(ctx, api.PathChat, req)
}

// ExecuteTool runs an approved tool call and returns the resumed event stream body
func (c *Client) ExecuteTool(ctx context.Context, req api.ExecuteToolRequest) (io.ReadCloser, error) {
	if len(req.ToolArgs) == 0 {
		req.ToolArgs = json.RawMessage(`{}`)
	}
	return c.openStream(ctx, api.PathToolsExecute, req)
}

// Connect attaches a tool server
func (c *Client) Connect(ctx context.Context, req api.ConnectRequest) (api.ConnectResponse, error) {
	var out api.ConnectResponse
	err := c.doJSON(ctx, http.MethodPost, api.PathMCPConnect, req, &out)
	return out, err
}

// Disconnect detaches a tool server
func (c *Client) Disconnect(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, api.PathMCPDisconnect+"/"+url.PathEscape(id), nil, nil)
}

// MCPStatus lists the server's live connections
func (c *Client) MCPStatus(ctx context.Context) (api.MCPStatusResponse, error) {
	var out api.MCPStatusResponse
	err := c.doJSON(ctx, http.MethodGet, api.PathMCPStatus, nil, &out)
	return out, err
}

// ListTools returns every exposed tool
func (c *Client) ListTools(ctx context.Context) ([]internal.Tool, error) {
	var out api.ToolsResponse
	if err := c.doJSON(ctx, http.MethodGet, api.PathMCPTools, nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// ListResources returns every exposed resource
func (c *Client) ListResources(ctx context.Context) ([]internal.Resource, error) {
	var out api.ResourcesResponse
	if err := c.doJSON(ctx, http.MethodGet, api.PathMCPResources, nil, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

// ListPrompts returns every exposed prompt
func (c *Client) ListPrompts(ctx context.Context) ([]internal.Prompt, error) {
	var out api.PromptsResponse
	if err := c.doJSON(ctx, http.MethodGet, api.PathMCPPrompts, nil, &out); err != nil {
		return nil, err
	}
	return out.Prompts, nil
}

// ReadResource reads a resource's text
func (c *Client) ReadResource(ctx context.Context, connectionID, uri string) (string, error) {
	var out api.ContentResponse
	err := c.doJSON(ctx, http.MethodPost, api.PathMCPResourceRead,
		api.ReadResourceRequest{ConnectionID: connectionID, URI: uri}, &out)
	return out.Content, err
}

// GetPrompt renders a prompt
func (c *Client) GetPrompt(ctx context.Context, connectionID, name string, args map[string]string) (string, error) {
	var out api.ContentResponse
	err := c.doJSON(ctx, http.MethodPost, api.PathMCPPromptGet,
		api.GetPromptRequest{ConnectionID: connectionID, Name: name, Args: args}, &out)
	return out.Content, err
}

// ProviderStatus reports the model providers
func (c *Client) ProviderStatus(ctx context.Context) (api.LLMStatusResponse, error) {
	var out api.LLMStatusResponse
	err := c.doJSON(ctx, http.MethodGet, api.PathLLMStatus, nil, &out)
	return out, err
}

// SwitchProvider changes the active model provider
func (c *Client) SwitchProvider(ctx context.Context, provider string) (string, error) {
	var out api.SwitchProviderResponse
	path := api.PathLLMSwitch + "?provider=" + url.QueryEscape(provider)
	err := c.doJSON(ctx, http.MethodPost, path, nil, &out)
	return out.Provider, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &internal.TransportError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus(path, resp); err != nil {
		return err
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &internal.TransportError{Endpoint: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) openStream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &internal.TransportError{Endpoint: path, Err: err}
	}
	if err := checkStatus(path, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(path string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e api.ErrorResponse
	detail := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &e) == nil && e.Detail != "" {
		detail = e.Detail
	}
	return &internal.TransportError{Endpoint: path, StatusCode: resp.StatusCode, Detail: detail}
}
