package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/tmaxmax/go-sse"

	"github.com/iksnae/mcp-station/internal"
)

const systemPromptTools = 10

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
type OpenAIProvider struct {
	cfg  internal.OpenAIConfig
	http *http.Client
}

// NewOpenAIProvider creates a provider. A nil client uses one without a
// timeout since replies stream for as long as the model writes.
func NewOpenAIProvider(cfg internal.OpenAIConfig, httpClient *http.Client) *OpenAIProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &OpenAIProvider{cfg: cfg, http: httpClient}
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.cfg.Model }

// Available reports whether requests can be made: hosted endpoints need a key,
// local ones do not
func (p *OpenAIProvider) Available() bool {
	if p.cfg.BaseURL == "" || p.cfg.Model == "" {
		return false
	}
	if p.cfg.APIKey != "" {
		return true
	}
	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	Index    *int   `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model             string        `json:"model"`
	Messages          []chatMessage `json:"messages"`
	Tools             []chatTool    `json:"tools,omitempty"`
	ToolChoice        string        `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool         `json:"parallel_tool_calls,omitempty"`
	Temperature       float64       `json:"temperature"`
	MaxTokens         int           `json:"max_tokens,omitempty"`
	Stream            bool          `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content   string         `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// buildMessages converts a session log into chat messages. Tool calls whose
// result never made it into the log are left out since the API rejects
// unanswered calls.
func buildMessages(history []internal.Message, tools []internal.Tool, outputLimit int) []chatMessage {
	var out []chatMessage
	if len(tools) > 0 {
		var lines []string
		for _, t := range tools[:min(len(tools), systemPromptTools)] {
			lines = append(lines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
		}
		out = append(out, chatMessage{Role: "system", Content: "You are a helpful AI assistant with access to tools.\n\n" +
			"Available tools:\n" + strings.Join(lines, "\n") + "\n\n" +
			"When asked which tools you have, describe them instead of calling them. " +
			"Only call a tool when the user asks for an action it performs. " +
			"Summarise long tool output and say what you are doing before calling a tool."})
	}

	answered := make(map[string]bool)
	for _, m := range history {
		if m.IsToolResult && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}

	for _, m := range history {
		switch {
		case m.IsToolResult:
			content := m.Content
			if r := []rune(content); len(r) > outputLimit {
				content = fmt.Sprintf("%s\n\n[... Output truncated. Total length: %d characters]", string(r[:outputLimit]), len(r))
			}
			id := m.ToolCallID
			if id == "" {
				id = "unknown"
			}
			out = append(out, chatMessage{Role: "tool", ToolCallID: id, Content: content})
		case m.Role == internal.RoleModel:
			msg := chatMessage{Role: "assistant"}
			if m.Content != "" {
				msg.Content = m.Content
			}
			for _, tc := range m.ToolCalls {
				if !answered[tc.ID] {
					continue
				}
				call := chatToolCall{ID: tc.ID, Type: "function"}
				call.Function.Name = tc.Name
				call.Function.Arguments = argsString(tc.Args)
				msg.ToolCalls = append(msg.ToolCalls, call)
			}
			if msg.Content == nil && len(msg.ToolCalls) == 0 {
				continue
			}
			out = append(out, msg)
		default:
			out = append(out, chatMessage{Role: "user", Content: userContent(m)})
		}
	}
	return out
}

func userContent(m internal.Message) any {
	if m.Image == nil {
		return m.Content
	}
	return []map[string]any{
		{"type": "text", "text": m.Content},
		{"type": "image_url", "image_url": map[string]string{
			"url": "data:" + m.Image.MIMEType + ";base64," + m.Image.Data,
		}},
	}
}

func argsString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" || !json.Valid(raw) {
		return "{}"
	}
	return string(raw)
}

func buildTools(tools []internal.Tool) []chatTool {
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		var ct chatTool
		ct.Type = "function"
		ct.Function.Name = t.Name
		ct.Function.Description = t.Description
		ct.Function.Parameters = t.InputSchema
		if len(ct.Function.Parameters) == 0 {
			ct.Function.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, ct)
	}
	return out
}

func (p *OpenAIProvider) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	endpoint := p.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, &internal.TransportError{Endpoint: endpoint, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var chunk chatChunk
		detail := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &chunk) == nil && chunk.Error != nil {
			detail = chunk.Error.Message
		}
		return nil, &internal.TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Detail: detail}
	}
	return resp, nil
}

// Complete streams a chat completion. Tool call deltas are merged by index.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest, onText func(string) error) (Completion, error) {
	start := time.Now()
	body := chatRequest{
		Model:       p.cfg.Model,
		Messages:    buildMessages(req.History, req.Tools, internal.DefaultOutputLimit),
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		Stream:      true,
	}
	if len(req.Tools) > 0 {
		parallel := false
		body.Tools = buildTools(req.Tools)
		body.ToolChoice = "auto"
		body.ParallelToolCalls = &parallel
	}

	var comp Completion
	resp, err := p.post(ctx, body)
	if err != nil {
		return comp, err
	}
	defer resp.Body.Close()

	calls := map[int]*chatToolCall{}
	for ev, err := range sse.Read(resp.Body, nil) {
		if err != nil {
			if ctx.Err() != nil {
				return comp, ctx.Err()
			}
			return comp, &internal.TransportError{Endpoint: p.cfg.BaseURL, Err: err}
		}
		if ev.Data == "[DONE]" {
			break
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			internal.LogWarn("Skipping malformed completion chunk: %v", err)
			continue
		}
		if chunk.Error != nil {
			return comp, fmt.Errorf("provider error: %s", chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			if text := choice.Delta.Content; text != "" {
				comp.Text += text
				if err := onText(text); err != nil {
					return comp, err
				}
			}
			for _, delta := range choice.Delta.ToolCalls {
				idx := 0
				if delta.Index != nil {
					idx = *delta.Index
				}
				call, ok := calls[idx]
				if !ok {
					call = &chatToolCall{}
					calls[idx] = call
				}
				if delta.ID != "" {
					call.ID = delta.ID
				}
				if delta.Function.Name != "" {
					call.Function.Name = delta.Function.Name
				}
				call.Function.Arguments += delta.Function.Arguments
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return comp, err
	}

	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)
	for _, idx := range indexes {
		call := calls[idx]
		comp.ToolCalls = append(comp.ToolCalls, internal.ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Args:  json.RawMessage(argsString(json.RawMessage(call.Function.Arguments))),
			State: internal.ToolCallPending,
		})
	}
	internal.LogDebug("Completion from %s finished in %s (%d chars, %d tool calls)",
		p.cfg.Model, time.Since(start).Round(time.Millisecond), len(comp.Text), len(comp.ToolCalls))
	return comp, nil
}

// Title asks the model for a short session title
func (p *OpenAIProvider) Title(ctx context.Context, text string) (string, error) {
	resp, err := p.post(ctx, chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{{
			Role:    "user",
			Content: "Generate a short 3-5 word title for this message: " + text,
		}},
		Temperature: p.cfg.Temperature,
		MaxTokens:   20,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var chunk chatChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return "", fmt.Errorf("failed to decode title response: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return "", fmt.Errorf("title response has no choices")
	}
	return chunk.Choices[0].Message.Content, nil
}
