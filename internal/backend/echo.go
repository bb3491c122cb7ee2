package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iksnae/mcp-station/internal"
)

// EchoProvider is an offline provider with deterministic replies. A user
// message of the form "/tool <name> <json>" makes it request that tool, and
// "/tools" lists what is available.
type EchoProvider struct {
	newID func() string
}

// NewEchoProvider creates the echo provider
func NewEchoProvider() *EchoProvider {
	return &EchoProvider{newID: func() string { return "call_" + uuid.NewString() }}
}

func (e *EchoProvider) Name() string    { return "echo" }
func (e *EchoProvider) Model() string   { return "echo" }
func (e *EchoProvider) Available() bool { return true }

func (e *EchoProvider) Complete(ctx context.Context, req CompletionRequest, onText func(string) error) (Completion, error) {
	var comp Completion
	if len(req.History) == 0 {
		return comp, nil
	}
	last := req.History[len(req.History)-1]

	var text string
	switch {
	case last.IsToolResult:
		text = "The tool returned:\n" + toolOutput(last.Content)
	case strings.TrimSpace(last.Content) == "/tools":
		text = listTools(req.Tools)
	case strings.HasPrefix(strings.TrimSpace(last.Content), "/tool "):
		call, err := e.parseToolCommand(strings.TrimSpace(last.Content))
		if err != nil {
			text = err.Error()
			break
		}
		text = fmt.Sprintf("Requesting %s.", call.Name)
		comp.ToolCalls = []internal.ToolCall{call}
	default:
		text = "Echo: " + last.Content
		if last.Image != nil {
			text += fmt.Sprintf(" [image: %s]", last.Image.MIMEType)
		}
	}

	for _, word := range strings.SplitAfter(text, " ") {
		if err := ctx.Err(); err != nil {
			return comp, err
		}
		comp.Text += word
		if err := onText(word); err != nil {
			return comp, err
		}
	}
	return comp, nil
}

func (e *EchoProvider) parseToolCommand(line string) (internal.ToolCall, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "/tool"))
	name, rawArgs, _ := strings.Cut(rest, " ")
	if name == "" {
		return internal.ToolCall{}, fmt.Errorf("usage: /tool <name> <json arguments>")
	}
	rawArgs = strings.TrimSpace(rawArgs)
	if rawArgs == "" {
		rawArgs = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return internal.ToolCall{}, fmt.Errorf("invalid tool arguments: %v", err)
	}
	return internal.ToolCall{
		ID:    e.newID(),
		Name:  name,
		Args:  json.RawMessage(rawArgs),
		State: internal.ToolCallPending,
	}, nil
}

func (e *EchoProvider) Title(ctx context.Context, text string) (string, error) {
	words := strings.Fields(text)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " "), nil
}

// toolOutput drops the "Tool 'x' Output:" header of a stored tool result
func toolOutput(content string) string {
	if head, body, ok := strings.Cut(content, "\n"); ok && strings.HasPrefix(head, "Tool '") {
		return body
	}
	return content
}

func listTools(tools []internal.Tool) string {
	if len(tools) == 0 {
		return "No tools are connected."
	}
	var b strings.Builder
	b.WriteString("Available tools:")
	for _, t := range tools {
		fmt.Fprintf(&b, "\n- %s: %s", t.Name, t.Description)
	}
	return b.String()
}
