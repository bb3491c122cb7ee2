package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/console"
)

const toolResultLines = 6

// renderMessages draws a session log for the timeline
func renderMessages(msgs []internal.Message, width int, th theme) string {
	if len(msgs) == 0 {
		return th.note.Render("No messages yet. Type below, or /help for commands.")
	}
	body := lipgloss.NewStyle().Width(max(width, 20))
	var blocks []string
	for _, m := range msgs {
		blocks = append(blocks, renderMessage(m, body, th))
	}
	return strings.Join(blocks, "\n\n")
}

func renderMessage(m internal.Message, body lipgloss.Style, th theme) string {
	if m.IsToolResult {
		return th.toolResult.Render("⤷ tool result\n" + clipLines(m.Content, toolResultLines))
	}

	var b strings.Builder
	if m.Role == internal.RoleModel {
		b.WriteString(th.model.Render("model"))
	} else {
		b.WriteString(th.user.Render("you"))
	}
	switch m.Feedback {
	case internal.FeedbackLiked:
		b.WriteString(" +1")
	case internal.FeedbackDisliked:
		b.WriteString(" -1")
	}
	b.WriteString("\n")

	content := m.Content
	if content == "" && m.Role == internal.RoleModel && len(m.ToolCalls) == 0 {
		content = "…"
	}
	if content != "" {
		b.WriteString(body.Render(content))
	}
	if m.Image != nil {
		b.WriteString("\n" + th.note.Render("[image: "+m.Image.MIMEType+"]"))
	}
	for _, tc := range m.ToolCalls {
		b.WriteString("\n" + renderToolCall(tc, th))
	}
	if m.Artifact != nil {
		b.WriteString("\n" + th.note.Render(fmt.Sprintf("[artifact %s: %s]", m.Artifact.Type, m.Artifact.Title)))
	}
	return b.String()
}

func renderToolCall(tc internal.ToolCall, th theme) string {
	args := string(tc.Args)
	if args == "" {
		args = "{}"
	}
	line := th.toolCall.Render(fmt.Sprintf("⚙ %s %s", tc.Name, args))
	switch tc.State {
	case internal.ToolCallPending:
		return line + "\n" + th.pending.Render("  awaiting approval: press y to run it, or send a new message to skip")
	case internal.ToolCallApproved:
		return line + " " + th.status.Render("running…")
	case internal.ToolCallCompleted:
		return line + " " + th.status.Render("done")
	case internal.ToolCallFailed:
		return line + " " + th.failed.Render("failed: "+tc.Error)
	default:
		return line
	}
}

// clipLines keeps the first n lines and says how many were dropped
func clipLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n… %d more lines", len(lines)-n)
}

// renderHeader shows the active session, provider and connection summary
func renderHeader(view console.SessionView, provider string, conns []internal.Connection, width int, th theme) string {
	title := view.Info.Title
	if title == "" {
		title = "no session"
	}
	connected := 0
	tools := 0
	for _, c := range conns {
		if c.Status == internal.StatusConnected {
			connected++
			tools += c.ToolCount
		}
	}
	if provider == "" {
		provider = "server default"
	}
	left := th.header.Render(title)
	right := th.headerDim.Render(fmt.Sprintf("%s · %d/%d servers · %d tools", provider, connected, len(conns), tools))
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func renderSessions(list []internal.SessionInfo, active string) string {
	if len(list) == 0 {
		return "No sessions."
	}
	var b strings.Builder
	b.WriteString("Sessions:")
	for i, s := range list {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		fmt.Fprintf(&b, "\n%s %d. %s  (%s)", marker, i+1, s.Title, shortID(s.ID))
	}
	return b.String()
}

func renderConnections(conns []internal.Connection) string {
	if len(conns) == 0 {
		return "No tool servers. Use /connect <target>."
	}
	var b strings.Builder
	b.WriteString("Tool servers:")
	for _, c := range conns {
		fmt.Fprintf(&b, "\n- %s [%s] %s: %d tools", c.ID, c.Type, c.Status, c.ToolCount)
		if c.Error != "" {
			fmt.Fprintf(&b, " (%s)", c.Error)
		}
	}
	return b.String()
}

func renderTools(tools []internal.Tool) string {
	if len(tools) == 0 {
		return "No tools available."
	}
	var b strings.Builder
	b.WriteString("Tools:")
	for _, t := range tools {
		fmt.Fprintf(&b, "\n- %s: %s", t.Name, t.Description)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
