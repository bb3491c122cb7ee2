package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/console"
)

const helpText = `Commands:
  /new                      start a new session
  /sessions                 list sessions
  /switch <n|id>            switch to a session
  /delete [n|id]            delete a session (default: the active one)
  /regen                    regenerate the last reply
  /retry                    clear the error and retry the last message
  /edit <text>              replace your last message and resend
  /like, /dislike           rate the last reply (again to clear)
  /connect <target> [type]  attach a tool server (stdio, http, sse)
  /disconnect <id>          detach a tool server
  /reconnect <id>           connect a saved tool server again
  /servers                  list tool servers
  /tools                    list available tools
  /provider <name>          use another model provider
  /stop                     cancel the running turn (also esc)
  /quit                     leave (also ctrl+c)
Press y to approve a pending tool call. Start a message with // to send a
literal leading slash.`

type command struct {
	name string
	args []string
	rest string
}

// parseCommand splits a slash command; ok is false for plain chat text
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return command{}, false
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	return command{name: strings.ToLower(name), args: strings.Fields(rest), rest: rest}, true
}

// guessTransport picks the transport for a /connect target without an explicit type
func guessTransport(target string) internal.TransportType {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return internal.TransportHTTP
	}
	return internal.TransportStdio
}

// resolveSession maps a 1-based list index or an id prefix onto a session id
func resolveSession(list []internal.SessionInfo, ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(list) {
			return "", fmt.Errorf("no session number %d", n)
		}
		return list[n-1].ID, nil
	}
	var match string
	for _, s := range list {
		if strings.HasPrefix(s.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("session id %q is ambiguous", ref)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", internal.ErrSessionNotFound, ref)
	}
	return match, nil
}

// lastMessage finds the newest message accepted by keep
func lastMessage(msgs []internal.Message, keep func(internal.Message) bool) (internal.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if keep(msgs[i]) {
			return msgs[i], true
		}
	}
	return internal.Message{}, false
}

func isModelReply(m internal.Message) bool { return m.Role == internal.RoleModel }

func isUserText(m internal.Message) bool { return m.Role == internal.RoleUser && !m.IsToolResult }

// runCommand turns a slash command into a tea.Cmd; it may update the model
// synchronously for commands that only change local state
func (m *Model) runCommand(c command) tea.Cmd {
	con := m.con
	orch := con.Orchestrator
	proj := con.Projection()
	ctx := m.ctx

	switch c.name {
	case "help", "h", "?":
		m.note(helpText)
		return nil
	case "quit", "q", "exit":
		return m.quit()
	case "stop":
		orch.Stop()
		return nil
	case "new":
		return action(func() (string, error) {
			info, err := orch.CreateSession(ctx)
			if err != nil {
				return "", err
			}
			return "Started session " + shortID(info.ID), nil
		})
	case "sessions":
		return action(func() (string, error) {
			if err := orch.RefreshSessions(ctx); err != nil {
				return "", err
			}
			return renderSessions(proj.Sessions(), proj.ActiveID()), nil
		})
	case "switch":
		if len(c.args) != 1 {
			return usage("/switch <n|id>")
		}
		id, err := resolveSession(proj.Sessions(), c.args[0])
		if err != nil {
			return fail(err)
		}
		return action(func() (string, error) {
			if err := orch.SelectSession(ctx, id); err != nil {
				return "", err
			}
			return "Switched to " + shortID(id), nil
		})
	case "delete":
		id := proj.ActiveID()
		if len(c.args) == 1 {
			var err error
			if id, err = resolveSession(proj.Sessions(), c.args[0]); err != nil {
				return fail(err)
			}
		}
		if id == "" {
			return fail(errors.New("no session to delete"))
		}
		return action(func() (string, error) {
			if err := orch.DeleteSession(ctx, id); err != nil {
				return "", err
			}
			return "Deleted " + shortID(id), nil
		})
	case "regen":
		return m.turn(func() (console.TurnState, error) { return orch.Regenerate(ctx) })
	case "retry":
		return m.turn(func() (console.TurnState, error) { return orch.Retry(ctx) })
	case "edit":
		if c.rest == "" {
			return usage("/edit <text>")
		}
		last, ok := lastMessage(proj.Messages(proj.ActiveID()), isUserText)
		if !ok {
			return fail(errors.New("no message to edit"))
		}
		return m.turn(func() (console.TurnState, error) { return orch.Edit(ctx, last.ID, c.rest) })
	case "like", "dislike":
		fb := internal.FeedbackLiked
		if c.name == "dislike" {
			fb = internal.FeedbackDisliked
		}
		last, ok := lastMessage(proj.Messages(proj.ActiveID()), isModelReply)
		if !ok {
			return fail(errors.New("no reply to rate"))
		}
		return action(func() (string, error) {
			return "", orch.ToggleFeedback(ctx, last.ID, fb)
		})
	case "connect":
		if len(c.args) == 0 {
			return usage("/connect <target> [stdio|http|sse]")
		}
		target, typ := c.rest, guessTransport(c.rest)
		if n := len(c.args); n > 1 {
			if t, err := internal.ParseTransportType(c.args[n-1]); err == nil {
				typ = t
				target = strings.TrimSpace(strings.TrimSuffix(c.rest, c.args[n-1]))
			}
		}
		return action(func() (string, error) {
			conn, err := con.Registry.Connect(ctx, "", target, typ)
			if err != nil {
				return "", err
			}
			if conn.Status == internal.StatusError {
				return "", fmt.Errorf("connect %s: %s", conn.ID, conn.Error)
			}
			return fmt.Sprintf("Connected %s (%d tools)", conn.ID, conn.ToolCount), nil
		})
	case "disconnect":
		if len(c.args) != 1 {
			return usage("/disconnect <id>")
		}
		return action(func() (string, error) {
			if err := con.Registry.Disconnect(ctx, c.args[0]); err != nil {
				return "", err
			}
			return "Disconnected " + c.args[0], nil
		})
	case "reconnect":
		if len(c.args) != 1 {
			return usage("/reconnect <id>")
		}
		return action(func() (string, error) {
			conn, err := con.Registry.Reconnect(ctx, c.args[0])
			if err != nil {
				return "", err
			}
			if conn.Status == internal.StatusError {
				return "", fmt.Errorf("reconnect %s: %s", conn.ID, conn.Error)
			}
			return fmt.Sprintf("Reconnected %s (%d tools)", conn.ID, conn.ToolCount), nil
		})
	case "servers", "connections":
		m.note(renderConnections(proj.Connections()))
		return nil
	case "tools":
		m.note(renderTools(con.Cache.Tools()))
		return nil
	case "provider":
		if len(c.args) != 1 {
			return usage("/provider <name>")
		}
		m.provider = c.args[0]
		orch.SetProvider(m.provider)
		m.saveState()
		m.status = "Provider set to " + m.provider
		return nil
	default:
		return fail(fmt.Errorf("unknown command /%s (try /help)", c.name))
	}
}

func action(fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		status, err := fn()
		return actionDoneMsg{status: status, err: err}
	}
}

func fail(err error) tea.Cmd {
	return func() tea.Msg { return actionDoneMsg{err: err} }
}

func usage(text string) tea.Cmd {
	return fail(errors.New("usage: " + text))
}
