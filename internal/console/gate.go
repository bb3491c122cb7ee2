package console

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/stream"
)

// ApprovalGate is the single-outstanding approval latch over a projection.
// It owns every tool-call state transition:
//
//	pending -> approved -> completed | failed
//	pending -> failed (turn abandoned)
type ApprovalGate struct {
	proj *Projection
}

// NewApprovalGate returns a gate over proj
func NewApprovalGate(proj *Projection) *ApprovalGate {
	return &ApprovalGate{proj: proj}
}

// PendingCall locates a pending tool call
type PendingCall struct {
	SessionID string
	MessageID string
	Call      internal.ToolCall
}

// Pending returns the pending call of a session, if any
func (g *ApprovalGate) Pending(sessionID string) (PendingCall, bool) {
	msgs := g.proj.Messages(sessionID)
	for i := len(msgs) - 1; i >= 0; i-- {
		for _, tc := range msgs[i].ToolCalls {
			if tc.State == internal.ToolCallPending {
				return PendingCall{SessionID: sessionID, MessageID: msgs[i].ID, Call: tc}, true
			}
		}
	}
	return PendingCall{}, false
}

// Request records a model's tool request on the placeholder. A second request
// while one is still pending is rejected with ErrApprovalOutstanding and
// leaves the existing call untouched. Stale requests are dropped silently.
func (g *ApprovalGate) Request(sessionID, messageID string, req stream.ToolRequest) error {
	if _, ok := g.Pending(sessionID); ok {
		return fmt.Errorf("%w: ignoring %s (%s)", internal.ErrApprovalOutstanding, req.Name, req.ID)
	}
	var rejected bool
	g.proj.UpdateMessageIfActive(sessionID, messageID, func(m *internal.Message) bool {
		if m.HasPendingToolCall() {
			rejected = true
			return false
		}
		m.ToolCalls = append(m.ToolCalls, internal.ToolCall{
			ID:    req.ID,
			Name:  req.Name,
			Args:  append(json.RawMessage(nil), req.Args...),
			State: internal.ToolCallPending,
		})
		m.SyncAwaitingApproval()
		return true
	})
	if rejected {
		return fmt.Errorf("%w: ignoring %s (%s)", internal.ErrApprovalOutstanding, req.Name, req.ID)
	}
	return nil
}

// Approve moves a pending call of the named session to approved. The session
// does not need to be active.
func (g *ApprovalGate) Approve(sessionID, toolCallID string) (PendingCall, error) {
	var found PendingCall
	for _, m := range g.proj.Messages(sessionID) {
		for _, tc := range m.ToolCalls {
			if tc.ID == toolCallID && tc.State == internal.ToolCallPending {
				found = PendingCall{SessionID: sessionID, MessageID: m.ID, Call: tc}
			}
		}
	}
	if found.MessageID == "" {
		return found, fmt.Errorf("%w: %s", internal.ErrNoPendingApproval, toolCallID)
	}

	ok := g.proj.UpdateMessage(sessionID, found.MessageID, func(m *internal.Message) bool {
		return setCallState(m, toolCallID, internal.ToolCallPending, func(tc *internal.ToolCall) {
			tc.State = internal.ToolCallApproved
		})
	})
	if !ok {
		return found, fmt.Errorf("%w: %s", internal.ErrNoPendingApproval, toolCallID)
	}
	found.Call.State = internal.ToolCallApproved
	return found, nil
}

// ApplyResult attaches a tool result to the approved call with the same tool
// name in the session's last message. The call completes, or fails when the
// result is flagged as an error. Results that match nothing are dropped.
func (g *ApprovalGate) ApplyResult(sessionID string, ev stream.ToolResultEvent) bool {
	applied := g.proj.UpdateLastMessageIfActive(sessionID, func(m *internal.Message) bool {
		for i := range m.ToolCalls {
			tc := &m.ToolCalls[i]
			if tc.Name != ev.Tool || tc.State != internal.ToolCallApproved {
				continue
			}
			tc.Result = ev.Result
			if ev.IsError {
				tc.State = internal.ToolCallFailed
				tc.Error = firstLine(ev.Result)
			} else {
				tc.State = internal.ToolCallCompleted
			}
			m.SyncAwaitingApproval()
			return true
		}
		return false
	})
	if !applied {
		internal.LogDebug("Dropping tool result for %s in session %s: no approved call", ev.Tool, sessionID)
	}
	return applied
}

// Fail moves an approved call to failed. With onlyIfActive the update is
// dropped when the session is no longer active.
func (g *ApprovalGate) Fail(sessionID, messageID, toolCallID, reason string, onlyIfActive bool) bool {
	fn := func(m *internal.Message) bool {
		return setCallState(m, toolCallID, internal.ToolCallApproved, func(tc *internal.ToolCall) {
			tc.State = internal.ToolCallFailed
			tc.Error = reason
		})
	}
	if onlyIfActive {
		return g.proj.UpdateMessageIfActive(sessionID, messageID, fn)
	}
	return g.proj.UpdateMessage(sessionID, messageID, fn)
}

// Abandon fails every pending call of a session and returns the messages it changed
func (g *ApprovalGate) Abandon(sessionID string) []internal.Message {
	var changed []internal.Message
	for _, m := range g.proj.Messages(sessionID) {
		if !m.HasPendingToolCall() {
			continue
		}
		g.proj.UpdateMessage(sessionID, m.ID, func(msg *internal.Message) bool {
			for i := range msg.ToolCalls {
				if msg.ToolCalls[i].State == internal.ToolCallPending {
					msg.ToolCalls[i].State = internal.ToolCallFailed
					msg.ToolCalls[i].Error = "abandoned: a new message was sent before approval"
				}
			}
			msg.SyncAwaitingApproval()
			changed = append(changed, msg.Clone())
			return true
		})
	}
	return changed
}

// setCallState applies fn to the call with id when it is in state from
func setCallState(m *internal.Message, id string, from internal.ToolCallState, fn func(*internal.ToolCall)) bool {
	for i := range m.ToolCalls {
		tc := &m.ToolCalls[i]
		if tc.ID != id {
			continue
		}
		if tc.State != from {
			return false
		}
		fn(tc)
		m.SyncAwaitingApproval()
		return true
	}
	return false
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if line == "" {
		return "tool reported an error"
	}
	return line
}
