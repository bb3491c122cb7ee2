package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
	"github.com/iksnae/mcp-station/internal/stream"
)

// ChatBackend is the server surface the orchestrator drives
type ChatBackend interface {
	ListSessions(ctx context.Context) ([]internal.SessionInfo, error)
	CreateSession(ctx context.Context, title string) (internal.SessionInfo, error)
	DeleteSession(ctx context.Context, id string) error
	ListMessages(ctx context.Context, sessionID string) ([]internal.Message, error)
	SaveMessage(ctx context.Context, sessionID string, msg internal.Message) error
	Chat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error)
	ExecuteTool(ctx context.Context, req api.ExecuteToolRequest) (io.ReadCloser, error)
}

// Orchestrator runs chat turns against a backend and mirrors them into a projection
type Orchestrator struct {
	backend ChatBackend
	proj    *Projection
	gate    *ApprovalGate
	newID   func() string

	mu       sync.Mutex
	provider string
	live     *liveTurn
	seq      uint64
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithIDGenerator replaces the uuid generator
func WithIDGenerator(fn func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithProvider pins the model provider sent with every chat request
func WithProvider(name string) OrchestratorOption {
	return func(o *Orchestrator) { o.provider = name }
}

// NewOrchestrator creates an orchestrator over backend and proj
func NewOrchestrator(backend ChatBackend, proj *Projection, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		proj:    proj,
		gate:    NewApprovalGate(proj),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Projection returns the state the orchestrator writes to
func (o *Orchestrator) Projection() *Projection {
	return o.proj
}

// Gate returns the approval gate
func (o *Orchestrator) Gate() *ApprovalGate {
	return o.gate
}

// SetProvider changes the provider used by subsequent turns; "" uses the server default
func (o *Orchestrator) SetProvider(name string) {
	o.mu.Lock()
	o.provider = name
	o.mu.Unlock()
}

// Running reports whether a turn currently holds the cancel handle
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live != nil
}

// Send starts a turn in the active session, creating one when none is active.
// It blocks until the turn settles, suspends for approval, aborts or fails.
// Backend failures are recorded on the session; the returned error is only
// for requests that could not start.
func (o *Orchestrator) Send(ctx context.Context, text string, image *internal.ImageAttachment) (TurnState, error) {
	text = strings.TrimSpace(text)
	if text == "" && image == nil {
		return TurnIdle, errors.New("message is empty")
	}

	sessionID := o.proj.ActiveID()
	if sessionID == "" {
		info, err := o.CreateSession(ctx)
		if err != nil {
			return TurnFailed, err
		}
		sessionID = info.ID
	}

	if o.sessionRunning(sessionID) {
		return TurnIdle, internal.ErrTurnInProgress
	}

	for _, m := range o.gate.Abandon(sessionID) {
		if err := o.backend.SaveMessage(ctx, sessionID, m); err != nil {
			internal.LogWarn("Failed to persist abandoned tool call in %s: %v", m.ID, err)
		}
	}

	user := internal.Message{ID: o.newID(), Role: internal.RoleUser, Content: text, Image: image}
	return o.begin(ctx, sessionID, user, nil, "")
}

// Regenerate drops the latest exchange and re-sends the latest user message
func (o *Orchestrator) Regenerate(ctx context.Context) (TurnState, error) {
	sessionID := o.proj.ActiveID()
	if sessionID == "" {
		return TurnIdle, internal.ErrSessionNotFound
	}
	msgs := o.proj.Messages(sessionID)
	idx := lastUserIndex(msgs)
	if idx < 0 {
		return TurnIdle, fmt.Errorf("%w: no user message to regenerate", internal.ErrMessageNotFound)
	}
	return o.begin(ctx, sessionID, msgs[idx], msgs[:idx], msgs[idx].ID)
}

// Retry clears the session error and regenerates the latest exchange
func (o *Orchestrator) Retry(ctx context.Context) (TurnState, error) {
	if id := o.proj.ActiveID(); id != "" {
		o.proj.SetError(id, "")
	}
	return o.Regenerate(ctx)
}

// Edit replaces a user message with new text, dropping everything after it
func (o *Orchestrator) Edit(ctx context.Context, messageID, text string) (TurnState, error) {
	sessionID := o.proj.ActiveID()
	if sessionID == "" {
		return TurnIdle, internal.ErrSessionNotFound
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnIdle, errors.New("message is empty")
	}
	msgs := o.proj.Messages(sessionID)
	idx := -1
	for i, m := range msgs {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return TurnIdle, fmt.Errorf("%w: %s", internal.ErrMessageNotFound, messageID)
	}
	if msgs[idx].Role != internal.RoleUser || msgs[idx].IsToolResult {
		return TurnIdle, fmt.Errorf("message %s is not a user message", messageID)
	}
	edited := internal.Message{ID: o.newID(), Role: internal.RoleUser, Content: text, Image: msgs[idx].Image}
	return o.begin(ctx, sessionID, edited, msgs[:idx], messageID)
}

// Stop cancels the live turn, if any. Calling it again is a no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	live := o.live
	o.mu.Unlock()
	if live != nil {
		live.cancel()
	}
}

// Approve executes the pending tool call of the named session and resumes
// the turn into the same placeholder
func (o *Orchestrator) Approve(ctx context.Context, sessionID, toolCallID string) (TurnState, error) {
	turnCtx, finish, err := o.acquire(ctx, sessionID)
	if err != nil {
		return TurnIdle, err
	}
	defer finish()

	call, err := o.gate.Approve(sessionID, toolCallID)
	if err != nil {
		return TurnIdle, err
	}

	o.proj.SetError(sessionID, "")
	o.proj.SetBusy(sessionID, true)
	defer o.proj.SetBusy(sessionID, false)

	args := call.Call.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	body, err := o.backend.ExecuteTool(turnCtx, api.ExecuteToolRequest{
		SessionID:  sessionID,
		ToolCallID: toolCallID,
		ToolName:   call.Call.Name,
		ToolArgs:   args,
		Config:     o.chatConfig(),
	})
	if err != nil {
		if turnCtx.Err() != nil {
			o.gate.Fail(sessionID, call.MessageID, toolCallID, "cancelled", false)
			return TurnAborted, nil
		}
		o.gate.Fail(sessionID, call.MessageID, toolCallID, err.Error(), false)
		o.proj.SetError(sessionID, err.Error())
		internal.LogWarn("Tool execution request failed for %s: %v", call.Call.Name, err)
		return TurnFailed, nil
	}

	state := o.consume(turnCtx, sessionID, call.MessageID, body, TurnResumingAfterApproval)

	// a resumed stream that never reported the result leaves the call failed
	reason := "tool produced no result"
	if state == TurnAborted {
		reason = "cancelled"
	}
	o.gate.Fail(sessionID, call.MessageID, toolCallID, reason, true)
	return state, nil
}

// ToggleFeedback sets feedback on a message, or clears it when it already has
// that value. Persisting the change is best-effort.
func (o *Orchestrator) ToggleFeedback(ctx context.Context, messageID string, fb internal.Feedback) error {
	sessionID := o.proj.ActiveID()
	if sessionID == "" {
		return internal.ErrSessionNotFound
	}
	var updated internal.Message
	ok := o.proj.UpdateMessage(sessionID, messageID, func(m *internal.Message) bool {
		if m.Feedback == fb {
			m.Feedback = internal.FeedbackNone
		} else {
			m.Feedback = fb
		}
		updated = m.Clone()
		return true
	})
	if !ok {
		return fmt.Errorf("%w: %s", internal.ErrMessageNotFound, messageID)
	}
	if err := o.backend.SaveMessage(ctx, sessionID, updated); err != nil {
		internal.LogWarn("Failed to persist feedback for %s: %v", messageID, err)
	}
	return nil
}

// RefreshSessions reloads the session list
func (o *Orchestrator) RefreshSessions(ctx context.Context) error {
	list, err := o.backend.ListSessions(ctx)
	if err != nil {
		return err
	}
	o.proj.SetSessions(list)
	return nil
}

// CreateSession creates and activates an empty session
func (o *Orchestrator) CreateSession(ctx context.Context) (internal.SessionInfo, error) {
	info, err := o.backend.CreateSession(ctx, internal.DefaultSessionTitle)
	if err != nil {
		return info, fmt.Errorf("failed to create session: %w", err)
	}
	o.proj.AddSession(info)
	o.proj.SetActive(info.ID)
	return info, nil
}

// SelectSession activates a session and loads its messages
func (o *Orchestrator) SelectSession(ctx context.Context, id string) error {
	o.proj.SetActive(id)
	msgs, err := o.backend.ListMessages(ctx, id)
	if err != nil {
		o.proj.SetError(id, err.Error())
		return err
	}
	o.proj.SetMessagesIfActive(id, msgs)
	return nil
}

// DeleteSession removes a session on the server and locally
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	o.mu.Lock()
	if o.live != nil && o.live.sessionID == id {
		o.live.cancel()
	}
	o.mu.Unlock()

	if err := o.backend.DeleteSession(ctx, id); err != nil && !errors.Is(err, internal.ErrSessionNotFound) {
		return err
	}
	wasActive := o.proj.ActiveID() == id
	o.proj.RemoveSession(id)
	if next := o.proj.ActiveID(); wasActive && next != "" {
		return o.SelectSession(ctx, next)
	}
	return nil
}

// begin appends the user message and placeholder, then streams the model reply.
// A non-nil history replaces the session log before the user message;
// truncateFrom names the stored message where the server cuts its own log.
func (o *Orchestrator) begin(ctx context.Context, sessionID string, user internal.Message, history []internal.Message, truncateFrom string) (TurnState, error) {
	turnCtx, finish, err := o.acquire(ctx, sessionID)
	if err != nil {
		return TurnIdle, err
	}
	defer finish()

	placeholder := internal.Message{ID: o.newID(), Role: internal.RoleModel}
	if history != nil {
		next := append(cloneMessages(history), user, placeholder)
		o.proj.SetMessages(sessionID, next)
	} else {
		o.proj.AppendMessages(sessionID, user, placeholder)
	}
	o.proj.SetError(sessionID, "")
	o.proj.SetBusy(sessionID, true)
	defer o.proj.SetBusy(sessionID, false)

	req := api.ChatRequest{
		SessionID:    sessionID,
		NewMessage:   user,
		TruncateFrom: truncateFrom,
		ReplyID:      placeholder.ID,
		Config:       o.chatConfig(),
	}
	if history != nil {
		req.History = cloneMessages(history)
	}

	body, err := o.backend.Chat(turnCtx, req)
	if err != nil {
		if turnCtx.Err() != nil {
			return TurnAborted, nil
		}
		o.proj.SetError(sessionID, err.Error())
		internal.LogWarn("Chat request failed for session %s: %v", sessionID, err)
		return TurnFailed, nil
	}

	state := o.consume(turnCtx, sessionID, placeholder.ID, body, TurnAwaitingFirstChunk)
	if state == TurnSettled || state == TurnAwaitingApproval {
		o.refreshTitle(ctx, sessionID)
	}
	return state, nil
}

// consume reads one event stream into the placeholder and returns the final
// state. An accepted approval request suspends the turn: reading stops and the
// body is closed even when the server keeps the connection open.
func (o *Orchestrator) consume(ctx context.Context, sessionID, messageID string, body io.ReadCloser, start TurnState) TurnState {
	defer body.Close()

	readCtx, suspend := context.WithCancel(ctx)
	defer suspend()

	state := start
	var streamErr string
	res, err := stream.Read(readCtx, body, func(ev stream.Event) {
		switch e := ev.(type) {
		case stream.TextEvent:
			if state != TurnAwaitingApproval {
				state = TurnStreamingText
			}
			o.proj.UpdateMessageIfActive(sessionID, messageID, func(m *internal.Message) bool {
				m.Content += e.Content
				return e.Content != ""
			})
		case stream.ToolApprovalRequestEvent:
			if err := o.gate.Request(sessionID, messageID, e.Tool); err != nil {
				internal.LogWarn("Rejected tool request in session %s: %v", sessionID, err)
				return
			}
			state = TurnAwaitingApproval
			o.proj.SetBusy(sessionID, false)
			suspend()
		case stream.ToolResultEvent:
			o.gate.ApplyResult(sessionID, e)
		case stream.ErrorEvent:
			streamErr = e.Message
		}
	})

	switch {
	case state == TurnAwaitingApproval && ctx.Err() == nil:
		return TurnAwaitingApproval
	case res == stream.ResultCanceled:
		return TurnAborted
	case err != nil:
		o.proj.SetError(sessionID, (&internal.TransportError{Endpoint: "stream", Err: err}).Error())
		return TurnFailed
	case streamErr != "":
		o.proj.SetError(sessionID, streamErr)
		return TurnFailed
	default:
		return TurnSettled
	}
}

func (o *Orchestrator) chatConfig() *api.ChatConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.provider == "" {
		return nil
	}
	return &api.ChatConfig{Provider: o.provider}
}

// refreshTitle reloads the session list while the session still has the placeholder title
func (o *Orchestrator) refreshTitle(ctx context.Context, sessionID string) {
	if info, ok := o.proj.SessionInfo(sessionID); ok && info.Title != internal.DefaultSessionTitle {
		return
	}
	if err := o.RefreshSessions(ctx); err != nil {
		internal.LogDebug("Title refresh failed: %v", err)
	}
}

// acquire installs a new live handle, cancelling any turn held for another
// session. A live turn in the same session is an error.
func (o *Orchestrator) acquire(ctx context.Context, sessionID string) (context.Context, func(), error) {
	o.mu.Lock()
	if o.live != nil && o.live.sessionID == sessionID {
		o.mu.Unlock()
		return nil, nil, internal.ErrTurnInProgress
	}
	turnCtx, cancel := context.WithCancel(ctx)
	if prev := o.live; prev != nil {
		internal.LogInfo("Stopping turn in session %s to start one in %s", prev.sessionID, sessionID)
		prev.cancel()
	}
	o.seq++
	live := &liveTurn{seq: o.seq, sessionID: sessionID, cancel: cancel}
	o.live = live
	o.mu.Unlock()

	return turnCtx, func() {
		cancel()
		o.mu.Lock()
		if o.live == live {
			o.live = nil
		}
		o.mu.Unlock()
	}, nil
}

func (o *Orchestrator) sessionRunning(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live != nil && o.live.sessionID == sessionID
}

func lastUserIndex(msgs []internal.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == internal.RoleUser && !msgs[i].IsToolResult {
			return i
		}
	}
	return -1
}
