package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
	"github.com/iksnae/mcp-station/internal/stream"
)

const titleTimeout = 15 * time.Second

// handleChat persists the user message and streams the model reply
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}
	provider, err := s.providers.Get(req.Config.ProviderName())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	info, err := s.store.EnsureSession(ctx, req.SessionID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := s.rewindLog(ctx, req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	user := req.NewMessage
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Role = internal.RoleUser
	if err := s.store.SaveMessage(ctx, req.SessionID, user); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	history, err := s.store.ListMessages(ctx, req.SessionID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var titleDone <-chan struct{}
	if info.Title == internal.DefaultSessionTitle && len(history) <= 1 && user.Content != "" {
		titleDone = s.generateTitle(req.SessionID, provider, user.Content)
	}

	sw, err := stream.NewWriter(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	replyID := req.ReplyID
	if replyID == "" {
		replyID = uuid.NewString()
	}
	if err := s.runTurn(ctx, sw, req.SessionID, replyID, provider, history); err != nil {
		return
	}
	if titleDone != nil {
		select {
		case <-titleDone:
		case <-time.After(s.titleWait):
		case <-ctx.Done():
			return
		}
	}
	sw.Done()
}

// handleExecute runs an approved tool, records the result and resumes the turn
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req api.ExecuteToolRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" || req.ToolName == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id and tool_name are required"))
		return
	}
	provider, err := s.providers.Get(req.Config.ProviderName())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	if _, err := s.store.EnsureSession(ctx, req.SessionID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	internal.LogInfo("Executing %s for session %s (call %s)", req.ToolName, req.SessionID, req.ToolCallID)
	out, err := s.mcp.Execute(ctx, req.ToolName, req.ToolArgs)
	if err != nil {
		s.recordToolCall(ctx, req.SessionID, req.ToolCallID, internal.ToolCallFailed, "", err.Error())
		writeError(w, statusFor(err), err)
		return
	}

	if out.IsError {
		s.recordToolCall(ctx, req.SessionID, req.ToolCallID, internal.ToolCallFailed, out.Text, out.Text)
	} else {
		s.recordToolCall(ctx, req.SessionID, req.ToolCallID, internal.ToolCallCompleted, out.Text, "")
	}
	result := internal.Message{
		ID:           uuid.NewString(),
		Role:         internal.RoleUser,
		Content:      fmt.Sprintf("Tool '%s' Output:\n%s", req.ToolName, out.Text),
		IsToolResult: true,
		ToolCallID:   req.ToolCallID,
	}
	if err := s.store.SaveMessage(ctx, req.SessionID, result); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	sw, err := stream.NewWriter(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := sw.Send(stream.ToolResultEvent{Tool: req.ToolName, Result: out.Text, IsError: out.IsError}); err != nil {
		return
	}
	history, err := s.store.ListMessages(ctx, req.SessionID)
	if err != nil {
		sw.Send(stream.ErrorEvent{Message: err.Error()})
		sw.Done()
		return
	}
	if err := s.runTurn(ctx, sw, req.SessionID, uuid.NewString(), provider, history); err != nil {
		return
	}
	sw.Done()
}

// rewindLog applies a chat request's log override. A truncation point the
// store knows wins over the history list.
func (s *Server) rewindLog(ctx context.Context, req api.ChatRequest) error {
	if req.TruncateFrom != "" {
		_, owner, err := s.store.GetMessage(ctx, req.TruncateFrom)
		switch {
		case err == nil && owner == req.SessionID:
			return s.store.TruncateBefore(ctx, req.SessionID, req.TruncateFrom)
		case err != nil && !errors.Is(err, internal.ErrMessageNotFound):
			return err
		}
		internal.LogDebug("Truncation point %s not stored in %s; using history", req.TruncateFrom, req.SessionID)
	}
	if req.History != nil {
		return s.store.ReplaceMessages(ctx, req.SessionID, req.History)
	}
	return nil
}

func (s *Server) recordToolCall(ctx context.Context, sessionID, toolCallID string, state internal.ToolCallState, result, reason string) {
	if toolCallID == "" {
		return
	}
	err := s.store.UpdateToolCall(ctx, sessionID, toolCallID, func(tc *internal.ToolCall) {
		tc.State = state
		tc.Result = result
		tc.Error = reason
	})
	if err != nil {
		internal.LogWarn("Could not record outcome of tool call %s: %v", toolCallID, err)
	}
}

// runTurn streams one provider reply into sw and persists it under replyID.
// Only the first requested tool call is kept; it is stored pending and
// announced with an approval request. A non-nil error means the stream must
// not be terminated with the done sentinel.
func (s *Server) runTurn(ctx context.Context, sw *stream.Writer, sessionID, replyID string, provider Provider, history []internal.Message) error {
	comp, err := provider.Complete(ctx, CompletionRequest{History: history, Tools: s.mcp.Tools()}, func(text string) error {
		return sw.Send(stream.TextEvent{Content: text})
	})

	reply := internal.Message{ID: replyID, Role: internal.RoleModel, Content: comp.Text}
	if err != nil {
		if reply.Content != "" {
			// keep the partial reply the console already shows
			if serr := s.store.SaveMessage(context.WithoutCancel(ctx), sessionID, reply); serr != nil {
				internal.LogWarn("Could not save partial reply %s: %v", replyID, serr)
			}
		}
		if ctx.Err() != nil {
			internal.LogInfo("Turn in session %s cancelled by the client", sessionID)
			return ctx.Err()
		}
		internal.LogError("Provider %s failed in session %s: %v", provider.Name(), sessionID, err)
		if serr := sw.Send(stream.ErrorEvent{Message: err.Error()}); serr != nil {
			return serr
		}
		return nil
	}

	if len(comp.ToolCalls) > 1 {
		names := make([]string, 0, len(comp.ToolCalls)-1)
		for _, tc := range comp.ToolCalls[1:] {
			names = append(names, tc.Name)
		}
		internal.LogWarn("Model requested %d tool calls; dropping %s", len(comp.ToolCalls), strings.Join(names, ", "))
	}
	if len(comp.ToolCalls) > 0 {
		call := comp.ToolCalls[0]
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}
		call.State = internal.ToolCallPending
		call.Args = json.RawMessage(argsString(call.Args))
		reply.ToolCalls = []internal.ToolCall{call}
		reply.SyncAwaitingApproval()
	}

	if reply.Content != "" || len(reply.ToolCalls) > 0 {
		if err := s.store.SaveMessage(ctx, sessionID, reply); err != nil {
			internal.LogError("Could not save reply %s: %v", replyID, err)
			sw.Send(stream.ErrorEvent{Message: err.Error()})
			return nil
		}
	}

	if len(reply.ToolCalls) > 0 {
		call := reply.ToolCalls[0]
		return sw.Send(stream.ToolApprovalRequestEvent{Tool: stream.ToolRequest{ID: call.ID, Name: call.Name, Args: call.Args}})
	}
	return nil
}

// generateTitle names a session in the background from its first message
func (s *Server) generateTitle(sessionID string, provider Provider, text string) <-chan struct{} {
	done := make(chan struct{})
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
		defer cancel()

		title, err := provider.Title(ctx, text)
		if err != nil {
			internal.LogWarn("Title generation failed for %s: %v", sessionID, err)
			return
		}
		title = cleanTitle(title)
		if title == "" {
			return
		}
		if err := s.store.UpdateSessionTitle(ctx, sessionID, title); err != nil {
			internal.LogWarn("Could not save title for %s: %v", sessionID, err)
			return
		}
		internal.LogDebug("Session %s titled %q", sessionID, title)
	}()
	return done
}
