package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:         "ok",
		Version:        s.version,
		ActiveProvider: s.providers.Active(),
		Connections:    s.mcp.Count(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if list == nil {
		list = []internal.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	info, err := s.store.CreateSession(r.Context(), id, req.Title)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "deleted"})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if msgs == nil {
		msgs = []internal.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	var req api.SaveMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" || req.Message.ID == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id and message.id are required"))
		return
	}
	ctx := r.Context()
	if _, err := s.store.EnsureSession(ctx, req.SessionID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	msg := req.Message
	msg.Role = internal.NormalizeRole(string(msg.Role))
	msg.SyncAwaitingApproval()
	if err := s.store.SaveMessage(ctx, req.SessionID, msg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "saved"})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req api.ConnectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Target) == "" {
		writeError(w, http.StatusBadRequest, errors.New("id and target are required"))
		return
	}
	resp, err := s.mcp.Connect(r.Context(), req)
	if err != nil {
		internal.LogWarn("Connect %s failed: %v", req.ID, err)
		writeError(w, statusFor(err), fmt.Errorf("connection failed: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.mcp.Disconnect(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "disconnected"})
}

func (s *Server) handleMCPStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.MCPStatusResponse{Connections: s.mcp.Status()})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := s.mcp.Tools()
	writeJSON(w, http.StatusOK, api.ToolsResponse{Tools: tools, Count: len(tools)})
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources := s.mcp.Resources()
	if resources == nil {
		resources = []internal.Resource{}
	}
	writeJSON(w, http.StatusOK, api.ResourcesResponse{Resources: resources})
}

func (s *Server) handleReadResource(w http.ResponseWriter, r *http.Request) {
	var req api.ReadResourceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	content, err := s.mcp.ReadResource(r.Context(), req.ConnectionID, req.URI)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, api.ContentResponse{Content: content})
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts := s.mcp.Prompts()
	if prompts == nil {
		prompts = []internal.Prompt{}
	}
	writeJSON(w, http.StatusOK, api.PromptsResponse{Prompts: prompts})
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	var req api.GetPromptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	content, err := s.mcp.GetPrompt(r.Context(), req.ConnectionID, req.Name, req.Args)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, api.ContentResponse{Content: content})
}

func (s *Server) handleLLMStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.providers.Status())
}

func (s *Server) handleLLMSwitch(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("provider")
	if err := s.providers.Switch(name); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SwitchProviderResponse{Status: "success", Provider: name})
}
