// Package backend is the station server: the HTTP API consoles talk to, the
// tool-server connections behind it and the model providers that drive turns.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
)

const defaultTitleWait = 2 * time.Second

// Server serves the station API
type Server struct {
	store     *internal.ChatStore
	mcp       *MCPManager
	providers *Providers
	version   string
	titleWait time.Duration

	bg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithTitleWait bounds how long a chat stream waits for title generation
// before it ends
func WithTitleWait(d time.Duration) Option {
	return func(s *Server) { s.titleWait = d }
}

// NewServer creates a server over its collaborators
func NewServer(store *internal.ChatStore, mcp *MCPManager, providers *Providers, version string, opts ...Option) *Server {
	s := &Server{
		store:     store,
		mcp:       mcp,
		providers: providers,
		version:   version,
		titleWait: defaultTitleWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig opens the database and builds providers and the MCP manager from cfg
func NewFromConfig(cfg *internal.Config, dbPath, version string) (*Server, error) {
	store, err := internal.OpenChatStore(dbPath)
	if err != nil {
		return nil, err
	}
	providers := NewProviders(cfg.Providers.Active,
		NewOpenAIProvider(cfg.Providers.OpenAI, nil),
		NewEchoProvider(),
	)
	if providers.Active() == "" {
		store.Close()
		return nil, errors.New("no model provider available")
	}
	mcp := NewMCPManager(nil, cfg.Server.InitTimeout, cfg.Server.OutputLimit, version)
	return NewServer(store, mcp, providers, version), nil
}

// MCP returns the connection manager
func (s *Server) MCP() *MCPManager {
	return s.mcp
}

// Providers returns the provider set
func (s *Server) Providers() *Providers {
	return s.providers
}

// Bootstrap connects the configured tool servers. Failures are logged.
func (s *Server) Bootstrap(ctx context.Context, specs []internal.ConnectionSpec) {
	for _, spec := range specs {
		_, err := s.mcp.Connect(ctx, api.ConnectRequest{ID: spec.ID, Target: spec.Target, Type: spec.Type})
		if err != nil {
			internal.LogWarn("Startup connection %s failed: %v", spec.ID, err)
		}
	}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.PathHealth, s.handleHealth)

	mux.HandleFunc("GET "+api.PathSessions, s.handleListSessions)
	mux.HandleFunc("POST "+api.PathSessions, s.handleCreateSession)
	mux.HandleFunc("DELETE "+api.PathSessions+"/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET "+api.PathSessions+"/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST "+api.PathMessages, s.handleSaveMessage)

	mux.HandleFunc("POST "+api.PathChat, s.handleChat)
	mux.HandleFunc("POST "+api.PathToolsExecute, s.handleExecute)

	mux.HandleFunc("POST "+api.PathMCPConnect, s.handleConnect)
	mux.HandleFunc("POST "+api.PathMCPDisconnect+"/{id}", s.handleDisconnect)
	mux.HandleFunc("GET "+api.PathMCPStatus, s.handleMCPStatus)
	mux.HandleFunc("GET "+api.PathMCPTools, s.handleListTools)
	mux.HandleFunc("GET "+api.PathMCPResources, s.handleListResources)
	mux.HandleFunc("POST "+api.PathMCPResourceRead, s.handleReadResource)
	mux.HandleFunc("GET "+api.PathMCPPrompts, s.handleListPrompts)
	mux.HandleFunc("POST "+api.PathMCPPromptGet, s.handleGetPrompt)

	mux.HandleFunc("GET "+api.PathLLMStatus, s.handleLLMStatus)
	mux.HandleFunc("POST "+api.PathLLMSwitch, s.handleLLMSwitch)
	return logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and closes every tool-server connection
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		internal.LogInfo("Station server listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	internal.LogInfo("Shutting down station server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Close waits for background work, then closes connections and the database
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.bg.Wait()
		s.mcp.CloseAll()
		if err := s.store.Close(); err != nil {
			internal.LogWarn("Closing database: %v", err)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		internal.LogDebug("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		internal.LogDebug("Writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, api.ErrorResponse{Detail: err.Error()})
}

// statusFor maps domain errors onto HTTP statuses
func statusFor(err error) int {
	var connErr *internal.ConnectionError
	switch {
	case errors.Is(err, internal.ErrSessionNotFound),
		errors.Is(err, internal.ErrMessageNotFound),
		errors.Is(err, internal.ErrConnectionNotFound),
		errors.Is(err, ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 32<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}
