package console

import (
	"context"
	"errors"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
)

// Backend is everything a console needs from the station server
type Backend interface {
	ChatBackend
	ConnectionBackend
	CapabilitySource
	MCPStatus(ctx context.Context) (api.MCPStatusResponse, error)
}

// Console wires the orchestrator, registry and capability cache over one projection
type Console struct {
	Orchestrator *Orchestrator
	Registry     *Registry
	Cache        *CapabilityCache

	backend Backend
	state   *internal.StateManager
}

// New builds a console. state may be nil to run without persistence.
func New(backend Backend, state *internal.StateManager, opts ...OrchestratorOption) *Console {
	proj := NewProjection()
	cache := NewCapabilityCache(backend)
	return &Console{
		Orchestrator: NewOrchestrator(backend, proj, opts...),
		Registry:     NewRegistry(backend, proj, cache, state),
		Cache:        cache,
		backend:      backend,
		state:        state,
	}
}

// Projection returns the shared state container
func (c *Console) Projection() *Projection {
	return c.Orchestrator.Projection()
}

// Start restores persisted state, loads the session list and reselects the
// last active session when it still exists
func (c *Console) Start(ctx context.Context) error {
	var saved *internal.ClientState
	if c.state != nil {
		st, err := c.state.Load()
		if err != nil {
			internal.LogWarn("Ignoring unreadable client state: %v", err)
		} else {
			saved = st
			c.Registry.Restore(st)
			if st.Provider != "" {
				c.Orchestrator.SetProvider(st.Provider)
			}
		}
	}

	if err := c.Orchestrator.RefreshSessions(ctx); err != nil {
		return err
	}

	if status, err := c.backend.MCPStatus(ctx); err != nil {
		internal.LogWarn("Could not read server connections: %v", err)
	} else {
		c.Registry.Sync(ctx, status)
	}

	if saved != nil && saved.ActiveSessionID != "" {
		if _, ok := c.Projection().SessionInfo(saved.ActiveSessionID); ok {
			if err := c.Orchestrator.SelectSession(ctx, saved.ActiveSessionID); err != nil && !errors.Is(err, internal.ErrSessionNotFound) {
				internal.LogWarn("Could not reload session %s: %v", saved.ActiveSessionID, err)
			}
		}
	}
	return nil
}

// SaveState persists the active session and provider
func (c *Console) SaveState(provider string) {
	if c.state == nil {
		return
	}
	active := c.Projection().ActiveID()
	conns := c.Projection().Connections()
	err := c.state.Update(func(s *internal.ClientState) {
		s.ActiveSessionID = active
		s.Connections = conns
		if provider != "" {
			s.Provider = provider
		}
	})
	if err != nil {
		internal.LogWarn("Failed to save client state: %v", err)
	}
}
