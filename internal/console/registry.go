package console

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
)

// ConnectionBackend is the server surface the registry drives
type ConnectionBackend interface {
	Connect(ctx context.Context, req api.ConnectRequest) (api.ConnectResponse, error)
	Disconnect(ctx context.Context, id string) error
}

// Registry tracks tool-server connections on the client side. Local state is
// authoritative for display; backend failures are recorded on the entry.
type Registry struct {
	backend ConnectionBackend
	proj    *Projection
	cache   *CapabilityCache
	state   *internal.StateManager
}

// NewRegistry creates a registry. state may be nil to skip persistence.
func NewRegistry(backend ConnectionBackend, proj *Projection, cache *CapabilityCache, state *internal.StateManager) *Registry {
	return &Registry{backend: backend, proj: proj, cache: cache, state: state}
}

// Cache returns the capability cache the registry refreshes
func (r *Registry) Cache() *CapabilityCache {
	return r.cache
}

// Connections returns the current entries
func (r *Registry) Connections() []internal.Connection {
	return r.proj.Connections()
}

// Get returns one entry by id
func (r *Registry) Get(id string) (internal.Connection, bool) {
	for _, c := range r.proj.Connections() {
		if c.ID == id {
			return c, true
		}
	}
	return internal.Connection{}, false
}

var nonIDChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// DeriveConnectionID builds an id from a target when the user gives none
func DeriveConnectionID(target string) string {
	t := target
	if i := strings.Index(t, "://"); i >= 0 {
		t = t[i+3:]
	}
	if fields := strings.Fields(t); len(fields) > 0 {
		t = fields[len(fields)-1]
	}
	t = strings.TrimSuffix(t, "/")
	if i := strings.LastIndexAny(t, "/\\"); i >= 0 && i < len(t)-1 {
		t = t[i+1:]
	}
	for _, ext := range []string{".py", ".js", ".ts"} {
		t = strings.TrimSuffix(t, ext)
	}
	id := strings.Trim(nonIDChars.ReplaceAllString(t, "-"), "-")
	if id == "" {
		id = "server"
	}
	return strings.ToLower(id)
}

// Connect adds or supersedes an entry and connects it. The returned entry
// reflects the outcome; a failure is recorded on it rather than returned.
func (r *Registry) Connect(ctx context.Context, id, target string, typ internal.TransportType) (internal.Connection, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return internal.Connection{}, fmt.Errorf("connection target is required")
	}
	if id == "" {
		id = DeriveConnectionID(target)
	}
	if _, err := internal.ParseTransportType(string(typ)); err != nil {
		return internal.Connection{}, err
	}

	prior, _ := r.Get(id)
	conn := internal.Connection{
		ID:     id,
		Target: target,
		Type:   typ,
		Status: internal.StatusConnecting,
	}
	r.upsert(conn)

	resp, err := r.backend.Connect(ctx, api.ConnectRequest{ID: id, Target: target, Type: typ})
	if err != nil {
		conn.Status = internal.StatusError
		conn.Error = err.Error()
		conn.ToolCount = prior.ToolCount
		internal.LogWarn("Connection %s failed: %v", id, err)
	} else {
		conn.Status = internal.StatusConnected
		conn.ToolCount = resp.Tools
		conn.Error = ""
		internal.LogInfo("Connected %s (%d tools, %d resources, %d prompts)", id, resp.Tools, resp.Resources, resp.Prompts)
	}
	r.upsert(conn)
	r.refresh(ctx)
	r.persist()
	return conn, nil
}

// Reconnect re-issues connect for a known entry
func (r *Registry) Reconnect(ctx context.Context, id string) (internal.Connection, error) {
	conn, ok := r.Get(id)
	if !ok {
		return internal.Connection{}, fmt.Errorf("%w: %s", internal.ErrConnectionNotFound, id)
	}
	return r.Connect(ctx, conn.ID, conn.Target, conn.Type)
}

// Disconnect tears a connection down. The entry is removed locally even when
// the backend call fails.
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	if _, ok := r.Get(id); !ok {
		return fmt.Errorf("%w: %s", internal.ErrConnectionNotFound, id)
	}
	if err := r.backend.Disconnect(ctx, id); err != nil {
		internal.LogWarn("Disconnect of %s failed on the server: %v", id, err)
	}
	next := slices.DeleteFunc(r.proj.Connections(), func(c internal.Connection) bool { return c.ID == id })
	r.proj.SetConnections(next)
	r.refresh(ctx)
	r.persist()
	return nil
}

// Restore loads persisted entries without connecting them
func (r *Registry) Restore(state *internal.ClientState) {
	if state == nil {
		return
	}
	r.proj.SetConnections(state.Connections)
}

// Sync marks entries the server no longer holds as disconnected, so a server
// restart shows up in the registry
func (r *Registry) Sync(ctx context.Context, live api.MCPStatusResponse) {
	alive := make(map[string]api.ConnectionInfo, len(live.Connections))
	for _, c := range live.Connections {
		alive[c.ID] = c
	}
	next := r.proj.Connections()
	for i, c := range next {
		info, ok := alive[c.ID]
		switch {
		case ok:
			next[i].Status = internal.StatusConnected
			next[i].ToolCount = info.Tools
			next[i].Error = ""
			delete(alive, c.ID)
		case c.Status == internal.StatusConnected:
			next[i].Status = internal.StatusDisconnected
		}
	}
	// connections opened by the server itself, e.g. from its config file
	for _, info := range live.Connections {
		if _, ok := alive[info.ID]; !ok {
			continue
		}
		next = append(next, internal.Connection{
			ID:        info.ID,
			Target:    info.Target,
			Type:      info.Type,
			Status:    internal.StatusConnected,
			ToolCount: info.Tools,
		})
	}
	r.proj.SetConnections(next)
	r.refresh(ctx)
}

func (r *Registry) upsert(conn internal.Connection) {
	list := r.proj.Connections()
	for i := range list {
		if list[i].ID == conn.ID {
			list[i] = conn
			r.proj.SetConnections(list)
			return
		}
	}
	r.proj.SetConnections(append(list, conn))
}

func (r *Registry) refresh(ctx context.Context) {
	if r.cache == nil {
		return
	}
	// failures are logged by the cache; the registry entry already holds the outcome
	_ = r.cache.Refresh(ctx)
}

func (r *Registry) persist() {
	if r.state == nil {
		return
	}
	conns := r.proj.Connections()
	if err := r.state.Update(func(s *internal.ClientState) { s.Connections = conns }); err != nil {
		internal.LogWarn("Failed to save connection registry: %v", err)
	}
}
