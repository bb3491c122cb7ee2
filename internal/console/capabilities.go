package console

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/iksnae/mcp-station/internal"
)

// CapabilitySource lists what the connected tool servers expose
type CapabilitySource interface {
	ListTools(ctx context.Context) ([]internal.Tool, error)
	ListResources(ctx context.Context) ([]internal.Resource, error)
	ListPrompts(ctx context.Context) ([]internal.Prompt, error)
}

// Capabilities is a point-in-time copy of the cache
type Capabilities struct {
	Tools     []internal.Tool
	Resources []internal.Resource
	Prompts   []internal.Prompt
}

// CapabilityCache holds the aggregated capabilities of every live connection.
// It is derived data: Refresh replaces all of it from the source.
type CapabilityCache struct {
	src CapabilitySource

	mu   sync.RWMutex
	caps Capabilities
}

// NewCapabilityCache creates an empty cache over src
func NewCapabilityCache(src CapabilitySource) *CapabilityCache {
	return &CapabilityCache{src: src}
}

// Refresh rebuilds the cache. A list that fails to load is left empty and
// the failures are returned joined.
func (c *CapabilityCache) Refresh(ctx context.Context) error {
	var next Capabilities
	var errs []error

	tools, err := c.src.ListTools(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	next.Tools = slices.Clone(tools)

	resources, err := c.src.ListResources(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	next.Resources = slices.Clone(resources)

	prompts, err := c.src.ListPrompts(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	next.Prompts = slices.Clone(prompts)

	c.mu.Lock()
	c.caps = next
	c.mu.Unlock()

	if len(errs) > 0 {
		internal.LogWarn("Capability refresh incomplete: %v", errors.Join(errs...))
	}
	return errors.Join(errs...)
}

// Snapshot returns a copy of every cached capability
func (c *CapabilityCache) Snapshot() Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Capabilities{
		Tools:     slices.Clone(c.caps.Tools),
		Resources: slices.Clone(c.caps.Resources),
		Prompts:   slices.Clone(c.caps.Prompts),
	}
}

// Tools returns the cached tools
func (c *CapabilityCache) Tools() []internal.Tool {
	return c.Snapshot().Tools
}

// ForConnection returns the capabilities owned by one connection
func (c *CapabilityCache) ForConnection(id string) Capabilities {
	snap := c.Snapshot()
	var out Capabilities
	for _, t := range snap.Tools {
		if t.ConnectionID == id {
			out.Tools = append(out.Tools, t)
		}
	}
	for _, r := range snap.Resources {
		if r.ConnectionID == id {
			out.Resources = append(out.Resources, r)
		}
	}
	for _, p := range snap.Prompts {
		if p.ConnectionID == id {
			out.Prompts = append(out.Prompts, p)
		}
	}
	return out
}
