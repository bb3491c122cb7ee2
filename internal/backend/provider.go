package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
)

// CompletionRequest is the input of one model turn
type CompletionRequest struct {
	History []internal.Message
	Tools   []internal.Tool
}

// Completion is a finished model reply
type Completion struct {
	Text      string
	ToolCalls []internal.ToolCall
}

// Provider produces streamed model replies
type Provider interface {
	Name() string
	Model() string
	Available() bool
	// Complete streams text through onText and returns the whole reply.
	// On error the returned Completion holds whatever text arrived.
	Complete(ctx context.Context, req CompletionRequest, onText func(string) error) (Completion, error)
	Title(ctx context.Context, text string) (string, error)
}

// Providers is the provider set with a runtime-switchable active entry
type Providers struct {
	mu     sync.RWMutex
	byName map[string]Provider
	order  []string
	active string
}

// NewProviders registers ps and activates the named provider. When it is not
// available the first available one is used instead.
func NewProviders(active string, ps ...Provider) *Providers {
	set := &Providers{byName: make(map[string]Provider)}
	for _, p := range ps {
		set.byName[p.Name()] = p
		set.order = append(set.order, p.Name())
	}
	if p, ok := set.byName[active]; ok && p.Available() {
		set.active = active
		return set
	}
	for _, name := range set.order {
		if set.byName[name].Available() {
			if active != "" {
				internal.LogWarn("Provider %q is not available, using %s", active, name)
			}
			set.active = name
			break
		}
	}
	return set
}

// Active returns the active provider name, "" when none is available
func (s *Providers) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Get resolves a provider by name; "" means the active one
func (s *Providers) Get(name string) (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name == "" {
		name = s.active
	}
	if name == "" {
		return nil, fmt.Errorf("no model provider available")
	}
	p, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	if !p.Available() {
		return nil, fmt.Errorf("provider %q not available", name)
	}
	return p, nil
}

// Switch changes the active provider
func (s *Providers) Switch(name string) error {
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	if _, err := s.Get(name); err != nil {
		return err
	}
	s.mu.Lock()
	prev := s.active
	s.active = name
	s.mu.Unlock()
	internal.LogInfo("Switched provider from %s to %s", prev, name)
	return nil
}

// Status reports every provider
func (s *Providers) Status() api.LLMStatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := api.LLMStatusResponse{ActiveProvider: s.active, Providers: make(map[string]api.ProviderInfo, len(s.byName))}
	for _, name := range s.order {
		p := s.byName[name]
		info := api.ProviderInfo{Available: p.Available()}
		if info.Available {
			info.Model = p.Model()
		}
		out.Providers[name] = info
	}
	return out
}

// Names lists registered providers in registration order
func (s *Providers) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// cleanTitle strips quoting from a generated title and caps its length
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.Trim(title, "\"'`*# ")
	title = strings.TrimSuffix(title, ".")
	if utf8.RuneCountInString(title) > internal.DefaultTitleMaxRune {
		title = strings.TrimSpace(string([]rune(title)[:internal.DefaultTitleMaxRune]))
	}
	return title
}
