package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
)

// fakeBackend records requests and replays canned streams
type fakeBackend struct {
	mu       sync.Mutex
	sessions []internal.SessionInfo
	messages map[string][]internal.Message
	saved    []internal.Message
	chats    []api.ChatRequest
	execs    []api.ExecuteToolRequest

	chatBody func(req api.ChatRequest) (io.ReadCloser, error)
	execBody func(req api.ExecuteToolRequest) (io.ReadCloser, error)

	connected     map[string]api.ConnectRequest
	tools         map[string][]internal.Tool
	connectErr    map[string]error
	disconnectErr error
	nextSession   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messages:   make(map[string][]internal.Message),
		connected:  make(map[string]api.ConnectRequest),
		tools:      make(map[string][]internal.Tool),
		connectErr: make(map[string]error),
	}
}

func body(frames ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(frames, "")))
}

func (f *fakeBackend) ListSessions(ctx context.Context) ([]internal.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sessions), nil
}

func (f *fakeBackend) CreateSession(ctx context.Context, title string) (internal.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSession++
	info := internal.SessionInfo{ID: fmt.Sprintf("session-%d", f.nextSession), Title: title, CreatedAt: time.Now()}
	f.sessions = append([]internal.SessionInfo{info}, f.sessions...)
	return info, nil
}

func (f *fakeBackend) DeleteSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = slices.DeleteFunc(f.sessions, func(s internal.SessionInfo) bool { return s.ID == id })
	delete(f.messages, id)
	return nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, sessionID string) ([]internal.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.messages[sessionID]), nil
}

func (f *fakeBackend) SaveMessage(ctx context.Context, sessionID string, msg internal.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, msg.Clone())
	return nil
}

func (f *fakeBackend) Chat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.chats = append(f.chats, req)
	fn := f.chatBody
	f.mu.Unlock()
	if fn == nil {
		return body("data: [DONE]\n\n"), nil
	}
	return fn(req)
}

func (f *fakeBackend) ExecuteTool(ctx context.Context, req api.ExecuteToolRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.execs = append(f.execs, req)
	fn := f.execBody
	f.mu.Unlock()
	if fn == nil {
		return body("data: [DONE]\n\n"), nil
	}
	return fn(req)
}

func (f *fakeBackend) Connect(ctx context.Context, req api.ConnectRequest) (api.ConnectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.connectErr[req.ID]; err != nil {
		delete(f.connected, req.ID)
		return api.ConnectResponse{}, err
	}
	f.connected[req.ID] = req
	return api.ConnectResponse{Status: "connected", Tools: len(f.tools[req.ID])}, nil
}

func (f *fakeBackend) Disconnect(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.connected, id)
	return f.disconnectErr
}

func (f *fakeBackend) ListTools(ctx context.Context) ([]internal.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []internal.Tool
	for id := range f.connected {
		out = append(out, f.tools[id]...)
	}
	return out, nil
}

func (f *fakeBackend) ListResources(ctx context.Context) ([]internal.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []internal.Resource
	for id := range f.connected {
		out = append(out, internal.Resource{ConnectionID: id, Name: "about", URI: id + "://about"})
	}
	return out, nil
}

func (f *fakeBackend) ListPrompts(ctx context.Context) ([]internal.Prompt, error) {
	return nil, errors.New("prompts unavailable")
}

func (f *fakeBackend) MCPStatus(ctx context.Context) (api.MCPStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out api.MCPStatusResponse
	for id, req := range f.connected {
		out.Connections = append(out.Connections, api.ConnectionInfo{ID: id, Target: req.Target, Type: req.Type, Tools: len(f.tools[id])})
	}
	return out, nil
}

func (f *fakeBackend) lastChat(t *testing.T) api.ChatRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chats) == 0 {
		t.Fatal("no chat request recorded")
	}
	return f.chats[len(f.chats)-1]
}

// sequentialIDs returns a deterministic id generator
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestOrchestrator(t *testing.T, fb *fakeBackend) *Orchestrator {
	t.Helper()
	return NewOrchestrator(fb, NewProjection(), WithIDGenerator(sequentialIDs()))
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func lastMessage(t *testing.T, p *Projection, sessionID string) internal.Message {
	t.Helper()
	msgs := p.Messages(sessionID)
	if len(msgs) == 0 {
		t.Fatalf("session %s has no messages", sessionID)
	}
	return msgs[len(msgs)-1]
}
