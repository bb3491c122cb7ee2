package console

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
)

func TestConsole_StartRestoresState(t *testing.T) {
	fb := newFakeBackend()
	fb.sessions = []internal.SessionInfo{{ID: "s2", Title: "Second"}, {ID: "s1", Title: "First"}}
	fb.messages["s1"] = []internal.Message{{ID: "u1", Role: internal.RoleUser, Content: "hello"}}
	fb.connected["live"] = api.ConnectRequest{ID: "live", Target: "python live.py", Type: internal.TransportStdio}
	fb.tools["live"] = []internal.Tool{{ConnectionID: "live", Name: "live__t"}}

	state := internal.NewStateManager(filepath.Join(t.TempDir(), "state.yaml"))
	err := state.Save(&internal.ClientState{
		ActiveSessionID: "s1",
		Provider:        "echo",
		Connections: []internal.Connection{
			{ID: "live", Target: "python live.py", Type: internal.TransportStdio, Status: internal.StatusConnected},
			{ID: "gone", Target: "python gone.py", Type: internal.TransportStdio, Status: internal.StatusConnected},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	c := New(fb, state, WithIDGenerator(sequentialIDs()))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	p := c.Projection()
	if p.ActiveID() != "s1" {
		t.Errorf("active = %q, want s1", p.ActiveID())
	}
	if msgs := p.Messages("s1"); len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Errorf("messages = %+v", msgs)
	}
	if gone, _ := c.Registry.Get("gone"); gone.Status != internal.StatusDisconnected {
		t.Errorf("gone status = %s, want disconnected", gone.Status)
	}
	if len(c.Cache.Tools()) != 1 {
		t.Errorf("cached tools = %v", c.Cache.Tools())
	}

	c.Orchestrator.Send(context.Background(), "hi", nil)
	if cfg := fb.lastChat(t).Config; cfg == nil || cfg.Provider != "echo" {
		t.Errorf("chat config = %+v, want restored provider", cfg)
	}
}

func TestConsole_SaveState(t *testing.T) {
	fb := newFakeBackend()
	state := internal.NewStateManager(filepath.Join(t.TempDir(), "state.yaml"))
	c := New(fb, state)
	ctx := context.Background()

	info, err := c.Orchestrator.CreateSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c.Registry.Connect(ctx, "a", "python a.py", internal.TransportStdio)
	c.SaveState("openai")

	got, err := state.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.ActiveSessionID != info.ID || got.Provider != "openai" || len(got.Connections) != 1 {
		t.Errorf("state = %+v", got)
	}
}

func TestConsole_StartWithoutState(t *testing.T) {
	c := New(newFakeBackend(), nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if c.Projection().ActiveID() != "" {
		t.Error("expected no active session")
	}
}
