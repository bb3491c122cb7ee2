package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/backend"
	"github.com/iksnae/mcp-station/internal/toolserver"
)

// testStation is a station server backed by a temp database, the echo
// provider and an in-process demo tool server
type testStation struct {
	url    string
	dbPath string
	store  *internal.ChatStore
}

func newTestStation(t *testing.T) *testStation {
	t.Helper()
	t.Setenv("STATION_HOME", t.TempDir())
	t.Setenv("STATION_SERVER", "")

	dbPath := filepath.Join(t.TempDir(), "chat.db")
	store, err := internal.OpenChatStore(dbPath)
	if err != nil {
		t.Fatalf("OpenChatStore() error = %v", err)
	}
	tools := toolserver.New("test")
	dial := func(ctx context.Context, target string, typ internal.TransportType) (*client.Client, error) {
		c, err := client.NewInProcessClient(tools)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
	mcp := backend.NewMCPManager(dial, 5*time.Second, 0, "test")
	srv := backend.NewServer(store, mcp, backend.NewProviders("echo", backend.NewEchoProvider()), "test", backend.WithTitleWait(time.Second))
	ts := httptest.NewServer(srv.Handler())

	serverURL = ts.URL
	t.Cleanup(func() {
		serverURL = ""
		ts.Close()
		srv.Close()
	})
	return &testStation{url: ts.URL, dbPath: dbPath, store: store}
}

// seedSession stores a session with one exchange
func (s *testStation) seedSession(t *testing.T, id, title string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.store.CreateSession(ctx, id, title); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	msgs := []internal.Message{
		{ID: id + "-u", Role: internal.RoleUser, Content: "what is the hash of abc", CreatedAt: time.Now()},
		{ID: id + "-m", Role: internal.RoleModel, Content: "Let me check.", Feedback: internal.FeedbackLiked, CreatedAt: time.Now()},
	}
	for _, m := range msgs {
		if err := s.store.SaveMessage(ctx, id, m); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}
}

// execute runs the root command with args and returns what it wrote
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(input))
	err := rootCmd.Execute()
	return out.String(), err
}
