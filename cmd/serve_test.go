package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iksnae/mcp-station/testutil"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	return testutil.WriteFile(t, t.TempDir(), "config.yaml", []byte(body))
}

func TestServeCommand_Flags(t *testing.T) {
	for _, name := range []string{"listen", "db", "provider"} {
		if serveCmd.Flag(name) == nil {
			t.Errorf("serve command should have --%s flag", name)
		}
	}
}

func TestServeCommand_BadListenAddress(t *testing.T) {
	t.Setenv("STATION_HOME", t.TempDir())
	defer func() { serveListen, serveDatabase, serveProvider = "", "", "" }()

	dbPath := filepath.Join(t.TempDir(), "chat.db")
	_, err := execute(t, "serve", "--listen", "256.0.0.1:bad", "--db", dbPath, "--provider", "echo")
	if err == nil {
		t.Fatal("serve with an invalid listen address should fail")
	}
	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("serve did not open the database at --db: %v", statErr)
	}
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	t.Setenv("STATION_HOME", t.TempDir())
	configPath = writeTempConfig(t, "connections:\n  - id: a\n    target: x\n    type: pigeon\n")
	defer func() { configPath = "" }()

	if _, err := execute(t, "serve"); err == nil {
		t.Error("serve with an invalid config should fail")
	}
}
