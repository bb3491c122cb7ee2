package internal

import (
	"fmt"
	"os"
	"path/filepath"
)

// StationPaths holds the on-disk locations used by the console and server
type StationPaths struct {
	BaseDir string // ~/.mcp-station
}

// DetectStationPaths resolves the station directory, honouring STATION_HOME
func DetectStationPaths() (StationPaths, error) {
	if dir := os.Getenv("STATION_HOME"); dir != "" {
		return StationPaths{BaseDir: dir}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return StationPaths{}, fmt.Errorf("failed to get home directory: %w", err)
	}
	return StationPaths{BaseDir: filepath.Join(home, ".mcp-station")}, nil
}

// ConfigPath is the YAML configuration file
func (sp StationPaths) ConfigPath() string {
	return filepath.Join(sp.BaseDir, "config.yaml")
}

// StatePath is the YAML client state file
func (sp StationPaths) StatePath() string {
	return filepath.Join(sp.BaseDir, "state.yaml")
}

// DatabasePath is the server's chat database
func (sp StationPaths) DatabasePath() string {
	return filepath.Join(sp.BaseDir, "chat_history.db")
}

// LogDir holds log files written while the terminal UI owns stdout
func (sp StationPaths) LogDir() string {
	return filepath.Join(sp.BaseDir, "logs")
}

// LogPath is the console log file
func (sp StationPaths) LogPath() string {
	return filepath.Join(sp.LogDir(), "station.log")
}

// Ensure creates the base and log directories
func (sp StationPaths) Ensure() error {
	if err := os.MkdirAll(sp.LogDir(), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", sp.LogDir(), err)
	}
	return nil
}

// DatabaseExists checks whether the chat database has been created
func (sp StationPaths) DatabaseExists() bool {
	_, err := os.Stat(sp.DatabasePath())
	return err == nil
}
