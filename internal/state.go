package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientState is what the console remembers between runs
type ClientState struct {
	ActiveSessionID string       `yaml:"active_session_id,omitempty"`
	Provider        string       `yaml:"provider,omitempty"`
	Connections     []Connection `yaml:"connections"`
	UpdatedAt       time.Time    `yaml:"updated_at"`
}

// StateManager loads and saves the client state file
type StateManager struct {
	mu   sync.Mutex
	path string
}

// NewStateManager creates a manager for the state file at path
func NewStateManager(path string) *StateManager {
	return &StateManager{path: path}
}

// Path returns the state file location
func (sm *StateManager) Path() string {
	return sm.path
}

// Load reads the state file. A missing file yields an empty state.
// Entries persisted mid-connect come back as disconnected since no
// connection attempt survives a restart.
func (sm *StateManager) Load() (*ClientState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state := &ClientState{Connections: []Connection{}}
	data, err := os.ReadFile(sm.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, &StorageError{Path: sm.path, Op: "read", Err: err}
	}
	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.Connections == nil {
		state.Connections = []Connection{}
	}
	for i := range state.Connections {
		if state.Connections[i].Status == StatusConnecting {
			state.Connections[i].Status = StatusDisconnected
		}
	}
	return state, nil
}

// Save writes the state file
func (sm *StateManager) Save(state *ClientState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	out := *state
	out.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return writeFileAtomic(sm.path, data)
}

// Update loads, modifies and saves the state in one step
func (sm *StateManager) Update(fn func(*ClientState)) error {
	state, err := sm.Load()
	if err != nil {
		return err
	}
	fn(state)
	return sm.Save(state)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &StorageError{Path: path, Op: "mkdir", Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return &StorageError{Path: path, Op: "create", Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &StorageError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Path: path, Op: "write", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &StorageError{Path: path, Op: "rename", Err: err}
	}
	return nil
}
