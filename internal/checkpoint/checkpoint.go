// Package checkpoint persists session snapshots so a build can be resumed.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/filetree"
	"github.com/felixgeelhaar/blitz/internal/provider"
	"github.com/felixgeelhaar/blitz/internal/step"
)

// Version is the snapshot format version written by Save.
const Version = "1.0"

// State is a snapshot of one session.
type State struct {
	Version    string             `json:"version"`
	SessionID  string             `json:"session_id"`
	Template   string             `json:"template,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Steps      []step.Step        `json:"steps"`
	Cursor     int64              `json:"cursor"`
	Tree       filetree.Tree      `json:"tree"`
	Transcript []provider.Message `json:"transcript,omitempty"`
	Digest     string             `json:"digest,omitempty"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
}

// Manager stores snapshots as JSON files, one per session.
type Manager struct {
	checkpointDir string
}

// NewManager creates a manager writing into checkpointDir.
func NewManager(checkpointDir string) *Manager {
	return &Manager{checkpointDir: checkpointDir}
}

// Dir returns the checkpoint directory.
func (m *Manager) Dir() string {
	return m.checkpointDir
}

// NewState creates an empty snapshot for sessionID.
func NewState(sessionID string) *State {
	now := time.Now()
	return &State{
		Version:   Version,
		SessionID: sessionID,
		StartedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]string),
	}
}

func (m *Manager) path(sessionID string) (string, error) {
	if sessionID == "" || sessionID == "." || sessionID == ".." ||
		strings.ContainsAny(sessionID, `/\`) {
		return "", errors.New(errors.ErrCodeSessionNotFound,
			fmt.Sprintf("invalid session id for checkpoint: %q", sessionID))
	}
	return filepath.Join(m.checkpointDir, sessionID+".json"), nil
}

// Save persists state and refreshes its UpdatedAt.
func (m *Manager) Save(state *State) error {
	if state == nil {
		return fmt.Errorf("checkpoint state is nil")
	}
	path, err := m.path(state.SessionID)
	if err != nil {
		return err
	}

	state.UpdatedAt = time.Now()
	if state.Version == "" {
		state.Version = Version
	}

	if err := os.MkdirAll(m.checkpointDir, 0750); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "create checkpoint directory", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "marshal checkpoint", err)
	}

	// Write then rename so a crash never leaves a half-written snapshot.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "write checkpoint", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "write checkpoint", err)
	}
	return nil
}

// Load reads the snapshot of sessionID.
func (m *Manager) Load(sessionID string) (*State, error) {
	path, err := m.path(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "read checkpoint", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "JSON", err)
	}
	return &state, nil
}

// Exists reports whether a snapshot exists for sessionID.
func (m *Manager) Exists(sessionID string) bool {
	path, err := m.path(sessionID)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the snapshot of sessionID. Missing snapshots are not an error.
func (m *Manager) Delete(sessionID string) error {
	path, err := m.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "delete checkpoint", err)
	}
	return nil
}

// List returns the ids of all stored snapshots, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.checkpointDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "read checkpoint directory", err)
	}

	ids := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Pending returns the steps not yet completed, in id order.
func (s *State) Pending() []step.Step {
	var pending []step.Step
	for _, st := range s.Steps {
		if st.Pending() {
			pending = append(pending, st)
		}
	}
	return pending
}

// IsComplete reports whether the snapshot holds steps and all are completed.
func (s *State) IsComplete() bool {
	return len(s.Steps) > 0 && len(s.Pending()) == 0
}

// Progress returns the completed fraction of steps (0.0 to 1.0).
func (s *State) Progress() float64 {
	if len(s.Steps) == 0 {
		return 0.0
	}
	done := len(s.Steps) - len(s.Pending())
	return float64(done) / float64(len(s.Steps))
}

// SetMetadata sets a metadata key-value pair
func (s *State) SetMetadata(key, value string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[key] = value
}

// GetMetadata retrieves a metadata value
func (s *State) GetMetadata(key string) (string, bool) {
	value, ok := s.Metadata[key]
	return value, ok
}
