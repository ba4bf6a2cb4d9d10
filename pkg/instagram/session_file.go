package instagram

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SessionFile manages the per-account session artifact on disk.
type SessionFile struct {
	path string
}

// NewSessionFile builds the artifact path for one account.
func NewSessionFile(dir, accountID string) *SessionFile {
	if dir == "" {
		dir = "sessions"
	}
	if accountID == "" {
		accountID = "default"
	}
	return &SessionFile{
		path: filepath.Join(dir, fmt.Sprintf("%s_session.json", accountID)),
	}
}

// Path returns the artifact location.
func (s *SessionFile) Path() string {
	return s.path
}

// Load reads the stored session. A missing file returns (nil, nil).
func (s *SessionFile) Load() (*SessionState, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var state SessionState
	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	return &state, nil
}

// Save writes the session atomically: temp file then rename, so a crash
// mid-write never leaves a truncated artifact.
func (s *SessionFile) Save(state *SessionState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpPath := tmp.Name()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp session file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear removes the stored artifact. A missing file is not an error.
func (s *SessionFile) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
