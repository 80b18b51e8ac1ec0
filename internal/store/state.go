package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/promptslot/internal/arbiter"
	"github.com/jmylchreest/promptslot/internal/model"
)

// CurrentSavedStateVersion is the current version of the saved state schema.
const CurrentSavedStateVersion = 1

// ErrCorruptSavedState is returned when a saved state file cannot be decoded.
var ErrCorruptSavedState = errors.New("corrupt saved state")

// SavedState is what a presentation surface persists so it can be recreated
// after the host tears it down (rotation, process death) without asking the
// arbiter again.
type SavedState struct {
	Ticket   arbiter.Ticket  `json:"ticket"`
	Envelope *model.Envelope `json:"envelope"`
	SavedAt  int64           `json:"saved_at"` // Unix timestamp

	SchemaVersion int `json:"schema_version"`
}

// SavedTime returns SavedAt as a time.Time.
func (s *SavedState) SavedTime() time.Time {
	return time.Unix(s.SavedAt, 0)
}

// SavedStateFile stores a single SavedState as JSON.
type SavedStateFile struct {
	mu   sync.RWMutex
	path string
}

// NewSavedStateFile creates a SavedStateFile at path. Nothing is written until Save.
func NewSavedStateFile(path string) *SavedStateFile {
	return &SavedStateFile{path: path}
}

// Path returns the file path.
func (f *SavedStateFile) Path() string {
	return f.path
}

// Save writes state to disk, replacing any previous state.
func (f *SavedStateFile) Save(state *SavedState) error {
	if state == nil || state.Envelope == nil {
		return fmt.Errorf("save %s: empty state", f.path)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSavedStateVersion
	}
	if state.SavedAt == 0 {
		state.SavedAt = time.Now().Unix()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically via temp file
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, f.path)
}

// Load reads the saved state. A missing file returns nil and no error.
func (f *SavedStateFile) Load() (*SavedState, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var state SavedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSavedState, f.path, err)
	}
	if state.SchemaVersion > CurrentSavedStateVersion {
		return nil, fmt.Errorf("unsupported saved state version %d (max: %d)",
			state.SchemaVersion, CurrentSavedStateVersion)
	}
	if state.Envelope == nil || state.Ticket == arbiter.NoTicket {
		return nil, fmt.Errorf("%w: %s: missing ticket or envelope", ErrCorruptSavedState, f.path)
	}
	return &state, nil
}

// Clear removes the saved state. Clearing a missing file is not an error.
func (f *SavedStateFile) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
