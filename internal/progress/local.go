package progress

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// Cache keys: one serialized record per key.
const (
	keyProgress = "progress"
	keySession  = "session"
	keyWizard   = "wizard"
)

// LocalStore is the synchronous local cache: one JSON file per key under a
// state directory. It never surfaces errors to callers; a failed read
// means "no cached state" and a failed write is logged and dropped, the
// same posture a browser cache takes toward quota and privacy modes.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the state directory if needed and returns the store.
func NewLocalStore(dir string) *LocalStore {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("creating state dir failed, local cache disabled", "dir", dir, "error", err)
	}
	return &LocalStore{dir: dir}
}

// LoadProgress reads the cached progress blob. A current-version blob is
// returned as-is; a stale one is run through the migration chain and, on
// success, rewritten in place. Parse failures and unrecoverable migrations
// yield nil so the caller proceeds with empty defaults.
func (s *LocalStore) LoadProgress() *State {
	raw, err := os.ReadFile(s.path(keyProgress))
	if err != nil {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}

	if stateVersion(parsed) != StateVersion {
		migrated := Migrate(parsed)
		if migrated == nil {
			return nil
		}
		parsed = migrated
		if data, err := json.Marshal(parsed); err == nil {
			s.write(keyProgress, data)
		}
	}

	state, err := DecodeState(parsed)
	if err != nil {
		return nil
	}
	return state
}

// SaveProgress writes the progress blob synchronously, stamping the current
// version. Errors are swallowed.
func (s *LocalStore) SaveProgress(state *State) {
	if state == nil {
		return
	}
	stamped := *state
	stamped.Version = StateVersion
	data, err := json.Marshal(&stamped)
	if err != nil {
		return
	}
	s.write(keyProgress, data)
}

// ClearProgress removes the progress blob. Absence is not an error.
func (s *LocalStore) ClearProgress() { s.clear(keyProgress) }

// LoadWizard returns the cached wizard blob, nil when absent.
func (s *LocalStore) LoadWizard() json.RawMessage {
	raw, err := os.ReadFile(s.path(keyWizard))
	if err != nil {
		return nil
	}
	return raw
}

// SaveWizard caches the opaque wizard blob.
func (s *LocalStore) SaveWizard(blob json.RawMessage) {
	if blob == nil {
		return
	}
	s.write(keyWizard, blob)
}

// ClearWizard removes the wizard blob.
func (s *LocalStore) ClearWizard() { s.clear(keyWizard) }

// SaveSession caches the session position.
func (s *LocalStore) SaveSession(rec *SessionRecord) {
	if rec == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	s.write(keySession, data)
}

// LoadSession returns the cached session position, nil when absent.
func (s *LocalStore) LoadSession() *SessionRecord {
	raw, err := os.ReadFile(s.path(keySession))
	if err != nil {
		return nil
	}
	var rec SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil
	}
	return &rec
}

// ClearSession removes the session position.
func (s *LocalStore) ClearSession() { s.clear(keySession) }

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *LocalStore) write(key string, data []byte) {
	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		slog.Warn("local cache write failed", "key", key, "error", err)
	}
}

func (s *LocalStore) clear(key string) {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		slog.Warn("local cache clear failed", "key", key, "error", err)
	}
}
