package progress

import (
	"context"
	"encoding/json"
	"time"
)

// Manager is the dual-write persistence adapter: the local cache is
// authoritative for immediate reads and written synchronously on every
// change; the remote store overlays asynchronously once fetched and
// receives debounced writes. Progress, session position and the wizard
// blob each ride their own debounce stream.
type Manager struct {
	local  *LocalStore
	remote *RemoteClient // nil when unauthenticated

	progressSave *Debouncer
	sessionSave  *Debouncer
	wizardSave   *Debouncer
}

// NewManager wires the two tiers. remote may be nil for local-only
// operation (unauthenticated sessions).
func NewManager(local *LocalStore, remote *RemoteClient, debounce time.Duration) *Manager {
	return &Manager{
		local:        local,
		remote:       remote,
		progressSave: NewDebouncer(debounce),
		sessionSave:  NewDebouncer(debounce),
		wizardSave:   NewDebouncer(debounce),
	}
}

// Load is the synchronous startup read: local cache only, migrated as
// needed, nil when empty or unrecoverable.
func (m *Manager) Load() *State {
	return m.local.LoadProgress()
}

// LoadSession reads the locally cached session position.
func (m *Manager) LoadSession() *SessionRecord {
	return m.local.LoadSession()
}

// FetchRemote performs the asynchronous startup overlay. On a successful
// progress fetch the remote state wins and the local cache is rewritten to
// match. The returned session record drives scenario resumption; the
// wizard blob is cached locally only when no local copy exists, so local
// in-flight work is never clobbered.
func (m *Manager) FetchRemote(ctx context.Context) (*State, *SessionRecord) {
	if m.remote == nil {
		return nil, nil
	}

	var state *State
	if rec := m.remote.FetchProgress(ctx); rec != nil {
		state = rec.ToState()
		m.local.SaveProgress(state)
	}

	session := m.remote.FetchSession(ctx)

	if wiz := m.remote.FetchWizard(ctx); wiz != nil && wiz.WizardData != nil {
		if m.local.LoadWizard() == nil {
			m.local.SaveWizard(wiz.WizardData)
		}
	}

	return state, session
}

// SaveProgress writes locally at once and schedules the debounced remote
// write.
func (m *Manager) SaveProgress(state *State) {
	if state == nil {
		return
	}
	m.local.SaveProgress(state)

	if m.remote == nil {
		return
	}
	snapshot := *state
	m.progressSave.Call(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.remote.SaveProgress(ctx, &snapshot)
	})
}

// SaveSession schedules a debounced remote write of the session position.
func (m *Manager) SaveSession(activeScenarioID, currentStepID string) {
	m.local.SaveSession(NewSessionRecord(activeScenarioID, currentStepID))

	if m.remote == nil {
		return
	}
	m.sessionSave.Call(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.remote.SaveSession(ctx, activeScenarioID, currentStepID)
	})
}

// SaveWizard caches and forwards the opaque wizard blob.
func (m *Manager) SaveWizard(blob json.RawMessage) {
	m.local.SaveWizard(blob)

	if m.remote == nil {
		return
	}
	m.wizardSave.Call(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.remote.SaveWizard(ctx, blob)
	})
}

// ClearWizard drops the local wizard blob.
func (m *Manager) ClearWizard() {
	m.local.ClearWizard()
}

// Reset wipes all durable progress: pending debounced writes are canceled
// so no stale write lands after the reset, the local cache is cleared, and
// when authenticated an empty snapshot is pushed remotely along with a
// cleared session position.
func (m *Manager) Reset(ctx context.Context) {
	m.progressSave.Cancel()
	m.sessionSave.Cancel()
	m.wizardSave.Cancel()

	m.local.ClearProgress()
	m.local.ClearSession()
	m.local.ClearWizard()

	if m.remote != nil {
		m.remote.SaveProgress(ctx, NewState())
		m.remote.SaveSession(ctx, "", "")
	}
}

// Close flushes all pending debounced writes; called on session teardown.
func (m *Manager) Close() {
	m.progressSave.Flush()
	m.sessionSave.Flush()
	m.wizardSave.Flush()
}
