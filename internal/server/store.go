// Package server exposes the persistence API and the realtime session
// gateway: per-user progress, session and wizard records over REST, and a
// websocket channel driving a server-hosted engine per connection.
package server

import (
	"context"
	"errors"
	"sync"

	"github.com/cedarridge/idm-trainer/internal/progress"
)

// ErrNotFound is returned by stores when a user has no saved record.
var ErrNotFound = errors.New("record not found")

// ProgressStore persists the three per-user records behind the REST API.
type ProgressStore interface {
	GetProgress(ctx context.Context, userID string) (*progress.ProgressRecord, error)
	PutProgress(ctx context.Context, userID string, rec *progress.ProgressRecord) error
	GetSession(ctx context.Context, userID string) (*progress.SessionRecord, error)
	PutSession(ctx context.Context, userID string, rec *progress.SessionRecord) error
	GetWizard(ctx context.Context, userID string) (*progress.WizardRecord, error)
	PutWizard(ctx context.Context, userID string, rec *progress.WizardRecord) error
}

// MemoryStore is an in-memory ProgressStore used in tests and when no
// database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	progress map[string]*progress.ProgressRecord
	sessions map[string]*progress.SessionRecord
	wizards  map[string]*progress.WizardRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress: make(map[string]*progress.ProgressRecord),
		sessions: make(map[string]*progress.SessionRecord),
		wizards:  make(map[string]*progress.WizardRecord),
	}
}

func (s *MemoryStore) GetProgress(_ context.Context, userID string) (*progress.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.progress[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) PutProgress(_ context.Context, userID string, rec *progress.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[userID] = rec
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, userID string) (*progress.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) PutSession(_ context.Context, userID string, rec *progress.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[userID] = rec
	return nil
}

func (s *MemoryStore) GetWizard(_ context.Context, userID string) (*progress.WizardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.wizards[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) PutWizard(_ context.Context, userID string, rec *progress.WizardRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wizards[userID] = rec
	return nil
}
