package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cedarridge/idm-trainer/internal/progress"
)

const cacheTTL = 24 * time.Hour

// CachedStore decorates a ProgressStore with a Redis/Dragonfly write-through
// cache. Reads hit the cache first; writes land in the backing store and
// then refresh the cache. Cache failures degrade to the backing store and
// are logged, never surfaced.
type CachedStore struct {
	inner  ProgressStore
	client *redis.Client
}

// NewCachedStore wraps a store with a cache client.
func NewCachedStore(inner ProgressStore, client *redis.Client) *CachedStore {
	return &CachedStore{inner: inner, client: client}
}

func (s *CachedStore) GetProgress(ctx context.Context, userID string) (*progress.ProgressRecord, error) {
	rec := &progress.ProgressRecord{}
	if s.cacheGet(ctx, cacheKey("progress", userID), rec) {
		return rec, nil
	}
	rec, err := s.inner.GetProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, cacheKey("progress", userID), rec)
	return rec, nil
}

func (s *CachedStore) PutProgress(ctx context.Context, userID string, rec *progress.ProgressRecord) error {
	if err := s.inner.PutProgress(ctx, userID, rec); err != nil {
		return err
	}
	s.cacheSet(ctx, cacheKey("progress", userID), rec)
	return nil
}

func (s *CachedStore) GetSession(ctx context.Context, userID string) (*progress.SessionRecord, error) {
	rec := &progress.SessionRecord{}
	if s.cacheGet(ctx, cacheKey("session", userID), rec) {
		return rec, nil
	}
	rec, err := s.inner.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, cacheKey("session", userID), rec)
	return rec, nil
}

func (s *CachedStore) PutSession(ctx context.Context, userID string, rec *progress.SessionRecord) error {
	if err := s.inner.PutSession(ctx, userID, rec); err != nil {
		return err
	}
	s.cacheSet(ctx, cacheKey("session", userID), rec)
	return nil
}

func (s *CachedStore) GetWizard(ctx context.Context, userID string) (*progress.WizardRecord, error) {
	rec := &progress.WizardRecord{}
	if s.cacheGet(ctx, cacheKey("wizard", userID), rec) {
		return rec, nil
	}
	rec, err := s.inner.GetWizard(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, cacheKey("wizard", userID), rec)
	return rec, nil
}

func (s *CachedStore) PutWizard(ctx context.Context, userID string, rec *progress.WizardRecord) error {
	if err := s.inner.PutWizard(ctx, userID, rec); err != nil {
		return err
	}
	s.cacheSet(ctx, cacheKey("wizard", userID), rec)
	return nil
}

func (s *CachedStore) cacheGet(ctx context.Context, key string, out any) bool {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		s.client.Del(ctx, key)
		return false
	}
	return true
}

func (s *CachedStore) cacheSet(ctx context.Context, key string, rec any) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.client.Set(ctx, key, data, cacheTTL).Err(); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

func cacheKey(kind, userID string) string {
	return fmt.Sprintf("trainer:%s:%s", kind, userID)
}
