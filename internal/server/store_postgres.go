package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cedarridge/idm-trainer/internal/progress"
)

const dbTimeout = 5 * time.Second

// Schema creates the tables the store needs. Records are stored as jsonb
// blobs keyed by user; the wire format already versions itself, so schema
// churn stays in application code.
const Schema = `
CREATE TABLE IF NOT EXISTS user_progress (
	user_id    TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS user_sessions (
	user_id    TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS user_wizards (
	user_id    TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore is a PostgreSQL-backed ProgressStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the store and ensures the schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetProgress(ctx context.Context, userID string) (*progress.ProgressRecord, error) {
	rec := &progress.ProgressRecord{}
	if err := s.get(ctx, "user_progress", userID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) PutProgress(ctx context.Context, userID string, rec *progress.ProgressRecord) error {
	return s.put(ctx, "user_progress", userID, rec)
}

func (s *PostgresStore) GetSession(ctx context.Context, userID string) (*progress.SessionRecord, error) {
	rec := &progress.SessionRecord{}
	if err := s.get(ctx, "user_sessions", userID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) PutSession(ctx context.Context, userID string, rec *progress.SessionRecord) error {
	return s.put(ctx, "user_sessions", userID, rec)
}

func (s *PostgresStore) GetWizard(ctx context.Context, userID string) (*progress.WizardRecord, error) {
	rec := &progress.WizardRecord{}
	if err := s.get(ctx, "user_wizards", userID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) PutWizard(ctx context.Context, userID string, rec *progress.WizardRecord) error {
	return s.put(ctx, "user_wizards", userID, rec)
}

// The table name is always one of the three compile-time constants above,
// never user input.
func (s *PostgresStore) get(ctx context.Context, table, userID string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var data []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE user_id = $1`, table),
		userID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("query %s: %w", table, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s record: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) put(ctx context.Context, table, userID string, rec any) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", table, err)
	}

	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(
			`INSERT INTO %s (user_id, data, updated_at)
			 VALUES ($1, $2, NOW())
			 ON CONFLICT (user_id)
			 DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
			table,
		),
		userID,
		data,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}
