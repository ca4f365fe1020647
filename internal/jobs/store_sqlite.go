package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps job documents in a single SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	mu    sync.Mutex
	clock clock
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	sqliteTimeLayout        = time.RFC3339Nano
)

// OpenSQLite initializes or connects to the job database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Create inserts a new record. It fails with ErrDuplicate if the id exists.
func (s *SQLiteStore) Create(ctx context.Context, job *Job) error {
	ctx = ensureContext(ctx)
	if job == nil || !ValidID(job.ID) {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.read(ctx, job.ID); err == nil {
		return fmt.Errorf("create %s: %w", job.ID, ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock.now()
	}
	job.UpdatedAt = s.clock.now()
	return s.write(ctx, job)
}

// Load returns the record for id or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx, id)
}

// Save overwrites the record and stamps UpdatedAt.
func (s *SQLiteStore) Save(ctx context.Context, job *Job) error {
	ctx = ensureContext(ctx)
	if job == nil || !ValidID(job.ID) {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job.UpdatedAt = s.clock.now()
	return s.write(ctx, job)
}

// Update loads the record, applies mutate, and saves it in one guarded step.
func (s *SQLiteStore) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = s.clock.now()
	if err := s.write(ctx, job); err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// List returns records matching filter, oldest first.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "SELECT payload FROM jobs"
	var args []any
	if filter.OwnerID != "" {
		query += " WHERE owner_id = ?"
		args = append(args, filter.OwnerID)
	}
	query += " ORDER BY created_at ASC"

	var all []*Job
	err := retryOnBusy(ctx, func() error {
		all = all[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var payload string
			if err := rows.Scan(&payload); err != nil {
				return err
			}
			job, err := decodePayload(payload)
			if err != nil {
				return err
			}
			all = append(all, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return filter.apply(all), nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) read(ctx context.Context, id string) (*Job, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	var payload string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT payload FROM jobs WHERE id = ?", id).Scan(&payload)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return decodePayload(payload)
}

func (s *SQLiteStore) write(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode %s: %w", job.ID, err)
	}
	err = retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `INSERT INTO jobs (id, owner_id, status, target_kind, created_at, updated_at, payload)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    owner_id = excluded.owner_id,
    status = excluded.status,
    target_kind = excluded.target_kind,
    updated_at = excluded.updated_at,
    payload = excluded.payload`,
			job.ID, job.OwnerID, string(job.Status), string(job.TargetKind),
			job.CreatedAt.UTC().Format(sqliteTimeLayout), job.UpdatedAt.UTC().Format(sqliteTimeLayout), string(payload))
		return execErr
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", job.ID, err)
	}
	return nil
}

func decodePayload(payload string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	return &job, nil
}
