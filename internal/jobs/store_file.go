package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"facelane/internal/fileutil"
)

// FileStore keeps one indented JSON document per job in a directory.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	clock clock
}

// NewFileStore prepares dir and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding job documents.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create persists a new record. It fails with ErrDuplicate if the id exists.
func (s *FileStore) Create(ctx context.Context, job *Job) error {
	if err := ensureContext(ctx).Err(); err != nil {
		return err
	}
	if job == nil || !ValidID(job.ID) {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(job.ID)); err == nil {
		return fmt.Errorf("create %s: %w", job.ID, ErrDuplicate)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("create %s: %w", job.ID, err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock.now()
	}
	job.UpdatedAt = s.clock.now()
	return s.write(job)
}

// Load returns the record for id or ErrNotFound.
func (s *FileStore) Load(ctx context.Context, id string) (*Job, error) {
	if err := ensureContext(ctx).Err(); err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

// Save overwrites the record and stamps UpdatedAt.
func (s *FileStore) Save(ctx context.Context, job *Job) error {
	if err := ensureContext(ctx).Err(); err != nil {
		return err
	}
	if job == nil || !ValidID(job.ID) {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job.UpdatedAt = s.clock.now()
	return s.write(job)
}

// Update loads the record, applies mutate, and saves it in one guarded step.
// Nothing is written when mutate returns an error.
func (s *FileStore) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	if err := ensureContext(ctx).Err(); err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = s.clock.now()
	if err := s.write(job); err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// List returns records matching filter, oldest first.
func (s *FileStore) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	if err := ensureContext(ctx).Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	all := make([]*Job, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if !ValidID(id) {
			continue
		}
		job, err := s.read(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		all = append(all, job)
	}
	return filter.apply(all), nil
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read(id string) (*Job, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &job, nil
}

func (s *FileStore) write(job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", job.ID, err)
	}
	if err := fileutil.WriteFileAtomic(s.path(job.ID), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save %s: %w", job.ID, err)
	}
	return nil
}
