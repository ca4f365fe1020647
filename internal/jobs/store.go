package jobs

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"facelane/internal/config"
)

// Store persists job records. Every method runs under one store-wide guard so
// read-modify-write sequences from different lanes and requests never
// interleave. The guard is held for a single operation only.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Load(ctx context.Context, id string) (*Job, error)
	Save(ctx context.Context, job *Job) error
	Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error)
	List(ctx context.Context, filter ListFilter) ([]*Job, error)
	Close() error
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	OwnerID  string
	Kind     TargetKind
	Statuses []Status
	Limit    int
}

func (f ListFilter) matches(job *Job) bool {
	if f.OwnerID != "" && job.OwnerID != f.OwnerID {
		return false
	}
	if f.Kind != "" && job.TargetKind != f.Kind {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, job.Status) {
		return false
	}
	return true
}

// apply filters, orders by creation time (oldest first), and truncates.
func (f ListFilter) apply(all []*Job) []*Job {
	out := make([]*Job, 0, len(all))
	for _, job := range all {
		if f.matches(job) {
			out = append(out, job)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Open returns the store selected by cfg.Store.Backend.
func Open(cfg *config.Config) (Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	switch cfg.Store.Backend {
	case "sqlite":
		return OpenSQLite(cfg.Store.SQLitePath)
	case "file", "":
		return NewFileStore(cfg.Paths.JobsDir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
