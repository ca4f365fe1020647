package api

import (
	"context"
	"fmt"
	"os"
	"strings"

	"facelane/internal/jobs"
	"facelane/internal/notifications"
	"facelane/internal/services"
)

// Get returns the job view, including its lane position while queued.
func (s *Service) Get(ctx context.Context, owner, id string) (JobView, error) {
	job, err := s.authorize(ctx, owner, id)
	if err != nil {
		return JobView{}, err
	}
	return s.view(job), nil
}

// ListOptions narrows List.
type ListOptions struct {
	Statuses []string
	Kind     string
	Limit    int
}

// List returns the owner's jobs, oldest first. An empty owner lists every
// job.
func (s *Service) List(ctx context.Context, owner string, opts ListOptions) ([]JobView, error) {
	filter := jobs.ListFilter{OwnerID: owner, Limit: opts.Limit}
	for _, raw := range opts.Statuses {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := jobs.ParseStatus(part)
			if !ok {
				return nil, services.Wrap(services.ErrValidation, "api", "list", fmt.Sprintf("unknown status %q", part), nil)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if strings.TrimSpace(opts.Kind) != "" {
		kind, ok := jobs.ParseTargetKind(strings.TrimSpace(opts.Kind))
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "api", "list", fmt.Sprintf("unknown kind %q", opts.Kind), nil)
		}
		filter.Kind = kind
	}
	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(records))
	for _, job := range records {
		views = append(views, s.view(job))
	}
	return views, nil
}

// Result returns the output file of a completed job. It matches
// services.ErrNotFound until the job completed and the file exists.
func (s *Service) Result(ctx context.Context, owner, id string) (string, error) {
	job, err := s.authorize(ctx, owner, id)
	if err != nil {
		return "", err
	}
	if !job.ResultReady() {
		return "", services.Wrap(services.ErrNotFound, "api", "result", fmt.Sprintf("job %s has no result (%s)", id, job.Status), nil)
	}
	if info, err := os.Stat(job.OutputPath); err != nil || info.IsDir() {
		return "", services.Wrap(services.ErrNotFound, "api", "result", "result file missing", err)
	}
	return job.OutputPath, nil
}

// Subscribe streams job views whenever the record changes. The channel closes
// after the terminal view, when ctx ends, or after an error frame.
func (s *Service) Subscribe(ctx context.Context, owner, id string) (<-chan Update, error) {
	if _, err := s.authorize(ctx, owner, id); err != nil {
		return nil, err
	}
	snapshots := notifications.Watch(ctx, s.store, id, s.watchInterval, s.broker)
	out := make(chan Update)
	go func() {
		defer close(out)
		for snap := range snapshots {
			update := Update{Err: snap.Err}
			if snap.Job != nil {
				update.Job = s.view(snap.Job)
			}
			select {
			case out <- update:
			case <-ctx.Done():
				for range snapshots {
				}
				return
			}
		}
	}()
	return out, nil
}

// Update is one frame of a subscription.
type Update struct {
	Job JobView
	Err error
}

// Status summarizes the dispatcher and record counts.
func (s *Service) Status(ctx context.Context) (StatusView, error) {
	records, err := s.store.List(ctx, jobs.ListFilter{})
	if err != nil {
		return StatusView{}, err
	}
	counts := make(map[jobs.Status]int)
	for _, job := range records {
		counts[job.Status]++
	}
	return FromDispatcherStatus(s.dispatcher.Snapshot(), counts), nil
}
