package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"facelane/internal/jobs"
	"facelane/internal/logging"
)

// Recover restores dispatcher state from the store. Records left running by
// a previous process are failed as interrupted; queued records are
// re-enqueued oldest update first. Call it before Start.
func (d *Dispatcher) Recover(ctx context.Context) error {
	running, err := d.store.List(ctx, jobs.ListFilter{Statuses: []jobs.Status{jobs.StatusRunning}})
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}
	for _, stale := range running {
		job, err := d.store.Update(ctx, stale.ID, func(j *jobs.Job) error {
			if j.Status != jobs.StatusRunning {
				return errSkip
			}
			return j.Fail(jobs.InterruptedReason, d.now())
		})
		if err != nil {
			if errors.Is(err, errSkip) {
				continue
			}
			return fmt.Errorf("fail interrupted job %s: %w", stale.ID, err)
		}
		d.logger.Warn("failed job interrupted by restart",
			logging.JobID(job.ID),
			logging.String(logging.FieldEventType, "job_interrupted"),
			logging.String(logging.FieldErrorHint, "resubmit the job to run it again"),
			logging.String(logging.FieldImpact, "job marked failed"),
		)
		d.notifier.Notify(ctx, job, jobs.EventFailed)
	}

	queued, err := d.store.List(ctx, jobs.ListFilter{Statuses: []jobs.Status{jobs.StatusQueued}})
	if err != nil {
		return fmt.Errorf("list queued jobs: %w", err)
	}
	slices.SortStableFunc(queued, func(a, b *jobs.Job) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	for _, job := range queued {
		if err := d.Enqueue(job.TargetKind, job.ID); err != nil {
			return err
		}
	}
	if len(running) > 0 || len(queued) > 0 {
		d.logger.Info("dispatcher state recovered",
			logging.Int("interrupted", len(running)),
			logging.Int("requeued", len(queued)),
		)
	}
	return nil
}
