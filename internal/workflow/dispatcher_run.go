package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"facelane/internal/engine"
	"facelane/internal/jobs"
	"facelane/internal/logging"
	"facelane/internal/services"
)

// errSkip aborts a store update without writing.
var errSkip = errors.New("skip")

func (d *Dispatcher) process(ctx context.Context, l *lane, id string) {
	jobCtx := services.WithLane(services.WithJobID(ctx, id), string(l.kind))
	logger := logging.WithContext(jobCtx, l.logger)
	started := d.now()
	status := jobs.StatusFailed

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "lane worker panic", "lane_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "engine wrapper bug; the lane keeps running"),
			)
			status = d.finish(jobCtx, logger, id, fmt.Errorf("internal error: %v", r))
		}
		l.clearActive(status)
		d.observer.JobFinished(l.kind, status, d.now().Sub(started))
	}()

	job, err := d.store.Update(jobCtx, id, func(j *jobs.Job) error {
		if j.Status != jobs.StatusQueued {
			return errSkip
		}
		return j.StartRun(d.now())
	})
	if errors.Is(err, errSkip) {
		logger.Info("skipping dequeued job that is no longer queued")
		status = jobs.StatusCancelled
		if current, loadErr := d.store.Load(jobCtx, id); loadErr == nil {
			status = current.Status
		}
		return
	}
	if err != nil {
		d.setLastError(err)
		logging.WarnWithContext(logger, "could not start job", "job_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job store access"),
			logging.String(logging.FieldImpact, "job marked failed"),
		)
		if errors.Is(err, jobs.ErrNotFound) {
			return
		}
		status = d.finish(jobCtx, logger, id, fmt.Errorf("start job: %w", err))
		return
	}

	d.observer.JobStarted(l.kind)
	d.notifier.Notify(jobCtx, job, jobs.EventRunning)

	runCtx, cancel := context.WithCancel(jobCtx)
	l.setActive(id, cancel, started)
	sampler := logging.NewProgressSampler(10)
	runErr := d.runner.Run(runCtx, id, l.kind, func(p engine.Progress) {
		d.recordProgress(jobCtx, logger, sampler, id, p)
	})
	cancel()
	if runErr == nil && job.PlannedOutputPath != "" {
		if _, statErr := os.Stat(job.PlannedOutputPath); statErr != nil {
			runErr = fmt.Errorf("engine produced no output at %s", job.PlannedOutputPath)
		}
	}
	status = d.finish(jobCtx, logger, id, runErr)
}

// finish records the outcome unless the job already reached a terminal
// status, which happens when it was cancelled mid-run.
func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, id string, runErr error) jobs.Status {
	persistCtx := context.WithoutCancel(ctx)
	interrupted := runErr != nil && ctx.Err() != nil
	job, err := d.store.Update(persistCtx, id, func(j *jobs.Job) error {
		if j.Status.IsTerminal() {
			return errSkip
		}
		if runErr == nil {
			return j.Complete(j.PlannedOutputPath, d.now())
		}
		reason := failureReason(runErr)
		if interrupted {
			reason = jobs.InterruptedReason
		}
		return j.Fail(reason, d.now())
	})
	if errors.Is(err, errSkip) {
		current, loadErr := d.store.Load(persistCtx, id)
		if loadErr != nil {
			return jobs.StatusCancelled
		}
		logger.Info("job reached a terminal status during the run; keeping it",
			logging.String("status", string(current.Status)))
		return current.Status
	}
	if err != nil {
		d.setLastError(err)
		logging.ErrorWithContext(logger, "failed to persist job outcome", "job_outcome_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job store access; Recover will fail the record on restart"),
		)
		return jobs.StatusFailed
	}

	if job.Status == jobs.StatusCompleted {
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_completed"),
			logging.String("output_path", job.OutputPath),
		)
		d.notifier.Notify(persistCtx, job, jobs.EventCompleted)
		return job.Status
	}
	d.setLastError(runErr)
	logger.Warn("job failed",
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String("error_message", job.Error),
		logging.String(logging.FieldErrorHint, "see the job error for the engine output tail"),
		logging.String(logging.FieldImpact, "job marked failed"),
	)
	d.notifier.Notify(persistCtx, job, jobs.EventFailed)
	return job.Status
}

func (d *Dispatcher) recordProgress(ctx context.Context, logger *slog.Logger, sampler *logging.ProgressSampler, id string, p engine.Progress) {
	job, err := d.store.Update(ctx, id, func(j *jobs.Job) error {
		if !j.RecordProgress(p.Stage, p.Percent) {
			return errSkip
		}
		return nil
	})
	if errors.Is(err, errSkip) {
		return
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Debug("progress update dropped", logging.Error(err))
		}
		return
	}
	if sampler.ShouldLog(job.Stage, job.Progress) {
		logger.Info("job progress",
			logging.String(logging.FieldStage, job.Stage),
			logging.Int("percent", job.Progress),
		)
	}
	d.notifier.Touch(id)
}

func failureReason(err error) string {
	var exitErr *engine.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Error()
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "job failed"
	}
	return message
}

// elapsedSince is used by status reporting.
func elapsedSince(start, now time.Time) time.Duration {
	if start.IsZero() {
		return 0
	}
	return now.Sub(start)
}
