package jobs

import (
	"fmt"
	"strings"
	"time"

	"facelane/internal/services"
)

var transitions = map[Status][]Status{
	StatusWaitingSource: {StatusWaitingTarget, StatusCancelled},
	StatusWaitingTarget: {StatusReady, StatusCancelled},
	StatusReady:         {StatusQueued, StatusCancelled},
	// queued -> failed covers records the dispatcher could not start.
	StatusQueued:  {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the job to status or returns an error matching
// services.ErrConflict.
func (j *Job) Transition(to Status) error {
	if !CanTransition(j.Status, to) {
		return services.Wrap(services.ErrConflict, "jobs", "transition",
			fmt.Sprintf("job %s cannot move from %s to %s", j.ID, j.Status, to), nil)
	}
	j.Status = to
	return nil
}

// AttachSource records the source artifact and advances the upload state.
func (j *Job) AttachSource(path string) error {
	if j.Status.IsSubmitted() || j.Status.IsTerminal() {
		return services.Wrap(services.ErrConflict, "jobs", "attach source",
			fmt.Sprintf("job %s is %s", j.ID, j.Status), nil)
	}
	j.SourcePath = path
	return j.advanceUploads()
}

// AttachTarget records the target artifact and advances the upload state.
func (j *Job) AttachTarget(path string, kind TargetKind) error {
	if j.Status.IsSubmitted() || j.Status.IsTerminal() {
		return services.Wrap(services.ErrConflict, "jobs", "attach target",
			fmt.Sprintf("job %s is %s", j.ID, j.Status), nil)
	}
	if kind != j.TargetKind {
		return services.Wrap(services.ErrValidation, "jobs", "attach target",
			fmt.Sprintf("target type must be %s", j.TargetKind), nil)
	}
	j.TargetPath = path
	return j.advanceUploads()
}

// advanceUploads walks the upload states one edge at a time so a job that
// received its target first still passes through waiting_target.
func (j *Job) advanceUploads() error {
	if j.Status == StatusWaitingSource && j.SourceUploaded() {
		if err := j.Transition(StatusWaitingTarget); err != nil {
			return err
		}
	}
	if j.Status == StatusWaitingTarget && j.TargetUploaded() {
		if err := j.Transition(StatusReady); err != nil {
			return err
		}
	}
	return nil
}

// MarkQueued moves a ready job into its lane.
func (j *Job) MarkQueued() error {
	if err := j.Transition(StatusQueued); err != nil {
		return err
	}
	j.Stage = string(StatusQueued)
	j.Progress = 0
	j.Error = ""
	return nil
}

// StartRun marks the job running and resets stage and progress for the run.
func (j *Job) StartRun(now time.Time) error {
	if err := j.Transition(StatusRunning); err != nil {
		return err
	}
	j.Stage = ""
	j.Progress = 0
	j.Error = ""
	started := now.UTC()
	j.StartedAt = &started
	j.FinishedAt = nil
	return nil
}

// RecordProgress applies an engine progress report. Percent is clamped to
// [0,100] and never decreases within a run. The engine reports percentages
// per stage, so once an early stage reaches 100 the job stays at 100 while
// Stage keeps advancing. It returns false when the report changed nothing or
// the job is no longer running.
func (j *Job) RecordProgress(stage string, percent int) bool {
	if j.Status != StatusRunning {
		return false
	}
	percent = max(0, min(100, percent))
	stage = strings.TrimSpace(stage)
	changed := false
	if stage != "" && stage != j.Stage {
		j.Stage = stage
		changed = true
	}
	if percent > j.Progress {
		j.Progress = percent
		changed = true
	}
	return changed
}

// Complete marks the run successful and publishes the output path.
func (j *Job) Complete(outputPath string, now time.Time) error {
	if err := j.Transition(StatusCompleted); err != nil {
		return err
	}
	j.OutputPath = outputPath
	j.Stage = string(StatusCompleted)
	j.Progress = 100
	j.Error = ""
	finished := now.UTC()
	j.FinishedAt = &finished
	return nil
}

// Fail marks the run failed with a human-readable reason.
func (j *Job) Fail(reason string, now time.Time) error {
	if err := j.Transition(StatusFailed); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "job failed"
	}
	j.Error = reason
	j.Stage = string(StatusFailed)
	j.OutputPath = ""
	finished := now.UTC()
	j.FinishedAt = &finished
	return nil
}

// Cancel marks the job cancelled from any non-terminal status.
func (j *Job) Cancel(now time.Time) error {
	if err := j.Transition(StatusCancelled); err != nil {
		return err
	}
	j.Stage = string(StatusCancelled)
	finished := now.UTC()
	j.FinishedAt = &finished
	return nil
}
