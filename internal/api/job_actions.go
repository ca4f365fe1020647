package api

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"facelane/internal/engine"
	"facelane/internal/jobs"
	"facelane/internal/logging"
	"facelane/internal/services"
)

// CreateJob records a new job in waiting_source. Unknown modes fall back to
// the configured default.
func (s *Service) CreateJob(ctx context.Context, owner, mode string) (JobView, error) {
	resolved := s.resolveMode(mode)
	job := jobs.New(owner, resolved, s.now())
	if err := s.store.Create(ctx, job); err != nil {
		return JobView{}, err
	}
	s.jobLogger(ctx, job.ID).Info("job created",
		logging.String(logging.FieldEventType, "job_created"),
		logging.String("mode", string(resolved)),
		logging.String("owner_id", owner),
	)
	return s.view(job), nil
}

// AttachSource stores the source face image and advances the upload state.
func (s *Service) AttachSource(ctx context.Context, owner, id, name string, r io.Reader) (JobView, error) {
	if _, err := s.uploadable(ctx, owner, id); err != nil {
		return JobView{}, err
	}
	path, err := s.artifacts.SaveSource(ctx, name, r)
	if err != nil {
		return JobView{}, err
	}
	var replaced string
	job, err := s.update(ctx, owner, id, func(job *jobs.Job) error {
		replaced = job.SourcePath
		return job.AttachSource(path)
	})
	if err != nil {
		_ = os.Remove(path)
		return JobView{}, err
	}
	removeReplaced(replaced, path)
	s.jobLogger(ctx, id).Info("source attached", logging.String("status", string(job.Status)))
	return s.view(job), nil
}

// AttachTarget stores the target artifact, which must match the job's
// target kind, and advances the upload state.
func (s *Service) AttachTarget(ctx context.Context, owner, id, name string, r io.Reader) (JobView, error) {
	current, err := s.uploadable(ctx, owner, id)
	if err != nil {
		return JobView{}, err
	}
	path, err := s.artifacts.SaveTarget(ctx, name, current.TargetKind, r)
	if err != nil {
		return JobView{}, err
	}
	var replaced string
	job, err := s.update(ctx, owner, id, func(job *jobs.Job) error {
		replaced = job.TargetPath
		return job.AttachTarget(path, current.TargetKind)
	})
	if err != nil {
		_ = os.Remove(path)
		return JobView{}, err
	}
	removeReplaced(replaced, path)
	s.jobLogger(ctx, id).Info("target attached", logging.String("status", string(job.Status)))
	return s.view(job), nil
}

// uploadable rejects uploads for jobs that already left the upload phase, so
// no artifact is written for them.
func (s *Service) uploadable(ctx context.Context, owner, id string) (*jobs.Job, error) {
	job, err := s.authorize(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsSubmitted() || job.Status.IsTerminal() {
		return nil, services.Wrap(services.ErrConflict, "api", "attach",
			fmt.Sprintf("job %s is %s", id, job.Status), nil)
	}
	return job, nil
}

func removeReplaced(previous, current string) {
	if previous != "" && previous != current {
		_ = os.Remove(previous)
	}
}

// SetWebhook records the push URL and the events it subscribes to. An empty
// events list subscribes to every event.
func (s *Service) SetWebhook(ctx context.Context, owner, id, url string, events []string) (JobView, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return JobView{}, services.Wrap(services.ErrValidation, "api", "set webhook", "url must start with http:// or https://", nil)
	}
	parsed, err := jobs.ParseEvents(events)
	if err != nil {
		return JobView{}, err
	}
	job, err := s.update(ctx, owner, id, func(job *jobs.Job) error {
		job.WebhookURL = url
		job.WebhookEvents = parsed
		job.WebhookLastError = ""
		return nil
	})
	if err != nil {
		return JobView{}, err
	}
	return s.view(job), nil
}

// SubmitOptions carries optional engine parameters for a submission.
type SubmitOptions struct {
	ReferenceFrame *int
}

// Submit registers a ready job with the engine and places it in its lane.
// Engine rejection leaves the job ready and matches services.ErrEngineExit.
func (s *Service) Submit(ctx context.Context, owner, id string, opts SubmitOptions) (JobView, error) {
	if opts.ReferenceFrame != nil && *opts.ReferenceFrame < 0 {
		return JobView{}, services.Wrap(services.ErrValidation, "api", "submit", "reference frame must not be negative", nil)
	}
	release, ok := s.claimSubmit(id)
	if !ok {
		return JobView{}, services.Wrap(services.ErrConflict, "api", "submit",
			fmt.Sprintf("job %s is already being submitted", id), nil)
	}
	defer release()

	job, err := s.authorize(ctx, owner, id)
	if err != nil {
		return JobView{}, err
	}
	switch {
	case job.Status == jobs.StatusWaitingSource || job.Status == jobs.StatusWaitingTarget:
		return JobView{}, services.Wrap(services.ErrValidation, "api", "submit", "upload source and target first", nil)
	case job.Status != jobs.StatusReady:
		return JobView{}, services.Wrap(services.ErrConflict, "api", "submit",
			fmt.Sprintf("job %s is %s", id, job.Status), nil)
	}

	refFrame := job.ReferenceFrameNumber
	if opts.ReferenceFrame != nil {
		refFrame = opts.ReferenceFrame
	}
	output := s.artifacts.OutputPath(job.TargetPath)
	logger := s.jobLogger(ctx, id)
	if err := s.preparer.Prepare(ctx, engine.PrepareRequest{
		JobID:          job.ID,
		SourcePath:     job.SourcePath,
		TargetPath:     job.TargetPath,
		OutputPath:     output,
		Models:         job.Mode.Models(),
		ReferenceFrame: refFrame,
	}); err != nil {
		logging.WarnWithContext(logger, "engine rejected submission", "job_prepare_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the engine installation and the uploaded artifacts"),
			logging.String(logging.FieldImpact, "job remains ready and can be resubmitted"),
		)
		return JobView{}, err
	}

	queued, err := s.update(ctx, owner, id, func(job *jobs.Job) error {
		if err := job.MarkQueued(); err != nil {
			return err
		}
		job.PlannedOutputPath = output
		job.ReferenceFrameNumber = refFrame
		return nil
	})
	if err != nil {
		return JobView{}, err
	}
	if err := s.dispatcher.Enqueue(queued.TargetKind, queued.ID); err != nil {
		failed, ferr := s.store.Update(ctx, id, func(job *jobs.Job) error {
			return job.Fail(err.Error(), s.now())
		})
		if ferr == nil {
			s.notifier.Notify(ctx, failed, jobs.EventFailed)
		}
		return JobView{}, err
	}
	s.observer.JobSubmitted(queued.TargetKind)
	s.notifier.Notify(ctx, queued, jobs.EventQueued)
	logger.Info("job queued",
		logging.String(logging.FieldEventType, "job_queued"),
		logging.Lane(string(queued.TargetKind)),
	)
	return s.view(queued), nil
}

// Cancel marks the job cancelled. A queued job is dropped from its lane; a
// running engine is terminated only when kill-on-cancel is enabled, otherwise
// its outcome is discarded when it exits.
func (s *Service) Cancel(ctx context.Context, owner, id string) (JobView, error) {
	job, err := s.update(ctx, owner, id, func(job *jobs.Job) error {
		return job.Cancel(s.now())
	})
	if err != nil {
		return JobView{}, err
	}
	signalled := s.dispatcher.Cancel(id)
	s.notifier.Touch(id)
	s.jobLogger(ctx, id).Info("job cancelled",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.Bool("engine_signalled", signalled),
	)
	return s.view(job), nil
}
