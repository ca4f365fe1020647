package api

import (
	"context"
	"io"

	"facelane/internal/jobs"
	"facelane/internal/logging"
)

// QuickRequest bundles a full job submission in one call.
type QuickRequest struct {
	Mode           string
	SourceName     string
	Source         io.Reader
	TargetName     string
	Target         io.Reader
	WebhookURL     string
	WebhookEvents  []string
	ReferenceFrame *int
}

// Quick creates a job, attaches both artifacts, sets the optional webhook and
// submits it. A failure after creation cancels the partial job so it does not
// linger in an upload state.
func (s *Service) Quick(ctx context.Context, owner string, req QuickRequest) (JobView, error) {
	created, err := s.CreateJob(ctx, owner, req.Mode)
	if err != nil {
		return JobView{}, err
	}
	id := created.JobID

	steps := []func() error{
		func() error {
			_, err := s.AttachSource(ctx, owner, id, req.SourceName, req.Source)
			return err
		},
		func() error {
			_, err := s.AttachTarget(ctx, owner, id, req.TargetName, req.Target)
			return err
		},
		func() error {
			if req.WebhookURL == "" {
				return nil
			}
			_, err := s.SetWebhook(ctx, owner, id, req.WebhookURL, req.WebhookEvents)
			return err
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			s.abandon(ctx, id, err)
			return JobView{}, err
		}
	}
	view, err := s.Submit(ctx, owner, id, SubmitOptions{ReferenceFrame: req.ReferenceFrame})
	if err != nil {
		s.abandon(ctx, id, err)
		return JobView{}, err
	}
	return view, nil
}

func (s *Service) abandon(ctx context.Context, id string, cause error) {
	_, err := s.store.Update(context.WithoutCancel(ctx), id, func(job *jobs.Job) error {
		if job.Status.IsTerminal() {
			return nil
		}
		return job.Cancel(s.now())
	})
	logger := s.jobLogger(ctx, id)
	if err != nil {
		logger.Debug("abandon quick job failed", logging.Error(err))
		return
	}
	logger.Info("quick job abandoned", logging.Error(cause))
}
