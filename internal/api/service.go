package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"facelane/internal/engine"
	"facelane/internal/jobs"
	"facelane/internal/logging"
	"facelane/internal/notifications"
	"facelane/internal/services"
	"facelane/internal/workflow"
)

// Artifacts stores validated uploads and plans output paths.
type Artifacts interface {
	SaveSource(ctx context.Context, name string, r io.Reader) (string, error)
	SaveTarget(ctx context.Context, name string, want jobs.TargetKind, r io.Reader) (string, error)
	OutputPath(targetPath string) string
}

// Preparer registers a job with the engine before it enters a lane.
type Preparer interface {
	Prepare(ctx context.Context, req engine.PrepareRequest) error
}

// Dispatcher is the subset of the lane dispatcher the service drives.
type Dispatcher interface {
	Enqueue(kind jobs.TargetKind, id string) error
	Cancel(id string) bool
	Position(id string) (int, bool)
	Snapshot() workflow.Status
}

// Notifier receives lifecycle events raised by client calls.
type Notifier interface {
	Notify(ctx context.Context, job *jobs.Job, event jobs.Event)
	Touch(id string)
}

// SubmitObserver records accepted submissions.
type SubmitObserver interface {
	JobSubmitted(kind jobs.TargetKind)
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the notification fan-out.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithSubmitObserver records submissions, typically into metrics.
func WithSubmitObserver(o SubmitObserver) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithWatch configures live subscriptions. broker may be nil, in which case
// subscribers poll only.
func WithWatch(broker *notifications.Broker, interval time.Duration) Option {
	return func(s *Service) {
		s.broker = broker
		if interval > 0 {
			s.watchInterval = interval
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service implements the job operations offered to clients.
type Service struct {
	store         jobs.Store
	artifacts     Artifacts
	preparer      Preparer
	dispatcher    Dispatcher
	notifier      Notifier
	observer      SubmitObserver
	broker        *notifications.Broker
	watchInterval time.Duration
	defaultMode   jobs.Mode
	logger        *slog.Logger
	now           func() time.Time

	// submitting holds ids whose engine preparation is in flight.
	submitMu   sync.Mutex
	submitting map[string]struct{}
}

// NewService wires the job service. defaultMode is used when a client asks
// for an unknown mode.
func NewService(store jobs.Store, artifacts Artifacts, preparer Preparer, dispatcher Dispatcher, defaultMode string, opts ...Option) (*Service, error) {
	if store == nil || artifacts == nil || preparer == nil || dispatcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "new service", "store, artifacts, preparer and dispatcher are required", nil)
	}
	mode, err := jobs.ParseMode(defaultMode)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "new service", "invalid default mode", err)
	}
	s := &Service{
		store:         store,
		artifacts:     artifacts,
		preparer:      preparer,
		dispatcher:    dispatcher,
		notifier:      nopNotifier{},
		observer:      nopObserver{},
		watchInterval: time.Second,
		defaultMode:   mode,
		logger:        logging.NewNop(),
		now:           time.Now,
		submitting:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// claimSubmit reserves id for one submission; release frees it.
func (s *Service) claimSubmit(id string) (release func(), ok bool) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	if _, busy := s.submitting[id]; busy {
		return nil, false
	}
	s.submitting[id] = struct{}{}
	return func() {
		s.submitMu.Lock()
		delete(s.submitting, id)
		s.submitMu.Unlock()
	}, true
}

// DefaultMode returns the mode used for unknown mode names.
func (s *Service) DefaultMode() jobs.Mode { return s.defaultMode }

// resolveMode falls back to the default for unknown or empty names.
func (s *Service) resolveMode(name string) jobs.Mode {
	mode, err := jobs.ParseMode(name)
	if err != nil {
		return s.defaultMode
	}
	return mode
}

// authorize loads id and checks that owner may act on it.
func (s *Service) authorize(ctx context.Context, owner, id string) (*jobs.Job, error) {
	job, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(job, owner); err != nil {
		return nil, err
	}
	return job, nil
}

// update runs mutate under the store guard after re-checking ownership.
func (s *Service) update(ctx context.Context, owner, id string, mutate func(*jobs.Job) error) (*jobs.Job, error) {
	return s.store.Update(ctx, id, func(job *jobs.Job) error {
		if err := checkOwner(job, owner); err != nil {
			return err
		}
		return mutate(job)
	})
}

func checkOwner(job *jobs.Job, owner string) error {
	if owner == "" || job.OwnerID == owner {
		return nil
	}
	return services.Wrap(services.ErrForbidden, "api", "authorize",
		fmt.Sprintf("job %s belongs to another owner", job.ID), nil)
}

func (s *Service) view(job *jobs.Job) JobView {
	pos, ok := s.dispatcher.Position(job.ID)
	return FromJob(job, pos, ok)
}

func (s *Service) jobLogger(ctx context.Context, id string) *slog.Logger {
	return logging.WithContext(services.WithJobID(ctx, id), s.logger)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *jobs.Job, jobs.Event) {}
func (nopNotifier) Touch(string)                                  {}

type nopObserver struct{}

func (nopObserver) JobSubmitted(jobs.TargetKind) {}
