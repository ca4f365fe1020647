package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"facelane/internal/engine"
	"facelane/internal/jobs"
	"facelane/internal/logging"
)

// Runner executes one prepared job and blocks until the engine exits.
type Runner interface {
	Run(ctx context.Context, jobID string, kind jobs.TargetKind, onProgress func(engine.Progress)) error
}

// Notifier receives every persisted lifecycle transition. Touch signals that a
// record changed without a lifecycle event (progress updates).
type Notifier interface {
	Notify(ctx context.Context, job *jobs.Job, event jobs.Event)
	Touch(jobID string)
}

// Observer receives lane metrics.
type Observer interface {
	QueueDepth(kind jobs.TargetKind, depth int)
	JobStarted(kind jobs.TargetKind)
	JobFinished(kind jobs.TargetKind, status jobs.Status, elapsed time.Duration)
}

// Option configures optional Dispatcher behaviour.
type Option func(*Dispatcher)

// WithNotifier sets the lifecycle notifier.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithKillOnCancel makes Cancel terminate the engine of a running job.
func WithKillOnCancel(enabled bool) Option {
	return func(d *Dispatcher) {
		d.killOnCancel = enabled
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.clock = now
		}
	}
}

// Dispatcher serializes job execution per lane.
type Dispatcher struct {
	store        jobs.Store
	runner       Runner
	notifier     Notifier
	observer     Observer
	logger       *slog.Logger
	clock        func() time.Time
	killOnCancel bool

	lanes map[jobs.TargetKind]*lane
	order []jobs.TargetKind

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewDispatcher constructs a dispatcher with one lane per target kind.
func NewDispatcher(store jobs.Store, runner Runner, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Dispatcher{
		store:    store,
		runner:   runner,
		notifier: nopNotifier{},
		observer: nopObserver{},
		logger:   logger.With(logging.String(logging.FieldComponent, "dispatcher")),
		clock:    time.Now,
		lanes:    make(map[jobs.TargetKind]*lane),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, kind := range jobs.Kinds() {
		d.lanes[kind] = newLane(kind, d.logger.With(logging.Lane(string(kind))))
		d.order = append(d.order, kind)
	}
	return d
}

// Start launches one worker goroutine per lane.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.store == nil || d.runner == nil {
		return errors.New("dispatcher requires a store and a runner")
	}
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("dispatcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	lanes := make([]*lane, 0, len(d.order))
	for _, kind := range d.order {
		l := d.lanes[kind]
		l.reopen()
		lanes = append(lanes, l)
	}
	d.wg.Add(len(lanes) + 1)
	d.mu.Unlock()

	for _, l := range lanes {
		go d.runLane(runCtx, l)
	}
	go func() {
		defer d.wg.Done()
		<-runCtx.Done()
		for _, l := range lanes {
			l.close()
		}
	}()
	d.logger.Info("dispatcher started", logging.Int("lanes", len(lanes)))
	return nil
}

// Stop wakes the lane workers, interrupts running engines and waits for the
// workers to exit. Queued ids stay queued in the store for Recover.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Running reports whether the lane workers are active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Enqueue appends a job id to the lane for kind. It never blocks on the lane.
func (d *Dispatcher) Enqueue(kind jobs.TargetKind, id string) error {
	l, ok := d.lanes[kind]
	if !ok {
		return fmt.Errorf("enqueue %s: unknown lane %q", id, kind)
	}
	depth := l.push(id)
	d.observer.QueueDepth(kind, depth)
	l.logger.Debug("job enqueued", logging.JobID(id), logging.Int("queue_depth", depth))
	return nil
}

// Cancel drops a queued id from its lane and, when kill-on-cancel is enabled,
// terminates the engine of the running job. It reports whether a running
// engine was signalled. The caller is responsible for persisting the
// cancelled status first.
func (d *Dispatcher) Cancel(id string) bool {
	for _, kind := range d.order {
		l := d.lanes[kind]
		if l.remove(id) {
			d.observer.QueueDepth(kind, l.depth())
			return false
		}
		if d.killOnCancel && l.interrupt(id) {
			l.logger.Info("engine termination requested", logging.JobID(id))
			return true
		}
	}
	return false
}

func (d *Dispatcher) runLane(ctx context.Context, l *lane) {
	defer d.wg.Done()
	for {
		id, ok := l.next()
		if !ok {
			return
		}
		d.observer.QueueDepth(l.kind, l.depth())
		d.process(ctx, l, id)
		if ctx.Err() != nil {
			return
		}
	}
}

func (d *Dispatcher) now() time.Time {
	return d.clock().UTC()
}

func (d *Dispatcher) setLastError(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *jobs.Job, jobs.Event) {}
func (nopNotifier) Touch(string)                                  {}

type nopObserver struct{}

func (nopObserver) QueueDepth(jobs.TargetKind, int)                          {}
func (nopObserver) JobStarted(jobs.TargetKind)                               {}
func (nopObserver) JobFinished(jobs.TargetKind, jobs.Status, time.Duration) {}
