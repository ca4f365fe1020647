package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"facelane/internal/api"
	"facelane/internal/config"
	"facelane/internal/jobs"
	"facelane/internal/logging"
	"facelane/internal/metrics"
	"facelane/internal/notifications"
	"facelane/internal/workflow"
)

// Deps carries the components the daemon drives.
type Deps struct {
	Store      jobs.Store
	Dispatcher *workflow.Dispatcher
	Service    *api.Service
	Fanout     *notifications.Fanout
	Metrics    *metrics.Registry
	// BusConnected reports the event bus state; nil when no bus is configured.
	BusConnected func() bool
}

// Daemon coordinates the background lanes and the HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      jobs.Store
	dispatcher *workflow.Dispatcher
	service    *api.Service
	fanout     *notifications.Fanout
	metrics    *metrics.Registry
	busState   func() bool

	lockPath string
	lock     *flock.Flock
	http     *httpServer

	mu        sync.Mutex
	running   atomic.Bool
	recovered bool
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockPath     string
	StoreBackend string
	APIAddress   string
	BusEnabled   bool
	BusConnected bool
	Workflow     api.StatusView
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Dispatcher == nil || deps.Service == nil {
		return nil, errors.New("daemon requires config, store, dispatcher, and job service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		service:    deps.Service,
		fanout:     deps.Fanout,
		metrics:    deps.Metrics,
		busState:   deps.BusConnected,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}
	d.http = newHTTPServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted jobs, launches the
// lanes and begins serving the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another facelane daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if !d.recovered {
		if err := d.dispatcher.Recover(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "job recovery failed", "recovery_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the job store for unreadable records"),
				logging.String(logging.FieldImpact, "queued jobs from the previous run may not resume"),
			)
		}
		d.recovered = true
	}
	if err := d.dispatcher.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start dispatcher: %w", err)
	}
	if err := d.http.start(runCtx); err != nil {
		d.dispatcher.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("facelane daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.http.address()),
	)
	return nil
}

// Stop stops the HTTP API and the lanes, drains webhook deliveries and
// releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.http.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.dispatcher.Stop()
	if d.fanout != nil {
		grace := time.Duration(d.cfg.Webhook.RequestTimeout+1) * time.Second
		waitCtx, cancel := context.WithTimeout(context.Background(), grace)
		if err := d.fanout.Wait(waitCtx); err != nil {
			d.logger.Warn("webhook deliveries still pending at shutdown", logging.Error(err))
		}
		cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("facelane daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Service returns the job service shared with the IPC server.
func (d *Daemon) Service() *api.Service { return d.service }

// LockPath returns the single-instance lock file.
func (d *Daemon) LockPath() string { return d.lockPath }

// APIAddress returns the HTTP listener address once started.
func (d *Daemon) APIAddress() string { return d.http.address() }

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	workflowStatus, err := d.service.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockPath:     d.lockPath,
		StoreBackend: d.cfg.Store.Backend,
		APIAddress:   d.http.address(),
		BusEnabled:   d.busState != nil,
		Workflow:     workflowStatus,
	}
	if d.busState != nil {
		status.BusConnected = d.busState()
	}
	return status, nil
}
