package daemonrun

import (
	"fmt"
	"log/slog"
	"time"

	"facelane/internal/api"
	"facelane/internal/bus"
	"facelane/internal/config"
	"facelane/internal/daemon"
	"facelane/internal/engine"
	"facelane/internal/jobs"
	"facelane/internal/logging"
	"facelane/internal/media"
	"facelane/internal/metrics"
	"facelane/internal/notifications"
	"facelane/internal/workflow"
)

// Runtime holds the assembled daemon and the resources it owns.
type Runtime struct {
	Daemon  *daemon.Daemon
	Store   jobs.Store
	Metrics *metrics.Registry
	Bus     *bus.Client
}

// AssembleOption adjusts assembly, mainly for tests.
type AssembleOption func(*assembleOptions)

type assembleOptions struct {
	engineOpts []engine.Option
}

// WithEngineOptions forwards options to the engine runner.
func WithEngineOptions(opts ...engine.Option) AssembleOption {
	return func(o *assembleOptions) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// Assemble wires the store, engine runner, notification fan-out, dispatcher,
// job service and daemon. A configured but unreachable event bus is logged
// and skipped; every other failure is returned.
func Assemble(cfg *config.Config, logger *slog.Logger, opts ...AssembleOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o assembleOptions
	for _, opt := range opts {
		opt(&o)
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	rt := &Runtime{Store: store, Metrics: metrics.New()}

	runner, err := engine.NewRunner(cfg, append([]engine.Option{engine.WithLogger(logger)}, o.engineOpts...)...)
	if err != nil {
		rt.Close()
		return nil, err
	}

	broker := notifications.NewBroker()
	fanoutOpts := []notifications.Option{
		notifications.WithDeliveryObserver(rt.Metrics),
		notifications.WithLogger(logger),
	}
	if cfg.Bus.NATSURL != "" {
		client, err := bus.Connect(cfg.Bus.NATSURL, "facelaned", cfg.Bus.SubjectPrefix)
		if err != nil {
			logging.WarnWithContext(logger, "event bus unavailable", "bus_connect_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check bus.nats_url or FACELANE_NATS_URL"),
				logging.String(logging.FieldImpact, "job events are not published on the bus"),
			)
		} else {
			rt.Bus = client
			fanoutOpts = append(fanoutOpts, notifications.WithPublisher(client, client.Prefix()))
		}
	}
	fanout := notifications.NewFanout(notifications.NewWebhookSender(cfg), store, broker, fanoutOpts...)

	dispatcher := workflow.NewDispatcher(store, runner, logger,
		workflow.WithNotifier(fanout),
		workflow.WithObserver(rt.Metrics),
		workflow.WithKillOnCancel(runner.KillOnCancel()),
	)

	service, err := api.NewService(store, media.NewStore(cfg), runner, dispatcher, cfg.Jobs.DefaultMode,
		api.WithNotifier(fanout),
		api.WithSubmitObserver(rt.Metrics),
		api.WithWatch(broker, time.Duration(cfg.Events.PollIntervalMillis)*time.Millisecond),
		api.WithLogger(logging.NewComponentLogger(logger, "api")),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}

	deps := daemon.Deps{
		Store:      store,
		Dispatcher: dispatcher,
		Service:    service,
		Fanout:     fanout,
		Metrics:    rt.Metrics,
	}
	if rt.Bus != nil {
		deps.BusConnected = rt.Bus.Connected
	}
	d, err := daemon.New(cfg, logger, deps)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Daemon = d
	return rt, nil
}

// Close stops the daemon and releases the store and bus connection.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if rt.Daemon != nil {
		_ = rt.Daemon.Close()
	} else if rt.Store != nil {
		_ = rt.Store.Close()
	}
	if rt.Bus != nil {
		rt.Bus.Close()
	}
}
