package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"facelane/internal/config"
	"facelane/internal/deps"
	"facelane/internal/ipc"
	"facelane/internal/logging"
	"facelane/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SocketPath overrides the IPC socket derived from the data directory.
	SocketPath string
}

// Run starts the facelane daemon and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.Development {
		cfg.Logging.Level = "debug"
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := writePIDFile(cfg.PIDPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDPath())

	rt, err := Assemble(cfg, logger)
	if err != nil {
		logger.Error("assemble runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	if err := rt.Daemon.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	socketPath := cfg.SocketPath()
	if strings.TrimSpace(opts.SocketPath) != "" {
		socketPath = opts.SocketPath
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, rt.Daemon, logger)
	if err != nil {
		logging.WarnWithContext(logger, "ipc server unavailable", "ipc_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove a stale socket or check data_dir permissions"),
			logging.String(logging.FieldImpact, "the local CLI cannot reach the daemon"),
		)
	} else {
		defer ipcServer.Close()
		ipcServer.Serve()
	}

	<-signalCtx.Done()
	logger.Info("facelane daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := preflight.CheckSystemDeps(cfg)
	attrs := []any{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("store_backend", cfg.Store.Backend),
		logging.Bool("bus_configured", strings.TrimSpace(cfg.Bus.NATSURL) != ""),
		logging.Bool("jwt_enabled", cfg.API.JWTSecret != ""),
		logging.Bool("kill_on_cancel", cfg.Lanes.KillOnCancel),
	}
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_command", status.Command),
		)
	}
	logger.Info("dependency snapshot", attrs...)

	for _, missing := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required dependency missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, missing.Description),
			logging.String(logging.FieldImpact, "jobs will fail until the dependency is installed"),
		)
	}
	if script := preflight.CheckFile("Engine script", cfg.ScriptPath()); !script.Passed {
		logging.WarnWithContext(logger, "engine script unavailable", "engine_script_missing",
			logging.String("detail", script.Detail),
			logging.String(logging.FieldErrorHint, "set engine.script to the facefusion.py path"),
			logging.String(logging.FieldImpact, "submissions are rejected by the engine"),
		)
	}
}
