package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"facelane/internal/config"
	"facelane/internal/jobs"
	"facelane/internal/logging"
	"facelane/internal/services"
)

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner invokes the engine with the fixed argument contract.
type Runner struct {
	python         string
	script         string
	workDir        string
	jobsPath       string
	configPath     string
	image          config.LaneSettings
	video          config.LaneSettings
	killOnCancel   bool
	grace          time.Duration
	prepareTimeout time.Duration
	exec           Executor
	logger         *slog.Logger
}

// NewRunner constructs a runner from configuration.
func NewRunner(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("engine runner: config required")
	}
	python := strings.TrimSpace(cfg.Engine.Python)
	if python == "" {
		return nil, errors.New("engine runner: python binary required")
	}
	r := &Runner{
		python:         python,
		script:         cfg.Engine.Script,
		workDir:        cfg.Engine.WorkDir,
		jobsPath:       cfg.Engine.JobsPath,
		configPath:     cfg.Engine.ConfigPath,
		image:          cfg.Lanes.Image,
		video:          cfg.Lanes.Video,
		killOnCancel:   cfg.Lanes.KillOnCancel,
		grace:          time.Duration(cfg.Lanes.CancelGraceSeconds) * time.Second,
		prepareTimeout: time.Duration(cfg.Engine.PrepareTimeout) * time.Second,
		exec:           commandExecutor{},
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logging.String(logging.FieldComponent, "engine"))
	return r, nil
}

// KillOnCancel reports whether cancelling a run terminates the engine.
func (r *Runner) KillOnCancel() bool { return r.killOnCancel }

// PrepareRequest carries the inputs of the submission-time calls.
type PrepareRequest struct {
	JobID          string
	SourcePath     string
	TargetPath     string
	OutputPath     string
	Models         jobs.Models
	ReferenceFrame *int
}

// Prepare registers a job with the engine: job-create, job-add-step and
// job-submit. Any failure matches services.ErrEngineExit.
func (r *Runner) Prepare(ctx context.Context, req PrepareRequest) error {
	if req.JobID == "" || req.SourcePath == "" || req.TargetPath == "" || req.OutputPath == "" {
		return services.Wrap(services.ErrValidation, "engine", "prepare", "job id and artifact paths are required", nil)
	}
	if r.prepareTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.prepareTimeout)
		defer cancel()
	}

	steps := [][]string{
		{"job-create", req.JobID, "--jobs-path", r.jobsPath},
		r.addStepArgs(req),
		{"job-submit", req.JobID, "--jobs-path", r.jobsPath},
	}
	for _, step := range steps {
		if err := r.invoke(ctx, step, nil); err != nil {
			if errors.Is(err, services.ErrEngineExit) {
				return services.Wrap(services.ErrEngineExit, "engine", step[0], "engine rejected the job", err)
			}
			return services.Wrap(services.ErrEngineExit, "engine", step[0], "engine could not be started", err)
		}
	}
	r.logger.Debug("engine job prepared", logging.JobID(req.JobID))
	return nil
}

func (r *Runner) addStepArgs(req PrepareRequest) []string {
	args := []string{
		"job-add-step", req.JobID,
		"-s", req.SourcePath,
		"-t", req.TargetPath,
		"-o", req.OutputPath,
		"--face-swapper-model", req.Models.Swapper,
		"--face-enhancer-model", req.Models.Enhancer,
		"--jobs-path", r.jobsPath,
		"--config-path", r.configPath,
	}
	if req.ReferenceFrame != nil && *req.ReferenceFrame > 0 {
		args = append(args, "--reference-frame-number", strconv.Itoa(*req.ReferenceFrame))
	}
	return args
}

// RunArgs returns the job-run arguments for a lane.
func (r *Runner) RunArgs(jobID string, kind jobs.TargetKind) []string {
	settings := r.image
	if kind == jobs.KindVideo {
		settings = r.video
	}
	args := []string{"job-run", jobID, "--jobs-path", r.jobsPath, "--config-path", r.configPath}
	if len(settings.ExecutionProviders) > 0 {
		args = append(args, "--execution-providers")
		args = append(args, settings.ExecutionProviders...)
	}
	if settings.VideoMemoryStrategy != "" {
		args = append(args, "--video-memory-strategy", settings.VideoMemoryStrategy)
	}
	return args
}

// Run executes a prepared job and blocks until the engine exits. Each parsed
// progress line is passed to onProgress. A non-zero exit returns *ExitError.
func (r *Runner) Run(ctx context.Context, jobID string, kind jobs.TargetKind, onProgress func(Progress)) error {
	logger := r.logger.With(logging.JobID(jobID), logging.Lane(string(kind)))
	logger.Info("engine run starting")
	started := time.Now()
	err := r.invoke(ctx, r.RunArgs(jobID, kind), func(line string) {
		if onProgress == nil {
			return
		}
		if update, ok := ParseProgress(line); ok {
			onProgress(update)
		}
	})
	if err != nil {
		logging.WarnWithContext(logger, "engine run failed", "engine_run_failed",
			logging.Error(err),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldErrorHint, "inspect the engine output tail in the job error"),
			logging.String(logging.FieldImpact, "job marked failed"),
		)
		return err
	}
	logger.Info("engine run finished", logging.Duration("elapsed", time.Since(started)))
	return nil
}

func (r *Runner) invoke(ctx context.Context, args []string, onLine func(string)) error {
	tail := newTailBuffer(20)
	cmd := Command{
		Binary: r.python,
		Args:   append([]string{r.script}, args...),
		Dir:    r.workDir,
		Grace:  r.grace,
	}
	err := r.exec.Run(ctx, cmd, func(line string) {
		tail.add(line)
		if onLine != nil {
			onLine(line)
		}
	})
	var exitErr *ExitError
	if errors.As(err, &exitErr) && len(exitErr.Tail) == 0 {
		exitErr.Tail = tail.snapshot()
	}
	if err != nil && !errors.As(err, &exitErr) {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return err
}
