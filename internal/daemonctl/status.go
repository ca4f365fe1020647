package daemonctl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"facelane/internal/config"
	"facelane/internal/deps"
	"facelane/internal/ipc"
	"facelane/internal/jobs"
	"facelane/internal/preflight"
)

// StatusLine is one rendered row of the status report.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// DependencyStatus adds a severity to a binary check.
type DependencyStatus struct {
	deps.Status
	Severity string
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// Snapshot combines daemon state with local checks.
type Snapshot struct {
	Daemon            ipc.StatusResponse
	Reachable         bool
	Counts            map[string]int
	SystemChecks      []StatusLine
	Paths             []StatusLine
	Dependencies      []DependencyStatus
	DependencySummary DependencySummary
}

// BuildStatusSnapshot collects daemon status and falls back to reading the
// job store directly when the daemon is unreachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not available")
	}
	snap := &Snapshot{Counts: map[string]int{}}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			snap.Daemon = *resp
			snap.Reachable = true
			for k, v := range resp.Counts {
				snap.Counts[k] = v
			}
		}
	}

	if !snap.Reachable {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if counts, countErr := OfflineCounts(queryCtx, cfg); countErr == nil {
			snap.Counts = counts
		}
	}

	snap.Dependencies = ResolveDependencies(cfg)
	snap.DependencySummary = BuildDependencySummary(snap.Dependencies)
	snap.SystemChecks = BuildSystemChecks(ctx, cfg, snap)
	snap.Paths = BuildPathChecks(cfg)
	return snap, nil
}

// OfflineCounts opens the configured job store and counts records by status.
func OfflineCounts(ctx context.Context, cfg *config.Config) (map[string]int, error) {
	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	list, err := store.List(ctx, jobs.ListFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, job := range list {
		counts[string(job.Status)]++
	}
	return counts, nil
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(cfg *config.Config) []DependencyStatus {
	if cfg == nil {
		return nil
	}
	checks := preflight.CheckSystemDeps(cfg)
	statuses := make([]DependencyStatus, 0, len(checks))
	for _, check := range checks {
		severity := "ok"
		if !check.Available {
			severity = "error"
			if check.Optional {
				severity = "warn"
			}
		}
		statuses = append(statuses, DependencyStatus{Status: check, Severity: severity})
	}
	return statuses
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, snap *Snapshot) []StatusLine {
	lines := make([]StatusLine, 0, 5)
	switch {
	case !snap.Reachable:
		lines = append(lines, StatusLine{Label: "Facelane", Severity: "warn", Detail: "Not running (run `facelane start`)"})
	case snap.Daemon.Running:
		lines = append(lines, StatusLine{Label: "Facelane", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", snap.Daemon.PID)})
	default:
		lines = append(lines, StatusLine{Label: "Facelane", Severity: "warn", Detail: "Process up, lanes stopped"})
	}

	if snap.Reachable && snap.Daemon.APIAddress != "" {
		api := preflight.CheckAPI(ctx, snap.Daemon.APIAddress)
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: severityFor(api.Passed, "error"), Detail: api.Detail})
	} else {
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: "info", Detail: "Configured on " + cfg.API.Bind})
	}

	script := preflight.CheckFile("Engine script", cfg.ScriptPath())
	lines = append(lines, StatusLine{Label: "Engine script", Severity: severityFor(script.Passed, "error"), Detail: script.Detail})

	switch {
	case strings.TrimSpace(cfg.Bus.NATSURL) == "":
		lines = append(lines, StatusLine{Label: "Event bus", Severity: "info", Detail: "Disabled"})
	case snap.Reachable && snap.Daemon.BusConnected:
		lines = append(lines, StatusLine{Label: "Event bus", Severity: "ok", Detail: "Connected to " + cfg.Bus.NATSURL})
	case snap.Reachable:
		lines = append(lines, StatusLine{Label: "Event bus", Severity: "warn", Detail: "Disconnected from " + cfg.Bus.NATSURL})
	default:
		lines = append(lines, StatusLine{Label: "Event bus", Severity: "info", Detail: "Configured: " + cfg.Bus.NATSURL})
	}

	auth := "Open (no token or JWT secret)"
	authSeverity := "warn"
	switch {
	case cfg.API.JWTSecret != "" && cfg.API.Token != "":
		auth, authSeverity = "API token and JWT", "ok"
	case cfg.API.JWTSecret != "":
		auth, authSeverity = "JWT", "ok"
	case cfg.API.Token != "":
		auth, authSeverity = "API token", "ok"
	}
	lines = append(lines, StatusLine{Label: "Authentication", Severity: authSeverity, Detail: auth})
	return lines
}

// BuildPathChecks resolves working directory readiness.
func BuildPathChecks(cfg *config.Config) []StatusLine {
	dirs := []struct {
		label string
		path  string
	}{
		{label: "Data", path: cfg.Paths.DataDir},
		{label: "Sources", path: cfg.Paths.SourceDir},
		{label: "Targets", path: cfg.Paths.TargetDir},
		{label: "Outputs", path: cfg.Paths.OutputDir},
	}
	lines := make([]StatusLine, 0, len(dirs))
	for _, dir := range dirs {
		result := preflight.CheckDirectoryAccess(dir.label, dir.path)
		lines = append(lines, StatusLine{Label: dir.label, Severity: severityFor(result.Passed, "error"), Detail: result.Detail})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(statuses []DependencyStatus) DependencySummary {
	if len(statuses) == 0 {
		return DependencySummary{Severity: "info", Detail: "No dependency checks configured"}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range statuses {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(statuses) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(statuses), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(statuses))
	}

	return DependencySummary{
		Total:           len(statuses),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}

func severityFor(passed bool, failure string) string {
	if passed {
		return "ok"
	}
	return failure
}
