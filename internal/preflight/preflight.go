package preflight

import (
	"context"
	"strings"

	"facelane/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The bus check only runs when a NATS url is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Source uploads", cfg.Paths.SourceDir),
		CheckDirectoryAccess("Target uploads", cfg.Paths.TargetDir),
		CheckDirectoryAccess("Outputs", cfg.Paths.OutputDir),
		CheckFile("Engine script", cfg.ScriptPath()),
	}
	for _, status := range CheckSystemDeps(cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Command}
		if !status.Available {
			result.Detail = status.Detail
			if status.Optional {
				result.Passed = true
				result.Detail += " (optional)"
			}
		}
		results = append(results, result)
	}
	if strings.TrimSpace(cfg.Bus.NATSURL) != "" {
		results = append(results, CheckBus(ctx, cfg.Bus.NATSURL))
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
