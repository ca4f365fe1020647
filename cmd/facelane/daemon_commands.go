package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"facelane/internal/daemonctl"
	"facelane/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the facelane daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				fmt.Fprintln(stdout, result.Message)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Log level for the launched daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the facelane daemon and terminate its process",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), stopGrace(ctx))
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stopping lanes...")
			} else {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the facelane daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx, restartLogLevel),
				stopGrace(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}
			if result.WasRunning {
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Log level for the launched daemon")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, lane and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			renderStatus(cmd, snap)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(cmd *cobra.Command, snap *daemonctl.Snapshot) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	printSection := func(title string, lines []daemonctl.StatusLine) {
		for _, line := range renderSectionHeader(title, colorize) {
			fmt.Fprintln(stdout, line)
		}
		for _, line := range lines {
			fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
		}
		fmt.Fprintln(stdout)
	}

	printSection("System Status", snap.SystemChecks)
	printSection("Dependencies", dependencyLines(snap))
	printSection("Paths", snap.Paths)

	if snap.Reachable && len(snap.Daemon.Lanes) > 0 {
		for _, line := range renderSectionHeader("Lanes", colorize) {
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprint(stdout, renderTable(
			[]string{"Lane", "Busy", "Active Job", "Depth", "Processed", "Failed"},
			laneRows(snap.Daemon.Lanes),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
		))
		if snap.Daemon.LastError != "" {
			fmt.Fprintln(stdout, renderStatusLine("Last error", statusError, snap.Daemon.LastError, colorize))
		}
		fmt.Fprintln(stdout)
	}

	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(stdout, line)
	}
	rows := countRows(snap.Counts)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No jobs recorded")
		return
	}
	fmt.Fprint(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func dependencyLines(snap *daemonctl.Snapshot) []daemonctl.StatusLine {
	lines := make([]daemonctl.StatusLine, 0, len(snap.Dependencies)+1)
	lines = append(lines, daemonctl.StatusLine{
		Label:    "Summary",
		Severity: snap.DependencySummary.Severity,
		Detail:   snap.DependencySummary.Detail,
	})
	for _, dep := range snap.Dependencies {
		detail := "Ready"
		if dep.Available && dep.Command != "" {
			detail = fmt.Sprintf("Ready (command: %s)", dep.Command)
		}
		if !dep.Available {
			detail = strings.TrimSpace(dep.Detail)
			if detail == "" {
				detail = "not available"
			}
		}
		lines = append(lines, daemonctl.StatusLine{Label: dep.Name, Severity: dep.Severity, Detail: detail})
	}
	return lines
}

func laneRows(lanes []ipc.LaneView) [][]string {
	rows := make([][]string, 0, len(lanes))
	for _, lane := range lanes {
		active := "-"
		if lane.ActiveJob != "" {
			active = fmt.Sprintf("%s (%.0fs)", lane.ActiveJob, lane.ActiveSeconds)
		}
		rows = append(rows, []string{
			humanLabel(lane.Lane),
			yesNo(lane.Busy),
			active,
			strconv.Itoa(lane.Depth),
			strconv.Itoa(lane.Processed),
			strconv.Itoa(lane.Failed),
		})
	}
	return rows
}

func countRows(counts map[string]int) [][]string {
	statuses := make([]string, 0, len(counts))
	for status, count := range counts {
		if count > 0 {
			statuses = append(statuses, status)
		}
	}
	sort.Strings(statuses)
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{humanLabel(status), strconv.Itoa(counts[status])})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: logLevel, ConfigPath: ctx.configPath()}
	if ctx.socketFlag != nil {
		opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
	}
	return opts
}

// stopGrace allows in-flight webhooks and the HTTP shutdown to finish.
func stopGrace(ctx *commandContext) time.Duration {
	grace := 15 * time.Second
	if cfg := ctx.configValue(); cfg != nil {
		configured := time.Duration(cfg.API.ShutdownGrace+cfg.Webhook.RequestTimeout+2) * time.Second
		if configured > grace {
			grace = configured
		}
	}
	return grace
}
