package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"facelane/internal/ipc"
	"facelane/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage face swap jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsWatchCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var kind string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return errors.New("--limit must not be negative")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList(ipc.JobListRequest{
					Statuses: statuses,
					Kind:     strings.TrimSpace(kind),
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), resp.Jobs)
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Owner", "Mode", "Kind", "Status", "Progress", "Updated"},
					buildJobRows(resp.Jobs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by target kind (image or video)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output jobs as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobShow(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), resp.Job)
				}
				renderJobDetail(cmd.OutOrStdout(), resp.Job, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output job as JSON")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job that has not finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobCancel(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", resp.Job.JobID)
				return nil
			})
		},
	}
}

const defaultWatchInterval = time.Second

func newJobsWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				return watchJob(cmd, client, id, interval)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", defaultWatchInterval, "Polling interval")
	return cmd
}

// watchJob prints a line whenever status, stage, or progress changes.
func watchJob(cmd *cobra.Command, client *ipc.Client, id string, interval time.Duration) error {
	out := cmd.OutOrStdout()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		resp, err := client.JobShow(id)
		if err != nil {
			return err
		}
		line := jobProgressLine(resp.Job)
		if line != last {
			fmt.Fprintln(out, line)
			last = line
		}
		status := jobs.Status(resp.Job.Status)
		if status.IsTerminal() {
			if status == jobs.StatusFailed {
				return fmt.Errorf("job %s failed: %s", id, resp.Job.Error)
			}
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func jobProgressLine(job ipc.JobView) string {
	stage := ""
	if job.Stage != nil {
		stage = *job.Stage
	}
	line := fmt.Sprintf("%s %s %d%%", job.JobID, job.Status, job.Progress)
	if stage != "" {
		line += " (" + stage + ")"
	}
	if job.Position != nil {
		line += fmt.Sprintf(" position %d", *job.Position)
	}
	return line
}

func buildJobRows(list []ipc.JobView) [][]string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			job.JobID,
			job.OwnerID,
			job.Mode,
			job.TargetKind,
			humanLabel(job.Status),
			strconv.Itoa(job.Progress) + "%",
			formatTimestamp(job.UpdatedAt),
		})
	}
	return rows
}

func renderJobDetail(out io.Writer, job ipc.JobView, colorize bool) {
	status := humanLabel(job.Status)
	if colorize {
		if color := colorForJobStatus(job.Status); color != "" {
			status = color + status + ansiReset
		}
	}
	stage := "-"
	if job.Stage != nil && *job.Stage != "" {
		stage = *job.Stage
	}

	fmt.Fprintf(out, "Job:        %s\n", job.JobID)
	fmt.Fprintf(out, "Owner:      %s\n", job.OwnerID)
	fmt.Fprintf(out, "Mode:       %s\n", job.Mode)
	fmt.Fprintf(out, "Kind:       %s\n", valueOrDash(job.TargetKind))
	fmt.Fprintf(out, "Status:     %s\n", status)
	fmt.Fprintf(out, "Stage:      %s\n", stage)
	fmt.Fprintf(out, "Progress:   %d%%\n", job.Progress)
	if job.Position != nil {
		fmt.Fprintf(out, "Position:   %d\n", *job.Position)
	}
	fmt.Fprintf(out, "Uploads:    source=%s target=%s\n", yesNo(job.SourceUploaded), yesNo(job.TargetUploaded))
	fmt.Fprintf(out, "Result:     %s\n", yesNo(job.ResultReady))
	if job.WebhookURL != "" {
		fmt.Fprintf(out, "Webhook:    %s [%s]\n", job.WebhookURL, strings.Join(job.WebhookEvents, ","))
	}
	if job.WebhookLastError != "" {
		fmt.Fprintf(out, "Webhook err: %s\n", job.WebhookLastError)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", job.Error)
	}
	fmt.Fprintf(out, "Created:    %s\n", formatTimestamp(job.CreatedAt))
	fmt.Fprintf(out, "Updated:    %s\n", formatTimestamp(job.UpdatedAt))
	if job.StartedAt != "" {
		fmt.Fprintf(out, "Started:    %s\n", formatTimestamp(job.StartedAt))
	}
	if job.FinishedAt != "" {
		fmt.Fprintf(out, "Finished:   %s\n", formatTimestamp(job.FinishedAt))
	}
}

func formatTimestamp(value string) string {
	if value == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
