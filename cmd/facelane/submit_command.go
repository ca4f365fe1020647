package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"facelane/internal/ipc"
	"facelane/internal/jobs"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		mode           string
		sourcePath     string
		targetPath     string
		webhookURL     string
		webhookEvents  []string
		referenceFrame int
		owner          string
		watch          bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create and queue a job from local files",
		Long: "Create a job, attach the source face and target media, and queue it in one step.\n" +
			"Paths are resolved on this host and read by the daemon.\n\n" +
			"Modes: " + modeList(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(sourcePath) == "" || strings.TrimSpace(targetPath) == "" {
				return errors.New("--source and --target are required")
			}
			source, err := filepath.Abs(sourcePath)
			if err != nil {
				return fmt.Errorf("resolve source path: %w", err)
			}
			target, err := filepath.Abs(targetPath)
			if err != nil {
				return fmt.Errorf("resolve target path: %w", err)
			}

			req := ipc.JobSubmitRequest{
				Mode:          strings.TrimSpace(mode),
				SourcePath:    source,
				TargetPath:    target,
				WebhookURL:    strings.TrimSpace(webhookURL),
				WebhookEvents: webhookEvents,
				Owner:         strings.TrimSpace(owner),
			}
			if cmd.Flags().Changed("reference-frame") {
				frame := referenceFrame
				req.ReferenceFrame = &frame
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobSubmit(req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %s queued", resp.Job.JobID)
				if resp.Job.Position != nil {
					fmt.Fprintf(out, " at position %d", *resp.Job.Position)
				}
				fmt.Fprintln(out)
				if !watch {
					return nil
				}
				return watchJob(cmd, client, resp.Job.JobID, defaultWatchInterval)
			})
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(jobs.ModePhotoVideoFast), "Processing mode")
	cmd.Flags().StringVar(&sourcePath, "source", "", "Source face image")
	cmd.Flags().StringVar(&targetPath, "target", "", "Target image or video")
	cmd.Flags().StringVar(&webhookURL, "webhook", "", "Webhook URL notified on job events")
	cmd.Flags().StringSliceVar(&webhookEvents, "events", nil, "Webhook events (queued, running, completed, failed)")
	cmd.Flags().IntVar(&referenceFrame, "reference-frame", 0, "Reference frame for video face detection")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner recorded on the job (defaults to local)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the job until it finishes")
	return cmd
}

func modeList() string {
	modes := jobs.AllModes()
	names := make([]string, 0, len(modes))
	for _, mode := range modes {
		names = append(names, string(mode))
	}
	return strings.Join(names, ", ")
}
