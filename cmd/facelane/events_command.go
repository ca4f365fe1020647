package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"facelane/internal/bus"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Job lifecycle events on the message bus",
	}
	eventsCmd.AddCommand(newEventsTailCommand(ctx))
	return eventsCmd
}

func newEventsTailCommand(ctx *commandContext) *cobra.Command {
	var subject string
	var raw bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print job events published on NATS until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			url := strings.TrimSpace(cfg.Bus.NATSURL)
			if url == "" {
				return errors.New("no NATS url configured (set bus.nats_url)")
			}
			client, err := bus.Connect(url, "facelane-cli", cfg.Bus.SubjectPrefix)
			if err != nil {
				return err
			}
			defer client.Close()

			if strings.TrimSpace(subject) == "" {
				subject = client.Prefix() + ".>"
			}

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			sub, err := client.SubscribeJSON(subject, func(_ context.Context, subj string, data []byte) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(out, "%s %s\n", subj, formatEventBody(data, raw))
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
			defer func() { _ = sub.Unsubscribe() }()

			fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s (%s)\n", subject, url)
			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Subject to subscribe to (defaults to every job event)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print message bodies unmodified")
	return cmd
}

func formatEventBody(data []byte, raw bool) string {
	if raw {
		return string(data)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return string(data)
	}
	return compact.String()
}
