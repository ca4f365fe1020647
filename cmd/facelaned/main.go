package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"facelane/internal/config"
	"facelane/internal/daemonrun"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("facelaned: %v", err)
	}
}

type daemonFlags struct {
	configPath string
	socketPath string
	logLevel   string
}

func parseFlags(args []string, output io.Writer) (daemonFlags, error) {
	var flags daemonFlags
	fs := pflag.NewFlagSet("facelaned", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	fs.StringVar(&flags.socketPath, "socket", "", "IPC socket path (defaults to the data directory)")
	fs.StringVar(&flags.logLevel, "log-level", "", "Override the configured log level")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if fs.NArg() > 0 {
		return flags, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return flags, nil
}

func run(ctx context.Context, args []string, output io.Writer) error {
	flags, err := parseFlags(args, output)
	if err != nil {
		return err
	}
	cfg, _, _, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	return daemonrun.Run(ctx, cfg, daemonrun.Options{
		LogLevel:   flags.logLevel,
		SocketPath: flags.socketPath,
	})
}
