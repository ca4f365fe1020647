package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{"-c", "/tmp/facelane.toml", "--socket", "/tmp/f.sock", "--log-level", "debug"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if flags.configPath != "/tmp/facelane.toml" || flags.socketPath != "/tmp/f.sock" || flags.logLevel != "debug" {
		t.Fatalf("unexpected flags %+v", flags)
	}
}

func TestParseFlagsRejectsPositional(t *testing.T) {
	if _, err := parseFlags([]string{"extra"}, io.Discard); err == nil {
		t.Fatal("expected positional argument error")
	}
}

func TestParseFlagsHelp(t *testing.T) {
	_, err := parseFlags([]string{"--help"}, io.Discard)
	if !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
}

func TestRunReportsInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nformat = \"xml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	err := run(context.Background(), []string{"--config", path}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected load config error, got %v", err)
	}
}
