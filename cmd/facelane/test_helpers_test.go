package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"facelane/internal/config"
	"facelane/internal/daemonrun"
	"facelane/internal/ipc"
	"facelane/internal/logging"
	"facelane/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	runtime    *daemonrun.Runtime
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithFakeEngine())
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "facelane", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	rt, err := daemonrun.Assemble(cfg, logger)
	if err != nil {
		t.Fatalf("daemonrun.Assemble: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.DataDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, rt.Daemon, logger)
	if err != nil {
		cancel()
		rt.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		rt.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		runtime:    rt,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
jobs_dir = %q
source_dir = %q
target_dir = %q
output_dir = %q
log_dir = %q

[api]
bind = %q

[engine]
python = %q
script = %q
work_dir = %q
jobs_path = %q
config_path = %q

[events]
poll_interval_ms = 20
`,
		cfg.Paths.DataDir,
		cfg.Paths.JobsDir,
		cfg.Paths.SourceDir,
		cfg.Paths.TargetDir,
		cfg.Paths.OutputDir,
		cfg.Paths.LogDir,
		cfg.API.Bind,
		cfg.Engine.Python,
		cfg.Engine.Script,
		cfg.Engine.WorkDir,
		cfg.Engine.JobsPath,
		cfg.Engine.ConfigPath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}
