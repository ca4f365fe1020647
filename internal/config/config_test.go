package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"facelane/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	dataDir := filepath.Join(tempHome, ".local", "share", "facelane")
	if cfg.Paths.DataDir != dataDir {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, dataDir)
	}
	if cfg.Paths.JobsDir != filepath.Join(dataDir, "jobs") {
		t.Fatalf("unexpected jobs dir: %q", cfg.Paths.JobsDir)
	}
	if cfg.Engine.JobsPath != filepath.Join(dataDir, "engine-jobs") {
		t.Fatalf("unexpected engine jobs path: %q", cfg.Engine.JobsPath)
	}
	if cfg.Store.SQLitePath != filepath.Join(dataDir, "jobs.db") {
		t.Fatalf("unexpected sqlite path: %q", cfg.Store.SQLitePath)
	}
	if cfg.API.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if got := cfg.Lanes.Image.ExecutionProviders; len(got) != 1 || got[0] != "cpu" {
		t.Fatalf("unexpected image providers: %v", got)
	}
	if got := cfg.Lanes.Video.ExecutionProviders; len(got) != 1 || got[0] != "cuda" {
		t.Fatalf("unexpected video providers: %v", got)
	}
	if cfg.Lanes.KillOnCancel {
		t.Fatal("expected advisory cancellation by default")
	}
	if cfg.Limits.MaxVideoMB != 60 || cfg.Limits.MaxVideoSeconds != 120 {
		t.Fatalf("unexpected limits: %+v", cfg.Limits)
	}
	if cfg.Webhook.RequestTimeout != 10 {
		t.Fatalf("unexpected webhook timeout: %d", cfg.Webhook.RequestTimeout)
	}
	if cfg.Jobs.DefaultMode != "photo_video_fast" {
		t.Fatalf("unexpected default mode: %q", cfg.Jobs.DefaultMode)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.JobsDir, cfg.Paths.SourceDir, cfg.Paths.TargetDir, cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "facelane.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Lanes struct {
			KillOnCancel bool `toml:"kill_on_cancel"`
			Video        struct {
				ExecutionProviders  []string `toml:"execution_providers"`
				VideoMemoryStrategy string   `toml:"video_memory_strategy"`
			} `toml:"video"`
		} `toml:"lanes"`
		Store struct {
			Backend string `toml:"backend"`
		} `toml:"store"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Lanes.KillOnCancel = true
	custom.Lanes.Video.ExecutionProviders = []string{"CUDA", "cpu"}
	custom.Lanes.Video.VideoMemoryStrategy = "Tolerant"
	custom.Store.Backend = "sqlite"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempDir, "data", "outputs") {
		t.Fatalf("expected output dir derived from data dir, got %q", cfg.Paths.OutputDir)
	}
	if !cfg.Lanes.KillOnCancel {
		t.Fatal("expected kill_on_cancel from file")
	}
	video := cfg.LaneSettingsFor("video")
	if strings.Join(video.ExecutionProviders, ",") != "cuda,cpu" {
		t.Fatalf("unexpected video providers: %v", video.ExecutionProviders)
	}
	if video.VideoMemoryStrategy != "tolerant" {
		t.Fatalf("unexpected memory strategy: %q", video.VideoMemoryStrategy)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Fatalf("unexpected backend: %q", cfg.Store.Backend)
	}
}

func TestEnvOverridesConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "facelane.toml")
	contents := "[api]\ntoken = \"file-token\"\n[lanes.image]\nexecution_providers = [\"cpu\"]\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("HOME", tempDir)
	t.Setenv("FACELANE_API_TOKEN", "env-token")
	t.Setenv("FACEFUSION_IMAGE_EXEC", "openvino cpu")
	t.Setenv("FACEFUSION_DIR", filepath.Join(tempDir, "ff"))
	t.Setenv("MAX_VIDEO_SECONDS", "30")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("expected token from env, got %q", cfg.API.Token)
	}
	if strings.Join(cfg.Lanes.Image.ExecutionProviders, " ") != "openvino cpu" {
		t.Errorf("expected providers from env, got %v", cfg.Lanes.Image.ExecutionProviders)
	}
	if cfg.Engine.WorkDir != filepath.Join(tempDir, "ff") {
		t.Errorf("expected work dir from env, got %q", cfg.Engine.WorkDir)
	}
	if cfg.Engine.ConfigPath != filepath.Join(tempDir, "ff", "facefusion.ini") {
		t.Errorf("expected engine config beside work dir, got %q", cfg.Engine.ConfigPath)
	}
	if cfg.Limits.MaxVideoSeconds != 30 {
		t.Errorf("expected max video seconds from env, got %d", cfg.Limits.MaxVideoSeconds)
	}
}

func TestLoadReadsDotEnvBesideConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Chdir(tempDir)
	configPath := filepath.Join(tempDir, "facelane.toml")
	if err := os.WriteFile(configPath, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, ".env"), []byte("JWT_SECRET=dotenv-secret\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.JWTSecret != "dotenv-secret" {
		t.Fatalf("expected jwt secret from .env, got %q", cfg.API.JWTSecret)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "facelane") {
		t.Fatalf("expected data dir to contain facelane, got %q", cfg.Paths.DataDir)
	}
	if cfg.Lanes.Video.VideoMemoryStrategy != "strict" {
		t.Fatalf("unexpected sample memory strategy: %q", cfg.Lanes.Video.VideoMemoryStrategy)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := config.Default()
	base.Engine.WorkDir = "/opt/ff"
	base.Engine.ConfigPath = "/opt/ff/facefusion.ini"

	cases := map[string]func(*config.Config){
		"bind":     func(c *config.Config) { c.API.Bind = "nope" },
		"jwt":      func(c *config.Config) { c.API.JWTRequired = true },
		"strategy": func(c *config.Config) { c.Lanes.Video.VideoMemoryStrategy = "reckless" },
		"mode":     func(c *config.Config) { c.Jobs.DefaultMode = "video_video" },
		"backend":  func(c *config.Config) { c.Store.Backend = "postgres" },
		"nats":     func(c *config.Config) { c.Bus.NATSURL = "localhost" },
		"format":   func(c *config.Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
