package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for job records and artifacts.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	JobsDir   string `toml:"jobs_dir"`
	SourceDir string `toml:"source_dir"`
	TargetDir string `toml:"target_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// API contains the HTTP surface bind address and credentials.
type API struct {
	Bind          string `toml:"bind"`
	Token         string `toml:"token"`
	JWTSecret     string `toml:"jwt_secret"`
	JWTRequired   bool   `toml:"jwt_required"`
	MaxUploadMB   int    `toml:"max_upload_mb"`
	ShutdownGrace int    `toml:"shutdown_grace"`
}

// Engine describes how to invoke the external media-processing engine.
type Engine struct {
	Python         string `toml:"python"`
	Script         string `toml:"script"`
	WorkDir        string `toml:"work_dir"`
	JobsPath       string `toml:"jobs_path"`
	ConfigPath     string `toml:"config_path"`
	PrepareTimeout int    `toml:"prepare_timeout"`
}

// LaneSettings holds per-lane execution flags passed to the engine run call.
type LaneSettings struct {
	ExecutionProviders  []string `toml:"execution_providers"`
	VideoMemoryStrategy string   `toml:"video_memory_strategy"`
}

// Lanes contains dispatcher lane configuration.
type Lanes struct {
	Image              LaneSettings `toml:"image"`
	Video              LaneSettings `toml:"video"`
	KillOnCancel       bool         `toml:"kill_on_cancel"`
	CancelGraceSeconds int          `toml:"cancel_grace_seconds"`
}

// Limits bounds uploaded artifacts.
type Limits struct {
	MaxVideoMB      int    `toml:"max_video_mb"`
	MaxImageMB      int    `toml:"max_image_mb"`
	MaxVideoSeconds int    `toml:"max_video_seconds"`
	FFprobeBinary   string `toml:"ffprobe_binary"`
}

// Jobs contains job creation defaults.
type Jobs struct {
	DefaultMode string `toml:"default_mode"`
}

// Webhook contains outbound webhook delivery settings.
type Webhook struct {
	RequestTimeout int    `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// Events contains live subscription settings.
type Events struct {
	PollIntervalMillis int `toml:"poll_interval_ms"`
	KeepaliveSeconds   int `toml:"keepalive_seconds"`
}

// Store selects the job record backend.
type Store struct {
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

// Bus contains optional NATS event publishing settings.
type Bus struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for facelane.
//
// Configuration sections by subsystem:
//   - Paths: job record and artifact directories
//   - API: HTTP bind address and bearer credentials
//   - Engine: external engine invocation contract
//   - Lanes: per-lane execution flags and cancellation policy
//   - Limits: artifact size and duration limits
//   - Jobs: job creation defaults
//   - Webhook: outbound notification delivery
//   - Events: live subscription polling
//   - Store: job record backend
//   - Bus: optional NATS event publishing
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	API     API     `toml:"api"`
	Engine  Engine  `toml:"engine"`
	Lanes   Lanes   `toml:"lanes"`
	Limits  Limits  `toml:"limits"`
	Jobs    Jobs    `toml:"jobs"`
	Webhook Webhook `toml:"webhook"`
	Events  Events  `toml:"events"`
	Store   Store   `toml:"store"`
	Bus     Bus     `toml:"bus"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A .env file beside
// the config (or in the working directory) is loaded first so environment
// fallbacks apply. The returned config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads .env files without overriding variables already present in
// the process environment.
func loadDotEnv(configDir string) error {
	candidates := []string{filepath.Join(configDir, ".env"), ".env"}
	seen := map[string]struct{}{}
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load env file %s: %w", abs, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("facelane.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.JobsDir, c.Paths.SourceDir, c.Paths.TargetDir, c.Paths.OutputDir, c.Paths.LogDir, c.Engine.JobsPath}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "facelane.lock")
}

// SocketPath returns the unix socket used by the CLI to reach the daemon.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "facelane.sock")
}

// PIDPath returns the daemon PID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "facelane.pid")
}

// LogPath returns the daemon log file, or "" when file logging is off.
func (c *Config) LogPath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "facelane.log")
}

// ScriptPath resolves the engine entry point against the engine work dir.
func (c *Config) ScriptPath() string {
	script := c.Engine.Script
	if script == "" || filepath.IsAbs(script) || c.Engine.WorkDir == "" {
		return script
	}
	return filepath.Join(c.Engine.WorkDir, script)
}

// LaneSettingsFor returns execution settings for the named lane.
func (c *Config) LaneSettingsFor(kind string) LaneSettings {
	if kind == "video" {
		return c.Lanes.Video
	}
	return c.Lanes.Image
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
