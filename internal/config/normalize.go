package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// normalize fills derived defaults and applies environment overrides. Values
// from the environment win over the config file.
func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	if err := c.normalizeEngine(); err != nil {
		return err
	}
	c.normalizeLanes()
	c.normalizeLimits()
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeBus()
	c.normalizeLogging()
	if strings.TrimSpace(c.Jobs.DefaultMode) == "" {
		c.Jobs.DefaultMode = defaultMode
	}
	if value, ok := lookupTrimmed("DEFAULT_MODE"); ok {
		c.Jobs.DefaultMode = value
	}
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := lookupTrimmed("FACELANE_DATA_DIR"); ok {
		c.Paths.DataDir = value
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	fields := []struct {
		name  string
		value *string
		env   string
		leaf  string
	}{
		{"paths.jobs_dir", &c.Paths.JobsDir, "API_JOBS_PATH", "jobs"},
		{"paths.source_dir", &c.Paths.SourceDir, "FACEFUSION_SOURCES", "sources"},
		{"paths.target_dir", &c.Paths.TargetDir, "FACEFUSION_TARGETS", "targets"},
		{"paths.output_dir", &c.Paths.OutputDir, "FACEFUSION_OUTPUTS", "outputs"},
		{"paths.log_dir", &c.Paths.LogDir, "", "logs"},
	}
	for _, field := range fields {
		if field.env != "" {
			if value, ok := lookupTrimmed(field.env); ok {
				*field.value = value
			}
		}
		if strings.TrimSpace(*field.value) == "" {
			*field.value = filepath.Join(c.Paths.DataDir, field.leaf)
		}
		if *field.value, err = expandPath(*field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if value, ok := lookupTrimmed("FACELANE_API_TOKEN"); ok {
		c.API.Token = value
	} else if value, ok := lookupTrimmed("AUTH_API_KEY"); ok {
		c.API.Token = value
	}
	c.API.JWTSecret = strings.TrimSpace(c.API.JWTSecret)
	if value, ok := lookupTrimmed("JWT_SECRET"); ok {
		c.API.JWTSecret = value
	}
	if value, ok := lookupTrimmed("JWT_REQUIRED"); ok {
		c.API.JWTRequired = value != "0" && !strings.EqualFold(value, "false")
	}
	if c.API.MaxUploadMB <= 0 {
		c.API.MaxUploadMB = defaultMaxUploadMB
	}
	if c.API.ShutdownGrace <= 0 {
		c.API.ShutdownGrace = defaultShutdownGrace
	}
}

func (c *Config) normalizeEngine() error {
	if value, ok := lookupTrimmed("FACEFUSION_PYTHON"); ok {
		c.Engine.Python = value
	}
	if value, ok := lookupTrimmed("FACEFUSION_DIR"); ok {
		c.Engine.WorkDir = value
		if strings.TrimSpace(c.Engine.ConfigPath) == "" || c.Engine.ConfigPath == defaultEngineConfigPath {
			c.Engine.ConfigPath = filepath.Join(value, "facefusion.ini")
		}
	}
	if value, ok := lookupTrimmed("FACEFUSION_CONFIG"); ok {
		c.Engine.ConfigPath = value
	}
	if value, ok := lookupTrimmed("FACEFUSION_JOBS"); ok {
		c.Engine.JobsPath = value
	}
	c.Engine.Python = strings.TrimSpace(c.Engine.Python)
	if c.Engine.Python == "" {
		c.Engine.Python = defaultEnginePython
	}
	c.Engine.Script = strings.TrimSpace(c.Engine.Script)
	if c.Engine.Script == "" {
		c.Engine.Script = defaultEngineScript
	}
	if strings.TrimSpace(c.Engine.JobsPath) == "" {
		c.Engine.JobsPath = filepath.Join(c.Paths.DataDir, "engine-jobs")
	}
	var err error
	if c.Engine.WorkDir, err = expandPath(c.Engine.WorkDir); err != nil {
		return fmt.Errorf("engine.work_dir: %w", err)
	}
	if c.Engine.JobsPath, err = expandPath(c.Engine.JobsPath); err != nil {
		return fmt.Errorf("engine.jobs_path: %w", err)
	}
	if c.Engine.ConfigPath, err = expandPath(c.Engine.ConfigPath); err != nil {
		return fmt.Errorf("engine.config_path: %w", err)
	}
	if c.Engine.PrepareTimeout <= 0 {
		c.Engine.PrepareTimeout = defaultPrepareTimeout
	}
	return nil
}

func (c *Config) normalizeLanes() {
	if value, ok := lookupTrimmed("FACEFUSION_IMAGE_EXEC"); ok {
		c.Lanes.Image.ExecutionProviders = strings.Fields(value)
	}
	if value, ok := lookupTrimmed("FACEFUSION_VIDEO_EXEC"); ok {
		c.Lanes.Video.ExecutionProviders = strings.Fields(value)
	}
	if value, ok := lookupTrimmed("FACEFUSION_IMAGE_VMS"); ok {
		c.Lanes.Image.VideoMemoryStrategy = value
	}
	if value, ok := lookupTrimmed("FACEFUSION_VIDEO_VMS"); ok {
		c.Lanes.Video.VideoMemoryStrategy = value
	}
	c.Lanes.Image = normalizeLaneSettings(c.Lanes.Image, defaultImageProvider)
	c.Lanes.Video = normalizeLaneSettings(c.Lanes.Video, defaultVideoProvider)
	if c.Lanes.CancelGraceSeconds <= 0 {
		c.Lanes.CancelGraceSeconds = defaultCancelGraceSeconds
	}
}

func normalizeLaneSettings(settings LaneSettings, fallbackProvider string) LaneSettings {
	providers := make([]string, 0, len(settings.ExecutionProviders))
	for _, provider := range settings.ExecutionProviders {
		if provider = strings.ToLower(strings.TrimSpace(provider)); provider != "" {
			providers = append(providers, provider)
		}
	}
	if len(providers) == 0 {
		providers = []string{fallbackProvider}
	}
	settings.ExecutionProviders = providers
	settings.VideoMemoryStrategy = strings.ToLower(strings.TrimSpace(settings.VideoMemoryStrategy))
	if settings.VideoMemoryStrategy == "" {
		settings.VideoMemoryStrategy = defaultMemoryStrategy
	}
	return settings
}

func (c *Config) normalizeLimits() {
	if value, ok := lookupInt("MAX_VIDEO_SIZE_MB"); ok {
		c.Limits.MaxVideoMB = value
	}
	if value, ok := lookupInt("MAX_VIDEO_SECONDS"); ok {
		c.Limits.MaxVideoSeconds = value
	}
	if c.Limits.MaxVideoMB <= 0 {
		c.Limits.MaxVideoMB = defaultMaxVideoMB
	}
	if c.Limits.MaxImageMB <= 0 {
		c.Limits.MaxImageMB = defaultMaxImageMB
	}
	if c.Limits.MaxVideoSeconds <= 0 {
		c.Limits.MaxVideoSeconds = defaultMaxVideoSeconds
	}
	c.Limits.FFprobeBinary = strings.TrimSpace(c.Limits.FFprobeBinary)
	if c.Limits.FFprobeBinary == "" {
		c.Limits.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Webhook.RequestTimeout <= 0 {
		c.Webhook.RequestTimeout = defaultWebhookTimeout
	}
	if strings.TrimSpace(c.Webhook.UserAgent) == "" {
		c.Webhook.UserAgent = defaultWebhookUserAgent
	}
	if c.Events.PollIntervalMillis <= 0 {
		c.Events.PollIntervalMillis = defaultEventsPollMillis
	}
	if c.Events.KeepaliveSeconds <= 0 {
		c.Events.KeepaliveSeconds = defaultEventsKeepalive
	}
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.DataDir, "jobs.db")
	}
	var err error
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeBus() {
	c.Bus.NATSURL = strings.TrimSpace(c.Bus.NATSURL)
	if value, ok := lookupTrimmed("FACELANE_NATS_URL"); ok {
		c.Bus.NATSURL = value
	} else if value, ok := lookupTrimmed("NATS_URL"); ok {
		c.Bus.NATSURL = value
	}
	c.Bus.SubjectPrefix = strings.Trim(strings.TrimSpace(c.Bus.SubjectPrefix), ".")
	if c.Bus.SubjectPrefix == "" {
		c.Bus.SubjectPrefix = defaultBusSubjectPrefix
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func lookupInt(key string) (int, bool) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
