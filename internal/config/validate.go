package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

var (
	validMemoryStrategies = []string{"strict", "moderate", "tolerant"}
	validModes            = []string{"photo_video_fast", "photo_video_quality", "photo_photo_gpen", "photo_photo_codeformer"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateLanes(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAPI() error {
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind must be host:port: %w", err)
	}
	if c.API.JWTRequired && c.API.JWTSecret == "" {
		return errors.New("api.jwt_secret must be set when api.jwt_required is true (or set JWT_SECRET)")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.WorkDir == "" {
		return errors.New("engine.work_dir must be set (or set FACEFUSION_DIR)")
	}
	if c.Engine.ConfigPath == "" {
		return errors.New("engine.config_path must be set")
	}
	return nil
}

func (c *Config) validateLanes() error {
	for name, settings := range map[string]LaneSettings{"image": c.Lanes.Image, "video": c.Lanes.Video} {
		if !slices.Contains(validMemoryStrategies, settings.VideoMemoryStrategy) {
			return fmt.Errorf("lanes.%s.video_memory_strategy must be one of %s", name, strings.Join(validMemoryStrategies, ", "))
		}
	}
	return nil
}

func (c *Config) validateJobs() error {
	if !slices.Contains(validModes, c.Jobs.DefaultMode) {
		return fmt.Errorf("jobs.default_mode must be one of %s", strings.Join(validModes, ", "))
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case storeBackendFile, storeBackendSQLite:
		return nil
	default:
		return fmt.Errorf("store.backend must be %q or %q", storeBackendFile, storeBackendSQLite)
	}
}

func (c *Config) validateBus() error {
	if c.Bus.NATSURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Bus.NATSURL)
	if err != nil || parsed.Scheme == "" {
		return errors.New("bus.nats_url must be a URL such as nats://127.0.0.1:4222")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return errors.New("logging.format must be console or json")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.New("logging.level must be debug, info, warn, or error")
	}
	return nil
}
