// Package config loads, normalizes, and validates facelane configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads .env files, and honours the environment
// fallbacks used by existing engine deployments such as FACEFUSION_DIR and
// FACEFUSION_VIDEO_EXEC. The Config type centralizes every knob the daemon and
// CLI need so artifact directories, engine flags, and lane policy are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical lane settings, and clear validation errors.
package config
