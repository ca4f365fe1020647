// Package services defines shared utilities consumed by the dispatcher, the
// client-facing job service, and the daemon transports.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, lanes, owners, and correlation
//     identifiers for logging and authorization.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is (not found, validation, oversize, engine exit).
//
// Use these helpers when wiring new components so error classification and
// observability stay uniform across the daemon.
package services
