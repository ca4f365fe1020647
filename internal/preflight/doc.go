// Package preflight runs readiness checks before the daemon starts and backs
// the `facelane doctor` command.
//
// Checks cover the working directories, the engine script, external binaries
// and, when configured, the NATS event bus. Each check returns a Result so
// callers can render them uniformly.
package preflight
