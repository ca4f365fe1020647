// Package daemonctl drives the daemon process lifecycle on behalf of the CLI:
// launching a detached `facelane daemon`, waiting for its socket, stopping it
// with a SIGTERM then SIGKILL fallback, and assembling status snapshots that
// still work while the daemon is down.
package daemonctl
