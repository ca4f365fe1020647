// Package main hosts the facelane CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the daemon: lifecycle control, job listing and submission, status
// reports and readiness checks. It also runs the daemon itself in the
// foreground and tails job events from the NATS bus when one is configured.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through dedicated commands or flags here.
package main
