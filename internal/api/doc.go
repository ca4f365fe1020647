// Package api implements the client-facing job operations shared by the HTTP
// surface and the local IPC server, and the wire-format views they return.
//
// # Key Types
//
// Service: create, attach_source, attach_target, set_webhook, submit, cancel,
// get, list, subscribe, quick and result. Every call that names a job checks
// the caller's owner id first.
//
// JobView: transport representation of a job record with upload flags, result
// readiness, and queue position.
//
// StatusView: dispatcher running state, per-lane depth and active job, and
// record counts by status.
//
// # Design Notes
//
// Views use snake_case JSON tags, matching the persisted record and the
// webhook payload. Timestamps use RFC3339 with milliseconds.
//
// Submission is the only operation that talks to the engine. Its failure
// leaves the job ready so the client can retry; every later failure is
// recorded on the job by the dispatcher instead of returned here.
//
// An empty owner id denotes a trusted local caller (the CLI over the unix
// socket) and bypasses the ownership check.
package api
