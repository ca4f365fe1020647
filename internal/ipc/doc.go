// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Job
// payloads reuse api.JobView so the CLI renders the same shape the HTTP API
// returns. Calls over the socket act as the trusted local operator: they see
// every job regardless of owner.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
