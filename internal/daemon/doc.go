// Package daemon coordinates the long-running facelane process.
//
// It wires the job store, the lane dispatcher, the notification fan-out and
// the HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances. On the first start it recovers jobs left behind by a
// previous process before the lanes begin consuming.
//
// The HTTP surface is a thin translation layer over api.Service: handlers
// authenticate the caller, decode the request, call the service, and map
// classified errors to status codes. Keep job semantics in api, jobs and
// workflow; the daemon focuses on startup, shutdown, and transport.
package daemon
