// Package notifications fans job lifecycle events out to observers.
//
// Fanout.Notify is called after every persisted transition. It wakes live
// watchers through the in-process Broker, publishes the event on the message
// bus when one is configured, and pushes a webhook when the job subscribes to
// the event. Webhook delivery runs on its own goroutine with a bounded timeout;
// failures are recorded on the job as webhook_last_error and never fail the
// job. Watch implements the polling event stream used by the API.
package notifications
