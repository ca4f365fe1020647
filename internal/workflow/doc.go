// Package workflow runs submitted jobs through the engine.
//
// The Dispatcher owns two lanes, image and video. Each lane is a FIFO queue of
// job ids drained by exactly one goroutine, so at most one engine process per
// lane runs at any instant while the two lanes proceed independently. Enqueue
// appends and signals; it never waits for a lane slot.
//
// For every dequeued id the lane worker re-reads the record and skips it unless
// it is still queued, moves it to running, calls the Runner, and records the
// terminal outcome. Cancellation that lands while the engine runs is preserved:
// the worker never overwrites a terminal status. Panics and engine errors are
// converted into failed jobs at the job boundary so the worker loop survives.
//
// Recover restores lane state after a restart: records left running are failed
// as interrupted and queued records are re-enqueued in updated_at order.
package workflow
