// Package jobs owns the job record model and its persistence.
//
// A job moves through upload states (waiting_source, waiting_target, ready)
// before submission and through queued, running, and a terminal status after
// it. CanTransition encodes every permitted edge; all writers go through
// Job.Transition so no component can move a record backwards.
//
// Records are stored through the Store interface. FileStore keeps one JSON
// document per job and replaces it atomically on every save. SQLiteStore keeps
// the same document in a single-table SQLite database for deployments that
// prefer one file. Both guard every read and write with one store-wide mutex
// so concurrent lanes and API requests never lose updates.
package jobs
