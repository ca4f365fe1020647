// Package engine drives the external face-swap CLI.
//
// ParseProgress extracts stage/percent pairs from the engine's merged output
// stream. Runner builds the fixed argument contract for the submission-time
// calls (job-create, job-add-step, job-submit) and the dispatch-time job-run
// call, streams output line by line, and maps non-zero exits to *ExitError,
// which matches services.ErrEngineExit. Runner never retries.
package engine
