package notifications

import (
	"context"
	"time"

	"facelane/internal/jobs"
)

// Loader reads a job record.
type Loader interface {
	Load(ctx context.Context, id string) (*jobs.Job, error)
}

// Snapshot is one event-stream frame. Err is set on the final frame when the
// record could not be read.
type Snapshot struct {
	Job *jobs.Job
	Err error
}

// Watch re-reads the record every interval, or sooner when broker signals a
// change, and emits a snapshot whenever it differs from the last one sent.
// The channel closes after a terminal snapshot, a load error, or ctx
// cancellation. broker may be nil.
func Watch(ctx context.Context, loader Loader, id string, interval time.Duration, broker *Broker) <-chan Snapshot {
	if interval <= 0 {
		interval = time.Second
	}
	out := make(chan Snapshot, 1)
	var wake <-chan struct{}
	unsubscribe := func() {}
	if broker != nil {
		wake, unsubscribe = broker.Subscribe(id)
	}

	go func() {
		defer close(out)
		defer unsubscribe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last *jobs.Job
		for {
			job, err := loader.Load(ctx, id)
			if err != nil {
				if ctx.Err() == nil {
					send(ctx, out, Snapshot{Err: err})
				}
				return
			}
			if changed(last, job) {
				if !send(ctx, out, Snapshot{Job: job}) {
					return
				}
				last = job
			}
			if job.Status.IsTerminal() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-wake:
			}
		}
	}()
	return out
}

func send(ctx context.Context, out chan<- Snapshot, snap Snapshot) bool {
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func changed(prev, next *jobs.Job) bool {
	if prev == nil {
		return true
	}
	return prev.Status != next.Status ||
		prev.Stage != next.Stage ||
		prev.Progress != next.Progress ||
		prev.Error != next.Error ||
		prev.OutputPath != next.OutputPath ||
		prev.SourcePath != next.SourcePath ||
		prev.TargetPath != next.TargetPath
}
