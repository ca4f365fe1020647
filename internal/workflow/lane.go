package workflow

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"facelane/internal/jobs"
)

// lane is a FIFO of job ids with a single consumer.
type lane struct {
	kind   jobs.TargetKind
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	closed bool

	active       string
	activeSince  time.Time
	activeCancel context.CancelFunc
	processed    int
	failed       int
}

func newLane(kind jobs.TargetKind, logger *slog.Logger) *lane {
	l := &lane{kind: kind, logger: logger}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *lane) push(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, id)
	l.cond.Signal()
	return len(l.queue)
}

// next blocks until an id is available or the lane is closed.
func (l *lane) next() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.queue) == 0 && !l.closed {
		l.cond.Wait()
	}
	if l.closed {
		return "", false
	}
	id := l.queue[0]
	l.queue[0] = ""
	l.queue = l.queue[1:]
	return id, true
}

func (l *lane) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

func (l *lane) reopen() {
	l.mu.Lock()
	l.closed = false
	l.mu.Unlock()
}

func (l *lane) remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := slices.Index(l.queue, id)
	if idx < 0 {
		return false
	}
	l.queue = slices.Delete(l.queue, idx, idx+1)
	return true
}

func (l *lane) depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *lane) position(id string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == id {
		return 0, true
	}
	idx := slices.Index(l.queue, id)
	if idx < 0 {
		return 0, false
	}
	return idx + 1, true
}

func (l *lane) setActive(id string, cancel context.CancelFunc, since time.Time) {
	l.mu.Lock()
	l.active = id
	l.activeCancel = cancel
	l.activeSince = since
	l.mu.Unlock()
}

func (l *lane) clearActive(status jobs.Status) {
	l.mu.Lock()
	l.active = ""
	l.activeCancel = nil
	l.activeSince = time.Time{}
	l.processed++
	if status == jobs.StatusFailed {
		l.failed++
	}
	l.mu.Unlock()
}

func (l *lane) interrupt(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active != id || l.activeCancel == nil {
		return false
	}
	l.activeCancel()
	return true
}

func (l *lane) snapshot() LaneStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LaneStatus{
		Kind:        l.kind,
		Active:      l.active,
		ActiveSince: l.activeSince,
		Queued:      slices.Clone(l.queue),
		Processed:   l.processed,
		Failed:      l.failed,
	}
}
