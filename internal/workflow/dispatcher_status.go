package workflow

import (
	"time"

	"facelane/internal/jobs"
)

// LaneStatus describes one lane at a point in time.
type LaneStatus struct {
	Kind        jobs.TargetKind
	Active      string
	ActiveSince time.Time
	ActiveFor   time.Duration
	Queued      []string
	Processed   int
	Failed      int
}

// Status is a point-in-time view of the dispatcher.
type Status struct {
	Running   bool
	LastError string
	Lanes     []LaneStatus
}

// Snapshot returns the current lane state.
func (d *Dispatcher) Snapshot() Status {
	d.mu.Lock()
	summary := Status{Running: d.running}
	if d.lastErr != nil {
		summary.LastError = d.lastErr.Error()
	}
	d.mu.Unlock()

	now := d.now()
	for _, kind := range d.order {
		ls := d.lanes[kind].snapshot()
		ls.ActiveFor = elapsedSince(ls.ActiveSince, now)
		summary.Lanes = append(summary.Lanes, ls)
	}
	return summary
}

// Position reports where id sits in its lane: 0 while running, otherwise its
// 1-based place in the queue. ok is false when the lane does not hold id.
func (d *Dispatcher) Position(id string) (int, bool) {
	if kind, ok := jobs.KindFromID(id); ok {
		if l := d.lanes[kind]; l != nil {
			return l.position(id)
		}
	}
	for _, kind := range d.order {
		if pos, ok := d.lanes[kind].position(id); ok {
			return pos, true
		}
	}
	return 0, false
}
