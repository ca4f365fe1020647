package jobs

import (
	"fmt"
	"slices"
	"strings"

	"facelane/internal/services"
)

// Event names a lifecycle transition published to observers.
type Event string

const (
	EventQueued    Event = "queued"
	EventRunning   Event = "running"
	EventCompleted Event = "completed"
	EventFailed    Event = "failed"
)

var allEvents = []Event{EventQueued, EventRunning, EventCompleted, EventFailed}

// AllEvents returns every event a webhook may subscribe to.
func AllEvents() []Event {
	return slices.Clone(allEvents)
}

// ParseEvents normalizes a webhook subscription list. An empty list selects
// every event.
func ParseEvents(values []string) ([]Event, error) {
	if len(values) == 0 {
		return AllEvents(), nil
	}
	out := make([]Event, 0, len(values))
	for _, value := range values {
		event := Event(strings.ToLower(strings.TrimSpace(value)))
		if !slices.Contains(allEvents, event) {
			return nil, services.Wrap(services.ErrValidation, "jobs", "parse events", fmt.Sprintf("unknown event %q", value), nil)
		}
		if !slices.Contains(out, event) {
			out = append(out, event)
		}
	}
	return out, nil
}

// EventForStatus maps a status to the event announcing it, if any.
func EventForStatus(status Status) (Event, bool) {
	switch status {
	case StatusQueued:
		return EventQueued, true
	case StatusRunning:
		return EventRunning, true
	case StatusCompleted:
		return EventCompleted, true
	case StatusFailed:
		return EventFailed, true
	default:
		return "", false
	}
}
