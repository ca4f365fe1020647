package notifications

import (
	"time"

	"facelane/internal/jobs"
)

// Payload is the JSON body pushed to webhooks and published on the bus.
type Payload struct {
	Event      jobs.Event      `json:"event"`
	JobID      string          `json:"job_id"`
	Status     jobs.Status     `json:"status"`
	Stage      *string         `json:"stage"`
	Progress   int             `json:"progress"`
	Mode       jobs.Mode       `json:"mode"`
	TargetKind jobs.TargetKind `json:"target_kind"`
	OwnerID    string          `json:"owner_id"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewPayload projects a job for event.
func NewPayload(job *jobs.Job, event jobs.Event) Payload {
	p := Payload{
		Event:      event,
		JobID:      job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		Mode:       job.Mode,
		TargetKind: job.TargetKind,
		OwnerID:    job.OwnerID,
		UpdatedAt:  job.UpdatedAt.UTC(),
	}
	if job.Stage != "" {
		stage := job.Stage
		p.Stage = &stage
	}
	return p
}
