package jobs

import (
	"slices"
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusWaitingSource Status = "waiting_source"
	StatusWaitingTarget Status = "waiting_target"
	StatusReady         Status = "ready"
	StatusQueued        Status = "queued"
	StatusRunning       Status = "running"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// InterruptedReason is recorded on jobs that were running when the daemon stopped.
const InterruptedReason = "interrupted by daemon restart"

var allStatuses = []Status{
	StatusWaitingSource,
	StatusWaitingTarget,
	StatusReady,
	StatusQueued,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if slices.Contains(allStatuses, normalized) {
		return normalized, true
	}
	return "", false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsSubmitted reports whether the job has been handed to a lane.
func (s Status) IsSubmitted() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// TargetKind names the media kind of a job's target and selects its lane.
type TargetKind string

const (
	KindImage TargetKind = "image"
	KindVideo TargetKind = "video"
)

// Kinds lists the lanes in display order.
func Kinds() []TargetKind {
	return []TargetKind{KindImage, KindVideo}
}

// ParseTargetKind converts a string into a known TargetKind.
func ParseTargetKind(value string) (TargetKind, bool) {
	switch TargetKind(strings.ToLower(strings.TrimSpace(value))) {
	case KindImage:
		return KindImage, true
	case KindVideo:
		return KindVideo, true
	default:
		return "", false
	}
}

// Job is the persisted state of one transformation request.
type Job struct {
	ID                   string     `json:"job_id"`
	OwnerID              string     `json:"owner_id"`
	Mode                 Mode       `json:"mode"`
	TargetKind           TargetKind `json:"target_kind"`
	Status               Status     `json:"status"`
	Stage                string     `json:"stage,omitempty"`
	Progress             int        `json:"progress"`
	SourcePath           string     `json:"source_path,omitempty"`
	TargetPath           string     `json:"target_path,omitempty"`
	OutputPath           string     `json:"output_path,omitempty"`
	PlannedOutputPath    string     `json:"planned_output_path,omitempty"`
	ReferenceFrameNumber *int       `json:"reference_frame_number,omitempty"`
	WebhookURL           string     `json:"webhook_url,omitempty"`
	WebhookEvents        []Event    `json:"webhook_events,omitempty"`
	WebhookLastError     string     `json:"webhook_last_error,omitempty"`
	Error                string     `json:"error,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
}

// New builds a job in its initial upload state.
func New(ownerID string, mode Mode, now time.Time) *Job {
	kind := mode.TargetKind()
	return &Job{
		ID:         NewID(kind),
		OwnerID:    ownerID,
		Mode:       mode,
		TargetKind: kind,
		Status:     StatusWaitingSource,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.WebhookEvents = slices.Clone(j.WebhookEvents)
	if j.ReferenceFrameNumber != nil {
		v := *j.ReferenceFrameNumber
		cp.ReferenceFrameNumber = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		cp.StartedAt = &v
	}
	if j.FinishedAt != nil {
		v := *j.FinishedAt
		cp.FinishedAt = &v
	}
	return &cp
}

// SourceUploaded reports whether a source artifact is attached.
func (j *Job) SourceUploaded() bool { return j.SourcePath != "" }

// TargetUploaded reports whether a target artifact is attached.
func (j *Job) TargetUploaded() bool { return j.TargetPath != "" }

// ResultReady reports whether the output can be downloaded.
func (j *Job) ResultReady() bool {
	return j.Status == StatusCompleted && j.OutputPath != ""
}

// SubscribedTo reports whether the webhook should receive event.
func (j *Job) SubscribedTo(event Event) bool {
	if strings.TrimSpace(j.WebhookURL) == "" {
		return false
	}
	if len(j.WebhookEvents) == 0 {
		return true
	}
	return slices.Contains(j.WebhookEvents, event)
}
