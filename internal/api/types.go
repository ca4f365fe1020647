package api

import (
	"time"

	"facelane/internal/jobs"
	"facelane/internal/workflow"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobView describes a job in a transport-friendly format.
type JobView struct {
	JobID            string   `json:"job_id"`
	OwnerID          string   `json:"owner_id"`
	Mode             string   `json:"mode"`
	TargetKind       string   `json:"target_kind"`
	Status           string   `json:"status"`
	Stage            *string  `json:"stage"`
	Progress         int      `json:"progress"`
	Position         *int     `json:"position,omitempty"`
	SourceUploaded   bool     `json:"source_uploaded"`
	TargetUploaded   bool     `json:"target_uploaded"`
	ResultReady      bool     `json:"result_ready"`
	Error            string   `json:"error,omitempty"`
	WebhookURL       string   `json:"webhook_url,omitempty"`
	WebhookEvents    []string `json:"webhook_events,omitempty"`
	WebhookLastError string   `json:"webhook_last_error,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
	StartedAt        string   `json:"started_at,omitempty"`
	FinishedAt       string   `json:"finished_at,omitempty"`
}

// LaneView summarizes one dispatcher lane.
type LaneView struct {
	Lane          string   `json:"lane"`
	Busy          bool     `json:"busy"`
	ActiveJob     string   `json:"active_job,omitempty"`
	ActiveSeconds float64  `json:"active_seconds,omitempty"`
	Depth         int      `json:"depth"`
	Queued        []string `json:"queued"`
	Processed     int      `json:"processed"`
	Failed        int      `json:"failed"`
}

// StatusView summarizes dispatcher state and the record store.
type StatusView struct {
	Running   bool           `json:"running"`
	LastError string         `json:"last_error,omitempty"`
	Lanes     []LaneView     `json:"lanes"`
	Counts    map[string]int `json:"counts"`
}

// FromJob converts a record into its view. position is attached only while
// the job waits in or occupies a lane.
func FromJob(job *jobs.Job, position int, positioned bool) JobView {
	if job == nil {
		return JobView{}
	}
	view := JobView{
		JobID:            job.ID,
		OwnerID:          job.OwnerID,
		Mode:             string(job.Mode),
		TargetKind:       string(job.TargetKind),
		Status:           string(job.Status),
		Progress:         job.Progress,
		SourceUploaded:   job.SourceUploaded(),
		TargetUploaded:   job.TargetUploaded(),
		ResultReady:      job.ResultReady(),
		Error:            job.Error,
		WebhookURL:       job.WebhookURL,
		WebhookLastError: job.WebhookLastError,
		CreatedAt:        formatTime(job.CreatedAt),
		UpdatedAt:        formatTime(job.UpdatedAt),
	}
	if job.Stage != "" {
		stage := job.Stage
		view.Stage = &stage
	}
	if positioned && (job.Status == jobs.StatusQueued || job.Status == jobs.StatusRunning) {
		pos := position
		view.Position = &pos
	}
	for _, event := range job.WebhookEvents {
		view.WebhookEvents = append(view.WebhookEvents, string(event))
	}
	if job.StartedAt != nil {
		view.StartedAt = formatTime(*job.StartedAt)
	}
	if job.FinishedAt != nil {
		view.FinishedAt = formatTime(*job.FinishedAt)
	}
	return view
}

// FromDispatcherStatus converts a dispatcher snapshot and status counts.
func FromDispatcherStatus(status workflow.Status, counts map[jobs.Status]int) StatusView {
	view := StatusView{
		Running:   status.Running,
		LastError: status.LastError,
		Lanes:     make([]LaneView, 0, len(status.Lanes)),
		Counts:    MergeStatusCounts(counts),
	}
	for _, lane := range status.Lanes {
		lv := LaneView{
			Lane:      string(lane.Kind),
			Busy:      lane.Active != "",
			ActiveJob: lane.Active,
			Depth:     len(lane.Queued),
			Queued:    append([]string{}, lane.Queued...),
			Processed: lane.Processed,
			Failed:    lane.Failed,
		}
		if lv.Busy {
			lv.ActiveSeconds = lane.ActiveFor.Seconds()
		}
		view.Lanes = append(view.Lanes, lv)
	}
	return view
}

// MergeStatusCounts reports every status, including those with zero jobs.
func MergeStatusCounts(counts map[jobs.Status]int) map[string]int {
	out := make(map[string]int, len(jobs.AllStatuses()))
	for _, status := range jobs.AllStatuses() {
		out[string(status)] = counts[status]
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
