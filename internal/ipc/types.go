package ipc

import "facelane/internal/api"

// LocalOwner owns jobs submitted through the CLI.
const LocalOwner = "local"

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the lanes and the HTTP API.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// JobView mirrors the HTTP API job DTO for internal IPC callers.
type JobView = api.JobView

// LaneView mirrors the HTTP API lane DTO.
type LaneView = api.LaneView

// StatusResponse represents combined daemon and lane status information.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LockPath     string         `json:"lock_path"`
	StoreBackend string         `json:"store_backend"`
	APIAddress   string         `json:"api_address"`
	BusEnabled   bool           `json:"bus_enabled"`
	BusConnected bool           `json:"bus_connected"`
	LastError    string         `json:"last_error"`
	Lanes        []LaneView     `json:"lanes"`
	Counts       map[string]int `json:"counts"`
}

// JobListRequest filters job listing.
type JobListRequest struct {
	Statuses []string `json:"statuses"`
	Kind     string   `json:"kind"`
	Limit    int      `json:"limit"`
}

// JobListResponse contains job entries.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobShowRequest fetches a single job by id.
type JobShowRequest struct {
	ID string `json:"id"`
}

// JobShowResponse contains a single job.
type JobShowResponse struct {
	Job JobView `json:"job"`
}

// JobCancelRequest cancels a job by id.
type JobCancelRequest struct {
	ID string `json:"id"`
}

// JobCancelResponse contains the cancelled job.
type JobCancelResponse struct {
	Job JobView `json:"job"`
}

// JobSubmitRequest creates and submits a job from files on the daemon host.
type JobSubmitRequest struct {
	Mode           string   `json:"mode"`
	SourcePath     string   `json:"source_path"`
	TargetPath     string   `json:"target_path"`
	WebhookURL     string   `json:"webhook_url"`
	WebhookEvents  []string `json:"webhook_events"`
	ReferenceFrame *int     `json:"reference_frame"`
	Owner          string   `json:"owner"`
}

// JobSubmitResponse contains the queued job.
type JobSubmitResponse struct {
	Job JobView `json:"job"`
}
