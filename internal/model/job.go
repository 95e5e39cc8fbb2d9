package model

import "time"

// JobStatus represents the current state of an analysis job.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusReady      JobStatus = "ready"
	JobStatusFailed     JobStatus = "failed"
)

// Job is one market discovery run tracked by the API layer.
type Job struct {
	ID        string        `json:"job_id"`
	BaseURL   string        `json:"base_url"`
	Scope     string        `json:"scope"`
	Region    string        `json:"region,omitempty"`
	Status    JobStatus     `json:"status"`
	Report    *MarketReport `json:"report,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
