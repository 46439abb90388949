package api

import (
	"encoding/json"
	"time"
)

// JobStatusResponse is returned by GET /jobs/{jobID}
type JobStatusResponse struct {
	JobID       string          `json:"job_id"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Attempt     int             `json:"attempt"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	LastError   *string         `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ClaimRequest is the JSON body for POST /jobs/claim. Empty Kinds claims any kind.
type ClaimRequest struct {
	Kinds []string `json:"kinds,omitempty"`
}

// ClaimResponse is returned when a job was claimed.
type ClaimResponse struct {
	JobID      string          `json:"job_id"`
	Kind       string          `json:"kind"`
	Attempt    int             `json:"attempt"`
	ClaimToken string          `json:"claim_token"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// CompleteRequest is the JSON body for POST /jobs/{jobID}/complete
type CompleteRequest struct {
	ClaimToken string          `json:"claim_token"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// CompleteResponse is returned after a job is completed.
type CompleteResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	QueueDepth     int    `json:"queue_depth"`
	RequestCount   int64  `json:"request_count"`
	WebhookSources int    `json:"webhook_sources"`
}
