package queue

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
)

// Job kinds produced by webhook sources and consumed by analysis workers.
const (
	KindCommitAnalyze   = "commit.analyze"
	KindDocsPropose     = "docs.propose"
	KindSlackMention    = "slack.mention"
	KindWebhookReceived = "webhook.received"
)

type Job struct {
	ID          string
	Kind        string
	Payload     json.RawMessage
	Status      Status
	Attempt     int
	MaxAttempts int
	SubmittedBy string
	DedupeKey   *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	// ClaimToken identifies the current claim; Complete must present it.
	ClaimToken string
}

type EnqueueRequest struct {
	Kind        string
	Payload     json.RawMessage
	MaxAttempts int
	SubmittedBy string
	// DedupeKey makes Enqueue idempotent: a second request with the same key
	// returns the first job's id.
	DedupeKey *string
}

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotRunning = errors.New("job is not running")
	ErrStaleClaim    = errors.New("claim token does not match the current claim")
)

// JobResult is a lightweight projection for API job retrieval.
type JobResult struct {
	JobID       string
	Kind        string
	Status      Status
	Attempt     int
	Payload     json.RawMessage
	Result      json.RawMessage
	LastError   *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
