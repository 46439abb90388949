// Package inspect renders the history of a single job from the state
// database for operators.
package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/docscribe/internal/queue"
)

// Report is the structured JSON representation of a job report.
type Report struct {
	JobID       string          `json:"job_id"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Attempt     int             `json:"attempt"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Attempts    []Attempt       `json:"attempts"`
}

// Attempt is one terminal row from job_log.
type Attempt struct {
	Attempt     int    `json:"attempt"`
	Status      string `json:"status"`
	SubmittedBy string `json:"submitted_by"`
	CompletedAt string `json:"completed_at"`
	LastError   string `json:"last_error,omitempty"`
}

// BuildReport renders a terminal-friendly report for a job.
func BuildReport(ctx context.Context, db *sql.DB, jobID string) (string, error) {
	report, err := gatherReportData(ctx, db, jobID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Job Report\n")
	fmt.Fprintf(&out, "Job ID      : %s\n", report.JobID)
	fmt.Fprintf(&out, "Kind        : %s\n", report.Kind)
	fmt.Fprintf(&out, "Status      : %s\n", report.Status)
	fmt.Fprintf(&out, "Attempt     : %d\n", report.Attempt)
	fmt.Fprintf(&out, "Created     : %s\n", report.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&out, "Started     : %s\n", formatTime(report.StartedAt))
	fmt.Fprintf(&out, "Completed   : %s\n", formatTime(report.CompletedAt))
	if report.LastError != "" {
		fmt.Fprintf(&out, "Last error  : %s\n", report.LastError)
	}

	writeBlock(&out, "payload", report.Payload)
	writeBlock(&out, "result", report.Result)

	fmt.Fprintf(&out, "\nAttempts\n")
	if len(report.Attempts) == 0 {
		fmt.Fprintf(&out, "  <none>\n")
	}
	for _, a := range report.Attempts {
		fmt.Fprintf(&out, "  [%d] %s at %s by %s\n", a.Attempt, a.Status, a.CompletedAt, a.SubmittedBy)
		if a.LastError != "" {
			fmt.Fprintf(&out, "      error: %s\n", a.LastError)
		}
	}

	return out.String(), nil
}

// BuildJSONReport returns the machine-readable JSON report.
func BuildJSONReport(ctx context.Context, db *sql.DB, jobID string) (string, error) {
	report, err := gatherReportData(ctx, db, jobID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, db *sql.DB, jobID string) (*Report, error) {
	job, err := queue.New(db).GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		JobID:       job.JobID,
		Kind:        job.Kind,
		Status:      string(job.Status),
		Attempt:     job.Attempt,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Payload:     job.Payload,
		Result:      job.Result,
		Attempts:    []Attempt{},
	}
	if job.LastError != nil {
		report.LastError = *job.LastError
	}

	rows, err := db.QueryContext(ctx, `
SELECT attempt, status, submitted_by, completed_at, last_error
FROM job_log
WHERE job_id = ?
ORDER BY attempt ASC;
`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job_log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			a         Attempt
			lastError sql.NullString
		)
		if err := rows.Scan(&a.Attempt, &a.Status, &a.SubmittedBy, &a.CompletedAt, &lastError); err != nil {
			return nil, fmt.Errorf("scan job_log: %w", err)
		}
		a.LastError = lastError.String
		report.Attempts = append(report.Attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job_log: %w", err)
	}
	return report, nil
}

func writeBlock(out *strings.Builder, label string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", label)
	for _, line := range strings.Split(prettyJSON(raw), "\n") {
		fmt.Fprintf(out, "  %s\n", line)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "<none>"
	}
	return t.Format(time.RFC3339)
}

func prettyJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
