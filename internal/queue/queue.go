package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

type Queue struct {
	db *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue inserts a queued job and returns its id. When DedupeKey matches an
// existing job, that job's id is returned and nothing is inserted.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.Kind == "" {
		return "", fmt.Errorf("kind is empty")
	}
	if req.SubmittedBy == "" {
		return "", fmt.Errorf("submitted_by is empty")
	}

	id := uuid.NewString()
	now := formatTime(time.Now())

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = string(req.Payload)
	}

	res, err := q.db.ExecContext(ctx, `
INSERT INTO job_queue(id, kind, payload, status, attempt, max_attempts, submitted_by, dedupe_key, created_at)
VALUES(?, ?, ?, ?, 1, ?, ?, ?, ?)
ON CONFLICT DO NOTHING;
`, id, req.Kind, payload, StatusQueued, maxAttempts, req.SubmittedBy, req.DedupeKey, now)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	if n == 1 {
		return id, nil
	}
	if req.DedupeKey == nil {
		return "", fmt.Errorf("enqueue job: insert ignored without dedupe key")
	}

	var existing string
	if err := q.db.QueryRowContext(ctx, `SELECT id FROM job_queue WHERE dedupe_key = ?;`, *req.DedupeKey).Scan(&existing); err != nil {
		return "", fmt.Errorf("lookup deduplicated job: %w", err)
	}
	return existing, nil
}

// Dequeue claims the oldest queued job, optionally restricted to kinds, and
// marks it running under a fresh claim token. Returns (nil, nil) if nothing
// is claimable.
func (q *Queue) Dequeue(ctx context.Context, kinds ...string) (*Job, error) {
	nowS := formatTime(time.Now())

	args := []any{StatusQueued}
	kindFilter := ""
	if len(kinds) > 0 {
		kindFilter = " AND kind IN (" + strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",") + ")"
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	args = append(args, StatusRunning, nowS, uuid.NewString())

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM job_queue
  WHERE status = ?`+kindFilter+`
  ORDER BY created_at ASC, rowid ASC
  LIMIT 1
)
UPDATE job_queue
SET status = ?, started_at = ?, claim_token = ?
WHERE id IN (SELECT id FROM next)
RETURNING id, kind, payload, status, attempt, max_attempts, submitted_by, dedupe_key, created_at, started_at, claim_token;
`, args...)

	var (
		j          Job
		payload    sql.NullString
		dedupeKey  sql.NullString
		createdAtS string
		startedAtS sql.NullString
		statusS    string
	)
	err := row.Scan(&j.ID, &j.Kind, &payload, &statusS, &j.Attempt, &j.MaxAttempts, &j.SubmittedBy, &dedupeKey, &createdAtS, &startedAtS, &j.ClaimToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}

	j.Status = Status(statusS)
	if payload.Valid {
		j.Payload = []byte(payload.String)
	}
	if dedupeKey.Valid {
		j.DedupeKey = &dedupeKey.String
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtS)
	j.StartedAt = parseNullTime(startedAtS)
	return &j, nil
}

// Complete marks a running job terminal, stores its result and appends a row to job_log.
// claimToken must match the token handed out by the Dequeue that started the
// current attempt; a requeued and reclaimed job yields ErrStaleClaim.
func (q *Queue) Complete(ctx context.Context, jobID, claimToken string, status Status, result []byte, lastError *string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is empty")
	}
	if claimToken == "" {
		return fmt.Errorf("claim token is empty")
	}
	if status != StatusSucceeded && status != StatusFailed && status != StatusDead {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		kind        string
		current     string
		attempt     int
		submittedBy string
		createdAt   string
		token       sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
SELECT kind, status, attempt, submitted_by, created_at, claim_token
FROM job_queue
WHERE id = ?;
`, jobID).Scan(&kind, &current, &attempt, &submittedBy, &createdAt, &token)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("load job for completion: %w", err)
	}
	if Status(current) != StatusRunning {
		return ErrJobNotRunning
	}
	if token.String != claimToken {
		return ErrStaleClaim
	}

	completedAt := formatTime(time.Now())

	var resultVal any
	if len(result) > 0 {
		resultVal = string(result)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE job_queue
SET status = ?, completed_at = ?, last_error = ?, result = ?, claim_token = NULL
WHERE id = ? AND claim_token = ?;
`, status, completedAt, lastError, resultVal, jobID, claimToken); err != nil {
		return fmt.Errorf("update job completion: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO job_log(id, job_id, kind, status, attempt, submitted_by, created_at, completed_at, last_error)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, fmt.Sprintf("%s-%d", jobID, attempt), jobID, kind, status, attempt, submittedBy, createdAt, completedAt, lastError); err != nil {
		return fmt.Errorf("insert job_log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetJobByID returns the API projection of a job.
func (q *Queue) GetJobByID(ctx context.Context, jobID string) (*JobResult, error) {
	var (
		r            JobResult
		statusS      string
		payload      sql.NullString
		result       sql.NullString
		lastError    sql.NullString
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
SELECT id, kind, status, attempt, payload, result, last_error, created_at, started_at, completed_at
FROM job_queue
WHERE id = ?;
`, jobID).Scan(&r.JobID, &r.Kind, &statusS, &r.Attempt, &payload, &result, &lastError, &createdAtS, &startedAtS, &completedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	r.Status = Status(statusS)
	if payload.Valid {
		r.Payload = []byte(payload.String)
	}
	if result.Valid {
		r.Result = []byte(result.String)
	}
	if lastError.Valid {
		r.LastError = &lastError.String
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtS)
	r.StartedAt = parseNullTime(startedAtS)
	r.CompletedAt = parseNullTime(completedAtS)
	return &r, nil
}

// Depth returns the number of queued jobs.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_queue WHERE status = ?;`, StatusQueued).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// FindRunning returns running jobs, oldest claim first. A non-zero
// startedBefore restricts the result to claims older than it.
func (q *Queue) FindRunning(ctx context.Context, startedBefore time.Time) ([]*Job, error) {
	query := `
SELECT id, kind, status, attempt, max_attempts, submitted_by, started_at
FROM job_queue
WHERE status = ?`
	args := []any{StatusRunning}
	if !startedBefore.IsZero() {
		query += ` AND started_at < ?`
		args = append(args, formatTime(startedBefore))
	}
	query += ` ORDER BY started_at ASC, rowid ASC;`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find running jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job
	for rows.Next() {
		var (
			j          Job
			statusS    string
			startedAtS sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.Kind, &statusS, &j.Attempt, &j.MaxAttempts, &j.SubmittedBy, &startedAtS); err != nil {
			return nil, fmt.Errorf("scan running job: %w", err)
		}
		j.Status = Status(statusS)
		j.StartedAt = parseNullTime(startedAtS)
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find running jobs: %w", err)
	}
	return jobs, nil
}

// Requeue moves a running job back to queued with the given attempt, or to
// dead once attempt exceeds max_attempts. It returns the status written.
// A job that is no longer running yields ErrJobNotRunning.
func (q *Queue) Requeue(ctx context.Context, jobID string, attempt int, reason string) (Status, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		kind        string
		current     string
		maxAttempts int
		submittedBy string
		createdAt   string
	)
	err = tx.QueryRowContext(ctx, `
SELECT kind, status, max_attempts, submitted_by, created_at
FROM job_queue
WHERE id = ?;
`, jobID).Scan(&kind, &current, &maxAttempts, &submittedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load job for requeue: %w", err)
	}
	if Status(current) != StatusRunning {
		return "", ErrJobNotRunning
	}

	if attempt <= maxAttempts {
		if _, err := tx.ExecContext(ctx, `
UPDATE job_queue
SET status = ?, attempt = ?, started_at = NULL, claim_token = NULL, last_error = ?
WHERE id = ?;
`, StatusQueued, attempt, reason, jobID); err != nil {
			return "", fmt.Errorf("requeue job: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("commit tx: %w", err)
		}
		return StatusQueued, nil
	}

	completedAt := formatTime(time.Now())
	lastError := fmt.Sprintf("%s: max attempts (%d) reached", reason, maxAttempts)
	if _, err := tx.ExecContext(ctx, `
UPDATE job_queue
SET status = ?, attempt = ?, completed_at = ?, claim_token = NULL, last_error = ?
WHERE id = ?;
`, StatusDead, attempt, completedAt, lastError, jobID); err != nil {
		return "", fmt.Errorf("mark job dead: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO job_log(id, job_id, kind, status, attempt, submitted_by, created_at, completed_at, last_error)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, fmt.Sprintf("%s-%d", jobID, attempt), jobID, kind, StatusDead, attempt, submittedBy, createdAt, completedAt, lastError); err != nil {
		return "", fmt.Errorf("insert job_log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return StatusDead, nil
}

// PruneJobLogs deletes job_log rows completed more than retention ago.
func (q *Queue) PruneJobLogs(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-retention))
	res, err := q.db.ExecContext(ctx, `DELETE FROM job_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune job_log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune job_log: %w", err)
	}
	return n, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
