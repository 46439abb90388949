package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/docscribe/internal/events"
	"github.com/mattjoyce/docscribe/internal/queue"
)

const maxRequestBody = 1 << 20

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.jobs.Depth(r.Context())
	if err != nil {
		s.logger.Error("failed to compute queue depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute queue depth")
		return
	}

	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    depth,
		RequestCount:  s.metrics.Snapshot().RequestCount,
	}
	if s.webhooks != nil {
		resp.WebhookSources = len(s.webhooks.SourceNames())
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleMetrics serves the request metrics snapshot.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.jobs.GetJobByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("failed to retrieve job", "job_id", jobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}

	respondJSON(w, http.StatusOK, JobStatusResponse{
		JobID:       job.JobID,
		Kind:        job.Kind,
		Status:      string(job.Status),
		Attempt:     job.Attempt,
		Payload:     job.Payload,
		Result:      job.Result,
		LastError:   job.LastError,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	})
}

// handleClaimJob hands the oldest queued job to a worker. 204 means nothing
// is waiting.
func (s *Server) handleClaimJob(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := s.jobs.Dequeue(r.Context(), req.Kinds...)
	if err != nil {
		s.logger.Error("failed to claim job", "kinds", req.Kinds, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to claim job")
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.events.Publish(events.TypeJobClaimed, map[string]any{
		"job_id":  job.ID,
		"kind":    job.Kind,
		"attempt": job.Attempt,
	})
	s.logger.Info("job claimed", "job_id", job.ID, "kind", job.Kind)

	respondJSON(w, http.StatusOK, ClaimResponse{
		JobID:      job.ID,
		Kind:       job.Kind,
		Attempt:    job.Attempt,
		ClaimToken: job.ClaimToken,
		Payload:    job.Payload,
	})
}

func (s *Server) handleCompleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var req CompleteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ClaimToken == "" {
		s.writeError(w, http.StatusBadRequest, "claim_token is required")
		return
	}

	status := queue.Status(req.Status)
	switch status {
	case queue.StatusSucceeded, queue.StatusFailed, queue.StatusDead:
	default:
		s.writeError(w, http.StatusBadRequest, "status must be succeeded, failed or dead")
		return
	}
	if len(req.Result) > 0 && !json.Valid(req.Result) {
		s.writeError(w, http.StatusBadRequest, "result must be valid JSON")
		return
	}

	var lastError *string
	if req.Error != "" {
		lastError = &req.Error
	}

	err := s.jobs.Complete(r.Context(), jobID, req.ClaimToken, status, req.Result, lastError)
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, queue.ErrJobNotRunning):
		s.writeError(w, http.StatusConflict, "job is not running")
		return
	case errors.Is(err, queue.ErrStaleClaim):
		s.logger.Warn("stale job completion rejected", "job_id", jobID)
		s.writeError(w, http.StatusConflict, "claim is no longer held")
		return
	case err != nil:
		s.logger.Error("failed to complete job", "job_id", jobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to complete job")
		return
	}

	s.events.Publish(events.TypeJobCompleted, map[string]any{"job_id": jobID, "status": status})
	s.logger.Info("job completed", "job_id", jobID, "status", status)

	respondJSON(w, http.StatusOK, CompleteResponse{JobID: jobID, Status: string(status)})
}

// decodeBody decodes a JSON body; an empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
