// Package github handles GitHub repository webhooks.
//
// Push events become one commit.analyze job per commit plus a docs.propose
// job for the push. Pull request activity becomes a docs.propose job. The
// X-GitHub-Delivery id deduplicates redeliveries.
package github

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v71/github"

	"github.com/mattjoyce/docscribe/internal/queue"
	"github.com/mattjoyce/docscribe/internal/webhook"
)

// Event types handled by this source.
const (
	EventPush        = "push"
	EventPullRequest = "pull_request"
	EventPing        = "ping"
)

// pullRequestActions trigger a documentation proposal.
var pullRequestActions = []string{"opened", "reopened", "synchronize", "ready_for_review"}

type Options struct {
	Secret string
	// Branches restricts push handling to these branch names. Empty means all.
	Branches []string
}

type Handler struct {
	secret   []byte
	branches []string
	queue    webhook.Enqueuer
}

func New(opts Options, q webhook.Enqueuer) *Handler {
	return &Handler{
		secret:   []byte(opts.Secret),
		branches: opts.Branches,
		queue:    q,
	}
}

// ReadSignature prefers the SHA-256 header and falls back to the legacy SHA-1 one.
func (h *Handler) ReadSignature(header http.Header) string {
	if sig := header.Get(gogithub.SHA256SignatureHeader); sig != "" {
		return sig
	}
	return header.Get(gogithub.SHA1SignatureHeader)
}

func (h *Handler) DeliveryID(header http.Header) string {
	return header.Get(gogithub.DeliveryIDHeader)
}

func (h *Handler) VerifySignature(payload []byte, signature string) webhook.Verification {
	if len(h.secret) == 0 {
		return webhook.Rejected(webhook.ReasonMissingSecret)
	}
	if signature == "" {
		return webhook.Rejected(webhook.ReasonMissingSignature)
	}
	if !wellFormed(signature) {
		return webhook.Rejected(webhook.ReasonMalformedSignature)
	}
	if err := gogithub.ValidateSignature(signature, payload, h.secret); err != nil {
		return webhook.Rejected(webhook.ReasonSignatureMismatch)
	}
	return webhook.Verified()
}

// wellFormed reports whether signature is "sha256=<64 hex>" or "sha1=<40 hex>".
func wellFormed(signature string) bool {
	algo, digest, ok := strings.Cut(signature, "=")
	if !ok {
		return false
	}
	var size int
	switch algo {
	case "sha256":
		size = 32
	case "sha1":
		size = 20
	default:
		return false
	}
	raw, err := hex.DecodeString(digest)
	return err == nil && len(raw) == size
}

// ExtractEventType reads X-GitHub-Event and falls back to the body shape.
func (h *Handler) ExtractEventType(header http.Header, body []byte) string {
	if t := header.Get(gogithub.EventTypeHeader); t != "" {
		return t
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return webhook.UnknownEvent
	}
	switch {
	case has(fields, "zen"):
		return EventPing
	case has(fields, "commits") && has(fields, "ref"):
		return EventPush
	case has(fields, "pull_request"):
		return EventPullRequest
	}
	return webhook.UnknownEvent
}

func has(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}

func (h *Handler) ProcessEvent(ctx context.Context, eventType string, data map[string]any) (webhook.Result, error) {
	switch eventType {
	case EventPing:
		return webhook.Result{"status": "pong"}, nil
	case EventPush, EventPullRequest:
	default:
		return ignored("event type " + eventType), nil
	}

	ev, _ := webhook.EventFromContext(ctx)
	raw := []byte(ev.Raw)
	if len(raw) == 0 {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal event data: %w", err)
		}
		raw = b
	}

	parsed, err := gogithub.ParseWebHook(eventType, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", webhook.ErrMalformedPayload, err)
	}

	switch e := parsed.(type) {
	case *gogithub.PushEvent:
		return h.handlePush(ctx, ev.DeliveryID, e)
	case *gogithub.PullRequestEvent:
		return h.handlePullRequest(ctx, ev.DeliveryID, e)
	}
	return ignored(fmt.Sprintf("unexpected payload %T", parsed)), nil
}

func ignored(reason string) webhook.Result {
	return webhook.Result{"status": "ignored", "reason": reason}
}

func (h *Handler) handlePush(ctx context.Context, deliveryID string, e *gogithub.PushEvent) (webhook.Result, error) {
	branch := strings.TrimPrefix(e.GetRef(), "refs/heads/")
	switch {
	case e.GetDeleted():
		return ignored("ref deleted"), nil
	case !strings.HasPrefix(e.GetRef(), "refs/heads/"):
		return ignored("not a branch"), nil
	case len(h.branches) > 0 && !slices.Contains(h.branches, branch):
		return ignored("branch " + branch + " not tracked"), nil
	case len(e.Commits) == 0:
		return ignored("no commits"), nil
	}

	repo := e.GetRepo().GetFullName()
	jobIDs := make([]string, 0, len(e.Commits)+1)
	commitIDs := make([]string, 0, len(e.Commits))

	for _, c := range e.Commits {
		payload := CommitJob{
			Repository:  repo,
			Branch:      branch,
			CommitID:    c.GetID(),
			Message:     c.GetMessage(),
			AuthorName:  c.GetAuthor().GetName(),
			AuthorEmail: c.GetAuthor().GetEmail(),
			URL:         c.GetURL(),
			Added:       c.Added,
			Modified:    c.Modified,
			Removed:     c.Removed,
			DeliveryID:  deliveryID,
		}
		if ts := c.GetTimestamp(); !ts.IsZero() {
			payload.Timestamp = ts.UTC().Format(time.RFC3339)
		}

		id, err := h.enqueue(ctx, queue.KindCommitAnalyze, payload, dedupeKey(deliveryID, "commit", c.GetID()))
		if err != nil {
			return nil, err
		}
		jobIDs = append(jobIDs, id)
		commitIDs = append(commitIDs, c.GetID())
	}

	docs := DocsJob{
		Trigger:    EventPush,
		Repository: repo,
		Branch:     branch,
		Before:     e.GetBefore(),
		After:      e.GetAfter(),
		CommitIDs:  commitIDs,
		CompareURL: e.GetCompare(),
		DeliveryID: deliveryID,
	}
	id, err := h.enqueue(ctx, queue.KindDocsPropose, docs, dedupeKey(deliveryID, "docs"))
	if err != nil {
		return nil, err
	}
	jobIDs = append(jobIDs, id)

	return webhook.Result{
		"status":  "queued",
		"commits": len(commitIDs),
		"job_ids": jobIDs,
	}, nil
}

func (h *Handler) handlePullRequest(ctx context.Context, deliveryID string, e *gogithub.PullRequestEvent) (webhook.Result, error) {
	action := e.GetAction()
	if !slices.Contains(pullRequestActions, action) {
		return ignored("action " + action), nil
	}

	pr := e.GetPullRequest()
	docs := DocsJob{
		Trigger:     EventPullRequest,
		Repository:  e.GetRepo().GetFullName(),
		Branch:      pr.GetHead().GetRef(),
		BaseBranch:  pr.GetBase().GetRef(),
		After:       pr.GetHead().GetSHA(),
		PullRequest: e.GetNumber(),
		Title:       pr.GetTitle(),
		URL:         pr.GetHTMLURL(),
		DeliveryID:  deliveryID,
	}
	id, err := h.enqueue(ctx, queue.KindDocsPropose, docs, dedupeKey(deliveryID, "docs"))
	if err != nil {
		return nil, err
	}
	return webhook.Result{"status": "queued", "job_ids": []string{id}}, nil
}

func (h *Handler) enqueue(ctx context.Context, kind string, payload any, dedupe *string) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	id, err := h.queue.Enqueue(ctx, queue.EnqueueRequest{
		Kind:        kind,
		Payload:     b,
		SubmittedBy: "webhook:github",
		DedupeKey:   dedupe,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return id, nil
}

// dedupeKey is nil without a delivery id.
func dedupeKey(deliveryID string, parts ...string) *string {
	if deliveryID == "" {
		return nil
	}
	key := "github:" + deliveryID + ":" + strings.Join(parts, ":")
	return &key
}
