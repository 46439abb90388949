// Package slack handles Slack Events API callbacks.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/docscribe/internal/queue"
	"github.com/mattjoyce/docscribe/internal/webhook"
)

const (
	TimestampHeader = "X-Slack-Request-Timestamp"
	SignatureHeader = "X-Slack-Signature"

	// DefaultTolerance is the accepted clock skew for request timestamps.
	DefaultTolerance = 5 * time.Minute

	signatureVersion = "v0"
)

// Event types handled by this source.
const (
	EventURLVerification = "url_verification"
	EventCallback        = "event_callback"
	EventAppMention      = "app_mention"
	EventMessage         = "message"
)

// ReasonStaleTimestamp rejects requests outside the replay window.
const ReasonStaleTimestamp = "timestamp outside tolerance"

type Options struct {
	SigningSecret string
	Tolerance     time.Duration
	// Now overrides the clock used for the replay window.
	Now func() time.Time
}

type Handler struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
	queue     webhook.Enqueuer
}

func New(opts Options, q webhook.Enqueuer) *Handler {
	h := &Handler{
		secret:    opts.SigningSecret,
		tolerance: opts.Tolerance,
		now:       opts.Now,
		queue:     q,
	}
	if h.tolerance <= 0 {
		h.tolerance = DefaultTolerance
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// ReadSignature combines the timestamp and signature headers into
// "t={timestamp},v0={hex}".
func (h *Handler) ReadSignature(header http.Header) string {
	sig := header.Get(SignatureHeader)
	if sig == "" {
		return ""
	}
	return "t=" + header.Get(TimestampHeader) + "," + sig
}

// Sign returns the signature material for body at ts, in ReadSignature form.
func Sign(secret string, ts int64, body []byte) string {
	stamp := strconv.FormatInt(ts, 10)
	return "t=" + stamp + "," + signatureVersion + "=" + webhook.ComputeSignature(baseString(stamp, body), secret)
}

func baseString(ts string, body []byte) []byte {
	base := make([]byte, 0, len(signatureVersion)+len(ts)+len(body)+2)
	base = append(base, signatureVersion+":"+ts+":"...)
	return append(base, body...)
}

func (h *Handler) VerifySignature(payload []byte, signature string) webhook.Verification {
	if h.secret == "" {
		return webhook.Rejected(webhook.ReasonMissingSecret)
	}
	if signature == "" {
		return webhook.Rejected(webhook.ReasonMissingSignature)
	}

	ts, digest, ok := parseSignature(signature)
	if !ok {
		return webhook.Rejected(webhook.ReasonMalformedSignature)
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return webhook.Rejected(webhook.ReasonMalformedSignature)
	}

	skew := h.now().Sub(time.Unix(sec, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > h.tolerance {
		return webhook.Rejected(ReasonStaleTimestamp)
	}

	expected := webhook.ComputeSignature(baseString(ts, payload), h.secret)
	if !webhook.EqualSignatures(expected, strings.ToLower(digest)) {
		return webhook.Rejected(webhook.ReasonSignatureMismatch)
	}
	return webhook.Verified()
}

func parseSignature(signature string) (ts, digest string, ok bool) {
	for _, part := range strings.Split(signature, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return "", "", false
		}
		switch k {
		case "t":
			ts = v
		case signatureVersion:
			digest = v
		}
	}
	return ts, digest, ts != "" && digest != ""
}

type envelope struct {
	Type  string `json:"type"`
	Event struct {
		Type string `json:"type"`
	} `json:"event"`
}

// ExtractEventType returns the inner event type for event callbacks and the
// envelope type otherwise.
func (h *Handler) ExtractEventType(_ http.Header, body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return webhook.UnknownEvent
	}
	switch {
	case env.Type == EventCallback && env.Event.Type != "":
		return env.Event.Type
	case env.Type != "":
		return env.Type
	}
	return webhook.UnknownEvent
}

// MentionJob is the payload of a slack.mention job.
type MentionJob struct {
	TeamID   string `json:"team_id,omitempty"`
	EventID  string `json:"event_id,omitempty"`
	Type     string `json:"type"`
	Channel  string `json:"channel"`
	User     string `json:"user"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

func (h *Handler) ProcessEvent(ctx context.Context, eventType string, data map[string]any) (webhook.Result, error) {
	switch eventType {
	case EventURLVerification:
		return webhook.Result{"challenge": str(data, "challenge")}, nil
	case EventAppMention:
		return h.enqueueMention(ctx, eventType, data)
	case EventMessage:
		inner := object(data, "event")
		// Direct messages from people only; bot echoes and edits carry bot_id or subtype.
		if str(inner, "channel_type") == "im" && str(inner, "bot_id") == "" && str(inner, "subtype") == "" {
			return h.enqueueMention(ctx, eventType, data)
		}
	}
	return webhook.Result{"status": "ignored"}, nil
}

func (h *Handler) enqueueMention(ctx context.Context, eventType string, data map[string]any) (webhook.Result, error) {
	inner := object(data, "event")
	job := MentionJob{
		TeamID:   str(data, "team_id"),
		EventID:  str(data, "event_id"),
		Type:     eventType,
		Channel:  str(inner, "channel"),
		User:     str(inner, "user"),
		Text:     str(inner, "text"),
		TS:       str(inner, "ts"),
		ThreadTS: str(inner, "thread_ts"),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal mention payload: %w", err)
	}

	req := queue.EnqueueRequest{
		Kind:        queue.KindSlackMention,
		Payload:     payload,
		SubmittedBy: "webhook:slack",
	}
	if job.EventID != "" {
		key := "slack:" + job.EventID
		req.DedupeKey = &key
	}

	id, err := h.queue.Enqueue(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", queue.KindSlackMention, err)
	}
	return webhook.Result{"status": "queued", "job_ids": []string{id}}, nil
}

func object(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
