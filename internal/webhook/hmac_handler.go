package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mattjoyce/docscribe/internal/queue"
)

// HMACHandler accepts any provider that signs the body with a shared-secret
// HMAC-SHA256. Every verified delivery becomes one job of Kind.
type HMACHandler struct {
	secret         string
	eventHeader    string
	deliveryHeader string
	kind           string
	queue          Enqueuer
}

// HMACOptions configures an HMACHandler.
type HMACOptions struct {
	Secret string
	// EventHeader names the header carrying the event type.
	EventHeader string
	// DeliveryHeader names the header carrying a unique delivery id, used for
	// job deduplication. Optional.
	DeliveryHeader string
	// Kind is the job kind to enqueue (default queue.KindWebhookReceived).
	Kind string
}

func NewHMACHandler(opts HMACOptions, q Enqueuer) *HMACHandler {
	kind := opts.Kind
	if kind == "" {
		kind = queue.KindWebhookReceived
	}
	return &HMACHandler{
		secret:         opts.Secret,
		eventHeader:    opts.EventHeader,
		deliveryHeader: opts.DeliveryHeader,
		kind:           kind,
		queue:          q,
	}
}

func (h *HMACHandler) VerifySignature(payload []byte, signature string) Verification {
	return verifyHMACSignature(payload, signature, h.secret)
}

// ExtractEventType reads the configured event header, then falls back to a
// top-level "event" or "type" string in the body.
func (h *HMACHandler) ExtractEventType(header http.Header, body []byte) string {
	if h.eventHeader != "" {
		if v := header.Get(h.eventHeader); v != "" {
			return v
		}
	}

	var peek struct {
		Event string `json:"event"`
		Type  string `json:"type"`
	}
	if err := json.Unmarshal(body, &peek); err == nil {
		if peek.Event != "" {
			return peek.Event
		}
		if peek.Type != "" {
			return peek.Type
		}
	}
	return UnknownEvent
}

func (h *HMACHandler) DeliveryID(header http.Header) string {
	if h.deliveryHeader == "" {
		return ""
	}
	return header.Get(h.deliveryHeader)
}

type receivedPayload struct {
	Source     string          `json:"source"`
	EventType  string          `json:"event_type"`
	DeliveryID string          `json:"delivery_id,omitempty"`
	Body       json.RawMessage `json:"body"`
}

func (h *HMACHandler) ProcessEvent(ctx context.Context, eventType string, data map[string]any) (Result, error) {
	ev, _ := EventFromContext(ctx)

	body := ev.Raw
	if len(body) == 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal event data: %w", err)
		}
		body = raw
	}

	payload, err := json.Marshal(receivedPayload{
		Source:     ev.Source,
		EventType:  eventType,
		DeliveryID: ev.DeliveryID,
		Body:       body,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	req := queue.EnqueueRequest{
		Kind:        h.kind,
		Payload:     payload,
		SubmittedBy: "webhook:" + ev.Source,
	}
	if ev.DeliveryID != "" {
		key := ev.Source + ":" + ev.DeliveryID
		req.DedupeKey = &key
	}

	jobID, err := h.queue.Enqueue(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", h.kind, err)
	}
	return Result{"status": "queued", "job_ids": []string{jobID}}, nil
}
