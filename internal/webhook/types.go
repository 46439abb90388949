package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mattjoyce/docscribe/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_enqueuer.go -package=mocks github.com/mattjoyce/docscribe/internal/webhook Enqueuer

// Enqueuer accepts jobs produced by webhook handlers.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
}

// UnknownEvent is the classifier returned when a request's event type cannot
// be determined.
const UnknownEvent = "unknown"

// Handler is implemented once per webhook provider.
type Handler interface {
	// VerifySignature checks signature against the raw, unparsed body.
	VerifySignature(payload []byte, signature string) Verification
	// ExtractEventType classifies the request. It returns UnknownEvent rather
	// than failing.
	ExtractEventType(header http.Header, body []byte) string
	// ProcessEvent runs the provider's business logic. Unhandled event types
	// produce a Result; only genuine failures return an error.
	ProcessEvent(ctx context.Context, eventType string, data map[string]any) (Result, error)
}

// SignatureReader is implemented by handlers whose signature material spans
// more than one header.
type SignatureReader interface {
	ReadSignature(header http.Header) string
}

// DeliveryIdentifier is implemented by handlers whose provider assigns each
// delivery a unique id.
type DeliveryIdentifier interface {
	DeliveryID(header http.Header) string
}

// Result is the structured outcome of ProcessEvent.
type Result map[string]any

// Event is a verified webhook delivery.
type Event struct {
	Source     string
	Type       string
	DeliveryID string
	Data       map[string]any
	Raw        json.RawMessage
}

type eventKey struct{}

// WithEvent attaches ev to ctx. Ingest does this before calling ProcessEvent.
func WithEvent(ctx context.Context, ev Event) context.Context {
	return context.WithValue(ctx, eventKey{}, ev)
}

// EventFromContext returns the event attached by WithEvent.
func EventFromContext(ctx context.Context) (Event, bool) {
	ev, ok := ctx.Value(eventKey{}).(Event)
	return ev, ok
}

// Common rejection reasons.
const (
	ReasonMissingSecret      = "secret not configured"
	ReasonMissingSignature   = "signature missing"
	ReasonMalformedSignature = "signature malformed"
	ReasonSignatureMismatch  = "signature mismatch"
)

// Verification is the outcome of VerifySignature: either verified or rejected
// with a reason.
type Verification struct {
	ok     bool
	reason string
}

func Verified() Verification {
	return Verification{ok: true}
}

func Rejected(reason string) Verification {
	return Verification{reason: reason}
}

func (v Verification) OK() bool { return v.ok }

func (v Verification) Reason() string { return v.reason }

// Err returns nil for a verified request and a *VerificationError otherwise.
func (v Verification) Err() error {
	if v.ok {
		return nil
	}
	return &VerificationError{Reason: v.reason}
}

var (
	ErrVerification     = errors.New("webhook verification failed")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// VerificationError reports why a request was rejected. The reason is for
// logs only and must not be sent to the client.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	if e.Reason == "" {
		return ErrVerification.Error()
	}
	return ErrVerification.Error() + ": " + e.Reason
}

func (e *VerificationError) Unwrap() error { return ErrVerification }

// ProcessingError wraps a failure returned by ProcessEvent.
type ProcessingError struct {
	Source    string
	EventType string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process %s event %q: %v", e.Source, e.EventType, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IngestResponse is the JSON body of a completed webhook request.
type IngestResponse struct {
	Source     string `json:"source"`
	EventType  string `json:"event_type"`
	DeliveryID string `json:"delivery_id,omitempty"`
	Result     Result `json:"result"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DefaultMaxBodySize is applied to sources that do not set one.
const DefaultMaxBodySize = 1048576 // 1 MB
