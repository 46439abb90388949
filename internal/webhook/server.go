package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Source binds a provider Handler to a name under /webhooks/{name}.
type Source struct {
	Name    string
	Handler Handler
	// SignatureHeader is read unless Handler implements SignatureReader.
	SignatureHeader string
	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB).
	MaxBodySize int64
	// RawResponse writes the handler's Result as the response body instead
	// of wrapping it in IngestResponse.
	RawResponse bool
}

// Publisher receives one activity record per ingested delivery.
type Publisher interface {
	Publish(eventType string, data any)
}

// Config holds webhook ingress configuration.
type Config struct {
	Sources []Source
	// RequestsPerSecond per client address; zero disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	// Events is optional.
	Events Publisher
}

// Activity types sent to Publisher.
const (
	ActivityCompleted = "webhook.completed"
	ActivityRejected  = "webhook.rejected"
	ActivityFailed    = "webhook.failed"
)

// Activity is the record sent to Publisher.
type Activity struct {
	Source     string `json:"source"`
	EventType  string `json:"event_type"`
	DeliveryID string `json:"delivery_id,omitempty"`
	Outcome    string `json:"outcome"`
	Result     Result `json:"result,omitempty"`
}

// Outcome labels for docscribe_webhook_events_total.
const (
	OutcomeCompleted   = "completed"
	OutcomeRejected    = "rejected"
	OutcomeMalformed   = "malformed"
	OutcomeFailed      = "failed"
	OutcomeTooLarge    = "too_large"
	OutcomeRateLimited = "rate_limited"
)

// Server dispatches webhook requests to their source's Handler.
type Server struct {
	sources map[string]*Source
	limiter *rateLimiter
	events  *prometheus.CounterVec
	pub     Publisher
	logger  *slog.Logger
}

// New builds the ingress server. Outcome counters are registered with reg
// when it is non-nil.
func New(config Config, reg prometheus.Registerer, logger *slog.Logger) (*Server, error) {
	sources := make(map[string]*Source, len(config.Sources))
	for i := range config.Sources {
		src := config.Sources[i]
		if src.Name == "" {
			return nil, fmt.Errorf("webhook source %d: name is empty", i)
		}
		if src.Handler == nil {
			return nil, fmt.Errorf("webhook source %q: handler is nil", src.Name)
		}
		if _, dup := sources[src.Name]; dup {
			return nil, fmt.Errorf("webhook source %q: duplicate name", src.Name)
		}
		if src.MaxBodySize <= 0 {
			src.MaxBodySize = DefaultMaxBodySize
		}
		sources[src.Name] = &src
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docscribe_webhook_events_total",
		Help: "Webhook deliveries by source, event type and outcome.",
	}, []string{"source", "event_type", "outcome"})
	if reg != nil {
		if err := reg.Register(events); err != nil {
			return nil, fmt.Errorf("register webhook metrics: %w", err)
		}
	}

	return &Server{
		sources: sources,
		limiter: newRateLimiter(config.RequestsPerSecond, config.Burst),
		events:  events,
		pub:     config.Events,
		logger:  logger,
	}, nil
}

// Routes returns a router serving POST /{source}. Mount it under /webhooks.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/{source}", s.handleWebhook)
	return r
}

// SourceNames lists the configured sources.
func (s *Server) SourceNames() []string {
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	return names
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	src, ok := s.sources[name]
	if !ok {
		s.respondError(w, http.StatusNotFound, "webhook source not found")
		return
	}

	if peer := clientKey(r); !s.limiter.allow(peer) {
		s.logger.Warn("webhook rate limit exceeded", "source", name, "peer", peer, "remote_addr", r.RemoteAddr)
		s.count(name, UnknownEvent, OutcomeRateLimited)
		s.respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, src.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > src.MaxBodySize {
		s.count(name, UnknownEvent, OutcomeTooLarge)
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	var signature string
	if sr, ok := src.Handler.(SignatureReader); ok {
		signature = sr.ReadSignature(r.Header)
	} else {
		signature = r.Header.Get(src.SignatureHeader)
	}

	ev, result, err := Ingest(r.Context(), name, src.Handler, r.Header, body, signature)
	if err != nil {
		s.handleIngestError(w, r, ev, err)
		return
	}

	s.count(name, ev.Type, OutcomeCompleted)
	s.publish(ActivityCompleted, Activity{
		Source:     name,
		EventType:  ev.Type,
		DeliveryID: ev.DeliveryID,
		Outcome:    OutcomeCompleted,
		Result:     result,
	})
	s.logger.Info("webhook processed",
		"source", name,
		"event_type", ev.Type,
		"delivery_id", ev.DeliveryID,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if src.RawResponse {
		s.respondJSON(w, http.StatusOK, result)
		return
	}
	s.respondJSON(w, http.StatusOK, IngestResponse{
		Source:     name,
		EventType:  ev.Type,
		DeliveryID: ev.DeliveryID,
		Result:     result,
	})
}

func (s *Server) handleIngestError(w http.ResponseWriter, r *http.Request, ev Event, err error) {
	var (
		verr *VerificationError
		perr *ProcessingError
	)
	switch {
	case errors.As(err, &verr):
		s.logger.Warn("webhook signature verification failed",
			"source", ev.Source,
			"reason", verr.Reason,
			"remote_addr", r.RemoteAddr,
		)
		s.count(ev.Source, UnknownEvent, OutcomeRejected)
		s.publish(ActivityRejected, Activity{Source: ev.Source, EventType: UnknownEvent, Outcome: OutcomeRejected})
		s.respondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrMalformedPayload):
		s.logger.Warn("webhook payload malformed", "source", ev.Source, "event_type", ev.Type, "error", err)
		s.count(ev.Source, ev.Type, OutcomeMalformed)
		s.publish(ActivityFailed, Activity{Source: ev.Source, EventType: ev.Type, DeliveryID: ev.DeliveryID, Outcome: OutcomeMalformed})
		s.respondError(w, http.StatusBadRequest, "malformed payload")
	case errors.As(err, &perr):
		s.logger.Error("webhook processing failed",
			"source", ev.Source,
			"event_type", ev.Type,
			"delivery_id", ev.DeliveryID,
			"error", perr.Err,
		)
		s.count(ev.Source, ev.Type, OutcomeFailed)
		s.publish(ActivityFailed, Activity{Source: ev.Source, EventType: ev.Type, DeliveryID: ev.DeliveryID, Outcome: OutcomeFailed})
		s.respondError(w, http.StatusInternalServerError, "processing failed")
	default:
		s.logger.Error("webhook ingest failed", "source", ev.Source, "error", err)
		s.count(ev.Source, ev.Type, OutcomeFailed)
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) count(source, eventType, outcome string) {
	s.events.WithLabelValues(source, eventType, outcome).Inc()
}

func (s *Server) publish(activity string, a Activity) {
	if s.pub != nil {
		s.pub.Publish(activity, a)
	}
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
