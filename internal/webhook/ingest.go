package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Ingest verifies, classifies and processes one delivery for source.
//
// The signature is checked before the body is parsed; a rejected request
// returns a *VerificationError and h.ProcessEvent is not called. A verified
// body that is not a JSON object returns ErrMalformedPayload. Errors from
// ProcessEvent are wrapped in *ProcessingError.
func Ingest(ctx context.Context, source string, h Handler, header http.Header, body []byte, signature string) (Event, Result, error) {
	if v := h.VerifySignature(body, signature); !v.OK() {
		return Event{Source: source}, nil, v.Err()
	}

	ev := Event{
		Source: source,
		Type:   h.ExtractEventType(header, body),
		Raw:    json.RawMessage(body),
	}
	if ev.Type == "" {
		ev.Type = UnknownEvent
	}
	if d, ok := h.(DeliveryIdentifier); ok {
		ev.DeliveryID = d.DeliveryID(header)
	}

	data, err := decodeObject(body)
	if err != nil {
		return ev, nil, err
	}
	ev.Data = data

	res, err := h.ProcessEvent(WithEvent(ctx, ev), ev.Type, data)
	if err != nil {
		return ev, nil, &ProcessingError{Source: source, EventType: ev.Type, Err: err}
	}
	if res == nil {
		res = Result{}
	}
	return ev, res, nil
}

// decodeObject parses body as a single JSON object. An empty body decodes to
// an empty map.
func decodeObject(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}
	return obj, nil
}
