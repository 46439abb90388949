package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler verifies with a fixed secret and records ProcessEvent calls.
type recordingHandler struct {
	secret     string
	processErr error
	calls      []processCall
}

type processCall struct {
	eventType string
	data      map[string]any
	event     Event
}

func (h *recordingHandler) VerifySignature(payload []byte, signature string) Verification {
	return verifyHMACSignature(payload, signature, h.secret)
}

func (h *recordingHandler) ExtractEventType(header http.Header, _ []byte) string {
	if v := header.Get("X-Event"); v != "" {
		return v
	}
	return ""
}

func (h *recordingHandler) DeliveryID(header http.Header) string {
	return header.Get("X-Delivery")
}

func (h *recordingHandler) ProcessEvent(ctx context.Context, eventType string, data map[string]any) (Result, error) {
	ev, _ := EventFromContext(ctx)
	h.calls = append(h.calls, processCall{eventType: eventType, data: data, event: ev})
	if h.processErr != nil {
		return nil, h.processErr
	}
	return Result{"handled": eventType}, nil
}

func TestIngest_VerifiedPushIsProcessedOnce(t *testing.T) {
	h := &recordingHandler{secret: "s3cret"}
	body := []byte(`{"ref":"refs/heads/main","size":3}`)
	header := http.Header{}
	header.Set("X-Event", "push")
	header.Set("X-Delivery", "d-1")

	ev, res, err := Ingest(context.Background(), "github", h, header, body, "sha256="+ComputeSignature(body, "s3cret"))
	require.NoError(t, err)

	assert.Equal(t, "push", ev.Type)
	assert.Equal(t, "github", ev.Source)
	assert.Equal(t, "d-1", ev.DeliveryID)
	assert.Equal(t, Result{"handled": "push"}, res)

	require.Len(t, h.calls, 1)
	call := h.calls[0]
	assert.Equal(t, "push", call.eventType)
	assert.Equal(t, "refs/heads/main", call.data["ref"])
	assert.Equal(t, json.Number("3"), call.data["size"])
	assert.JSONEq(t, string(body), string(call.event.Raw))
	assert.Equal(t, "d-1", call.event.DeliveryID)
}

func TestIngest_RejectedBeforeParsing(t *testing.T) {
	h := &recordingHandler{secret: "s3cret"}
	// Not JSON: a parse attempt would surface ErrMalformedPayload instead.
	body := []byte(`not json at all`)

	tests := []struct {
		name      string
		signature string
		reason    string
	}{
		{"missing", "", ReasonMissingSignature},
		{"malformed", "sha256=zz", ReasonMalformedSignature},
		{"mismatch", ComputeSignature(body, "other"), ReasonSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res, err := Ingest(context.Background(), "github", h, http.Header{}, body, tt.signature)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ErrVerification))
			assert.False(t, errors.Is(err, ErrMalformedPayload))

			var verr *VerificationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.reason, verr.Reason)
		})
	}
	assert.Empty(t, h.calls)
}

func TestIngest_UnknownEventIsNotAnError(t *testing.T) {
	h := &recordingHandler{secret: "s3cret"}
	body := []byte(`{"anything":true}`)

	ev, _, err := Ingest(context.Background(), "ci", h, http.Header{}, body, ComputeSignature(body, "s3cret"))
	require.NoError(t, err)
	assert.Equal(t, UnknownEvent, ev.Type)
	require.Len(t, h.calls, 1)
	assert.Equal(t, UnknownEvent, h.calls[0].eventType)
}

func TestIngest_MalformedPayloadAfterVerification(t *testing.T) {
	for _, body := range []string{`[1,2,3]`, `"str"`, `null`, `{"a":1} {"b":2}`, `{"a":`} {
		t.Run(body, func(t *testing.T) {
			h := &recordingHandler{secret: "s3cret"}
			_, _, err := Ingest(context.Background(), "ci", h, http.Header{}, []byte(body), ComputeSignature([]byte(body), "s3cret"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPayload))
			assert.False(t, errors.Is(err, ErrVerification))
			assert.Empty(t, h.calls)
		})
	}
}

func TestIngest_EmptyBodyDecodesToEmptyObject(t *testing.T) {
	h := &recordingHandler{secret: "s3cret"}
	_, _, err := Ingest(context.Background(), "ci", h, http.Header{}, nil, ComputeSignature(nil, "s3cret"))
	require.NoError(t, err)
	require.Len(t, h.calls, 1)
	assert.Empty(t, h.calls[0].data)
	assert.NotNil(t, h.calls[0].data)
}

func TestIngest_ProcessingFailureIsWrapped(t *testing.T) {
	boom := errors.New("database unavailable")
	h := &recordingHandler{secret: "s3cret", processErr: boom}
	body := []byte(`{}`)
	header := http.Header{}
	header.Set("X-Event", "push")

	ev, res, err := Ingest(context.Background(), "github", h, header, body, ComputeSignature(body, "s3cret"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, "push", ev.Type)
	assert.True(t, errors.Is(err, boom))

	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "github", perr.Source)
	assert.Equal(t, "push", perr.EventType)
	assert.Equal(t, `process github event "push": database unavailable`, perr.Error())
}

func TestVerificationResult(t *testing.T) {
	assert.True(t, Verified().OK())
	assert.NoError(t, Verified().Err())

	r := Rejected(ReasonSignatureMismatch)
	assert.False(t, r.OK())
	assert.Equal(t, ReasonSignatureMismatch, r.Reason())
	assert.EqualError(t, r.Err(), "webhook verification failed: signature mismatch")
	assert.EqualError(t, Rejected("").Err(), "webhook verification failed")
}

func TestEventFromContext(t *testing.T) {
	_, ok := EventFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithEvent(context.Background(), Event{Source: "slack", Type: "app_mention"})
	ev, ok := EventFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "app_mention", ev.Type)
}
