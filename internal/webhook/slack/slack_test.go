package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/docscribe/internal/queue"
	"github.com/mattjoyce/docscribe/internal/webhook"
	"github.com/mattjoyce/docscribe/internal/webhook/mocks"
)

const secret = "8f742231b10e8888abcd99yyyzzz85a5"

var fixedNow = time.Unix(1_800_000_000, 0)

func newHandler(q webhook.Enqueuer) *Handler {
	return New(Options{SigningSecret: secret, Now: func() time.Time { return fixedNow }}, q)
}

func TestReadSignature(t *testing.T) {
	h := newHandler(nil)

	header := http.Header{}
	assert.Equal(t, "", h.ReadSignature(header))

	header.Set(TimestampHeader, "1531420618")
	header.Set(SignatureHeader, "v0=a2114d57b48eac39b9ad189dd8316235a7b4a8d21a10bd27519666489c69b503")
	assert.Equal(t, "t=1531420618,v0=a2114d57b48eac39b9ad189dd8316235a7b4a8d21a10bd27519666489c69b503", h.ReadSignature(header))
}

func TestVerifySignature(t *testing.T) {
	h := newHandler(nil)
	body := []byte(`{"type":"event_callback"}`)
	now := fixedNow.Unix()

	tests := []struct {
		name      string
		signature string
		reason    string
	}{
		{"valid", Sign(secret, now, body), ""},
		{"valid within skew", Sign(secret, now-240, body), ""},
		{"missing", "", webhook.ReasonMissingSignature},
		{"no timestamp", "t=,v0=abcd", webhook.ReasonMalformedSignature},
		{"no digest", "t=" + strconv.FormatInt(now, 10), webhook.ReasonMalformedSignature},
		{"garbage", "nonsense", webhook.ReasonMalformedSignature},
		{"non numeric timestamp", "t=yesterday,v0=abcd", webhook.ReasonMalformedSignature},
		{"stale", Sign(secret, now-301, body), ReasonStaleTimestamp},
		{"future", Sign(secret, now+600, body), ReasonStaleTimestamp},
		{"wrong secret", Sign("other", now, body), webhook.ReasonSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := h.VerifySignature(body, tt.signature)
			assert.Equal(t, tt.reason == "", v.OK())
			assert.Equal(t, tt.reason, v.Reason())
		})
	}

	tampered := h.VerifySignature([]byte(`{"type":"other"}`), Sign(secret, now, body))
	assert.Equal(t, webhook.ReasonSignatureMismatch, tampered.Reason())

	assert.Equal(t, webhook.ReasonMissingSecret, New(Options{}, nil).VerifySignature(body, Sign(secret, now, body)).Reason())
}

func TestExtractEventType(t *testing.T) {
	h := newHandler(nil)

	assert.Equal(t, EventURLVerification, h.ExtractEventType(nil, []byte(`{"type":"url_verification","challenge":"x"}`)))
	assert.Equal(t, EventAppMention, h.ExtractEventType(nil, []byte(`{"type":"event_callback","event":{"type":"app_mention"}}`)))
	assert.Equal(t, EventCallback, h.ExtractEventType(nil, []byte(`{"type":"event_callback"}`)))
	assert.Equal(t, webhook.UnknownEvent, h.ExtractEventType(nil, []byte(`{}`)))
	assert.Equal(t, webhook.UnknownEvent, h.ExtractEventType(nil, []byte(`payload=%7B%7D`)))
}

func ingest(t *testing.T, h *Handler, body string) (webhook.Event, webhook.Result, error) {
	t.Helper()
	header := http.Header{}
	sig := Sign(secret, fixedNow.Unix(), []byte(body))
	return webhook.Ingest(context.Background(), "slack", h, header, []byte(body), sig)
}

func TestURLVerificationReturnsChallenge(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHandler(mocks.NewMockEnqueuer(ctrl))

	_, res, err := ingest(t, h, `{"token":"x","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","type":"url_verification"}`)
	require.NoError(t, err)
	assert.Equal(t, webhook.Result{"challenge": "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}, res)
}

func TestAppMentionEnqueuesJob(t *testing.T) {
	body := `{"type":"event_callback","team_id":"T1","event_id":"Ev123",
	  "event":{"type":"app_mention","user":"U1","text":"<@B1> summarise last week","channel":"C1","ts":"1.000","thread_ts":"0.500"}}`

	ctrl := gomock.NewController(t)
	mq := mocks.NewMockEnqueuer(ctrl)
	mq.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req queue.EnqueueRequest) (string, error) {
		assert.Equal(t, queue.KindSlackMention, req.Kind)
		assert.Equal(t, "webhook:slack", req.SubmittedBy)
		require.NotNil(t, req.DedupeKey)
		assert.Equal(t, "slack:Ev123", *req.DedupeKey)

		var job MentionJob
		require.NoError(t, json.Unmarshal(req.Payload, &job))
		assert.Equal(t, MentionJob{
			TeamID:   "T1",
			EventID:  "Ev123",
			Type:     EventAppMention,
			Channel:  "C1",
			User:     "U1",
			Text:     "<@B1> summarise last week",
			TS:       "1.000",
			ThreadTS: "0.500",
		}, job)
		return "job-m", nil
	})

	ev, res, err := ingest(t, newHandler(mq), body)
	require.NoError(t, err)
	assert.Equal(t, EventAppMention, ev.Type)
	assert.Equal(t, []string{"job-m"}, res["job_ids"])
}

func TestDirectMessages(t *testing.T) {
	ctrl := gomock.NewController(t)
	mq := mocks.NewMockEnqueuer(ctrl)
	mq.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return("job-dm", nil).Times(1)
	h := newHandler(mq)

	_, res, err := ingest(t, h, `{"type":"event_callback","event_id":"Ev1","event":{"type":"message","channel_type":"im","user":"U1","text":"hi"}}`)
	require.NoError(t, err)
	assert.Equal(t, "queued", res["status"])

	_, res, err = ingest(t, h, `{"type":"event_callback","event_id":"Ev2","event":{"type":"message","channel_type":"im","bot_id":"B1","text":"echo"}}`)
	require.NoError(t, err)
	assert.Equal(t, "ignored", res["status"])

	_, res, err = ingest(t, h, `{"type":"event_callback","event_id":"Ev3","event":{"type":"message","channel_type":"channel","user":"U1"}}`)
	require.NoError(t, err)
	assert.Equal(t, "ignored", res["status"])
}

func TestOtherEventsIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHandler(mocks.NewMockEnqueuer(ctrl))

	_, res, err := ingest(t, h, `{"type":"event_callback","event":{"type":"reaction_added"}}`)
	require.NoError(t, err)
	assert.Equal(t, webhook.Result{"status": "ignored"}, res)
}
