package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/docscribe/internal/queue"
	"github.com/mattjoyce/docscribe/internal/webhook"
	"github.com/mattjoyce/docscribe/internal/webhook/mocks"
)

const secret = "gh-secret"

const pushBody = `{
  "ref": "refs/heads/main",
  "before": "000111",
  "after": "bbb222",
  "compare": "https://github.com/acme/widgets/compare/000111...bbb222",
  "repository": {"full_name": "acme/widgets"},
  "commits": [
    {"id": "aaa111", "message": "Add parser", "url": "https://github.com/acme/widgets/commit/aaa111",
     "timestamp": "2026-03-01T10:00:00Z",
     "author": {"name": "Dana", "email": "dana@example.com"}, "added": ["parser.go"]},
    {"id": "bbb222", "message": "Document parser", "author": {"name": "Dana"}, "modified": ["README.md"]}
  ]
}`

func sign256(body string) string {
	return "sha256=" + webhook.ComputeSignature([]byte(body), secret)
}

func sign1(body string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func pushHeader(delivery string) http.Header {
	h := http.Header{}
	h.Set("X-GitHub-Event", "push")
	if delivery != "" {
		h.Set("X-GitHub-Delivery", delivery)
	}
	return h
}

func TestVerifySignature(t *testing.T) {
	h := New(Options{Secret: secret}, nil)
	body := []byte(pushBody)

	tests := []struct {
		name      string
		signature string
		wantOK    bool
		reason    string
	}{
		{"sha256", sign256(pushBody), true, ""},
		{"sha1", sign1(pushBody), true, ""},
		{"missing", "", false, webhook.ReasonMissingSignature},
		{"no prefix", webhook.ComputeSignature(body, secret), false, webhook.ReasonMalformedSignature},
		{"unknown algorithm", "md5=abcd", false, webhook.ReasonMalformedSignature},
		{"bad hex", "sha256=zzzz", false, webhook.ReasonMalformedSignature},
		{"short digest", "sha256=abcd", false, webhook.ReasonMalformedSignature},
		{"mismatch", "sha256=" + webhook.ComputeSignature(body, "other"), false, webhook.ReasonSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := h.VerifySignature(body, tt.signature)
			assert.Equal(t, tt.wantOK, v.OK())
			assert.Equal(t, tt.reason, v.Reason())
		})
	}

	noSecret := New(Options{}, nil)
	assert.Equal(t, webhook.ReasonMissingSecret, noSecret.VerifySignature(body, sign256(pushBody)).Reason())
}

func TestReadSignaturePrefersSHA256(t *testing.T) {
	h := New(Options{Secret: secret}, nil)

	header := http.Header{}
	header.Set("X-Hub-Signature", "sha1=legacy")
	assert.Equal(t, "sha1=legacy", h.ReadSignature(header))

	header.Set("X-Hub-Signature-256", "sha256=modern")
	assert.Equal(t, "sha256=modern", h.ReadSignature(header))
}

func TestExtractEventType(t *testing.T) {
	h := New(Options{Secret: secret}, nil)

	assert.Equal(t, "push", h.ExtractEventType(pushHeader(""), nil))
	assert.Equal(t, EventPing, h.ExtractEventType(http.Header{}, []byte(`{"zen":"Keep it logically awesome.","hook_id":1}`)))
	assert.Equal(t, EventPush, h.ExtractEventType(http.Header{}, []byte(pushBody)))
	assert.Equal(t, EventPullRequest, h.ExtractEventType(http.Header{}, []byte(`{"action":"opened","pull_request":{}}`)))
	assert.Equal(t, webhook.UnknownEvent, h.ExtractEventType(http.Header{}, []byte(`{"foo":1}`)))
	assert.Equal(t, webhook.UnknownEvent, h.ExtractEventType(http.Header{}, []byte(`not json`)))
}

func TestPushEnqueuesCommitAndDocsJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	mq := mocks.NewMockEnqueuer(ctrl)

	var commits []CommitJob
	var docs DocsJob
	gomock.InOrder(
		mq.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req queue.EnqueueRequest) (string, error) {
			assert.Equal(t, queue.KindCommitAnalyze, req.Kind)
			assert.Equal(t, "github:d-1:commit:aaa111", *req.DedupeKey)
			var c CommitJob
			require.NoError(t, json.Unmarshal(req.Payload, &c))
			commits = append(commits, c)
			return "job-a", nil
		}),
		mq.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req queue.EnqueueRequest) (string, error) {
			assert.Equal(t, queue.KindCommitAnalyze, req.Kind)
			var c CommitJob
			require.NoError(t, json.Unmarshal(req.Payload, &c))
			commits = append(commits, c)
			return "job-b", nil
		}),
		mq.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req queue.EnqueueRequest) (string, error) {
			assert.Equal(t, queue.KindDocsPropose, req.Kind)
			assert.Equal(t, "github:d-1:docs", *req.DedupeKey)
			assert.Equal(t, "webhook:github", req.SubmittedBy)
			require.NoError(t, json.Unmarshal(req.Payload, &docs))
			return "job-docs", nil
		}),
	)

	h := New(Options{Secret: secret}, mq)
	ev, res, err := webhook.Ingest(context.Background(), "github", h, pushHeader("d-1"), []byte(pushBody), sign256(pushBody))
	require.NoError(t, err)

	assert.Equal(t, "push", ev.Type)
	assert.Equal(t, "d-1", ev.DeliveryID)
	assert.Equal(t, "queued", res["status"])
	assert.Equal(t, 2, res["commits"])
	assert.Equal(t, []string{"job-a", "job-b", "job-docs"}, res["job_ids"])

	require.Len(t, commits, 2)
	assert.Equal(t, "acme/widgets", commits[0].Repository)
	assert.Equal(t, "main", commits[0].Branch)
	assert.Equal(t, "aaa111", commits[0].CommitID)
	assert.Equal(t, "Dana", commits[0].AuthorName)
	assert.Equal(t, "dana@example.com", commits[0].AuthorEmail)
	assert.Equal(t, "2026-03-01T10:00:00Z", commits[0].Timestamp)
	assert.Equal(t, []string{"parser.go"}, commits[0].Added)
	assert.Equal(t, []string{"README.md"}, commits[1].Modified)
	assert.Empty(t, commits[1].Timestamp)

	assert.Equal(t, EventPush, docs.Trigger)
	assert.Equal(t, []string{"aaa111", "bbb222"}, docs.CommitIDs)
	assert.Equal(t, "000111", docs.Before)
	assert.Equal(t, "bbb222", docs.After)
}

func TestPushWithoutDeliveryHasNoDedupeKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	mq := mocks.NewMockEnqueuer(ctrl)
	mq.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req queue.EnqueueRequest) (string, error) {
		assert.Nil(t, req.DedupeKey)
		return "job", nil
	}).Times(3)

	h := New(Options{Secret: secret}, mq)
	_, _, err := webhook.Ingest(context.Background(), "github", h, pushHeader(""), []byte(pushBody), sign256(pushBody))
	require.NoError(t, err)
}

func TestPushIgnoredCases(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		branches []string
		reason   string
	}{
		{"deleted", `{"ref":"refs/heads/old","deleted":true,"commits":[]}`, nil, "ref deleted"},
		{"tag", `{"ref":"refs/tags/v1.0.0","commits":[{"id":"a"}]}`, nil, "not a branch"},
		{"untracked branch", `{"ref":"refs/heads/feature","commits":[{"id":"a"}]}`, []string{"main"}, "branch feature not tracked"},
		{"empty", `{"ref":"refs/heads/main","commits":[]}`, nil, "no commits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mq := mocks.NewMockEnqueuer(ctrl)

			h := New(Options{Secret: secret, Branches: tt.branches}, mq)
			_, res, err := webhook.Ingest(context.Background(), "github", h, pushHeader("d"), []byte(tt.body), sign256(tt.body))
			require.NoError(t, err)
			assert.Equal(t, "ignored", res["status"])
			assert.Equal(t, tt.reason, res["reason"])
		})
	}
}

func TestPullRequest(t *testing.T) {
	body := `{"action":"opened","number":17,"repository":{"full_name":"acme/widgets"},
	  "pull_request":{"title":"Add parser","html_url":"https://github.com/acme/widgets/pull/17",
	  "head":{"ref":"feature","sha":"ccc333"},"base":{"ref":"main"}}}`

	ctrl := gomock.NewController(t)
	mq := mocks.NewMockEnqueuer(ctrl)
	mq.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req queue.EnqueueRequest) (string, error) {
		assert.Equal(t, queue.KindDocsPropose, req.Kind)
		var docs DocsJob
		require.NoError(t, json.Unmarshal(req.Payload, &docs))
		assert.Equal(t, EventPullRequest, docs.Trigger)
		assert.Equal(t, 17, docs.PullRequest)
		assert.Equal(t, "feature", docs.Branch)
		assert.Equal(t, "main", docs.BaseBranch)
		assert.Equal(t, "ccc333", docs.After)
		assert.Equal(t, "Add parser", docs.Title)
		return "job-pr", nil
	})

	header := http.Header{}
	header.Set("X-GitHub-Event", "pull_request")
	h := New(Options{Secret: secret}, mq)
	_, res, err := webhook.Ingest(context.Background(), "github", h, header, []byte(body), sign256(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"job-pr"}, res["job_ids"])

	closed := `{"action":"closed","number":17,"pull_request":{}}`
	_, res, err = webhook.Ingest(context.Background(), "github", h, header, []byte(closed), sign256(closed))
	require.NoError(t, err)
	assert.Equal(t, "ignored", res["status"])
	assert.Equal(t, "action closed", res["reason"])
}

func TestPingAndUnhandledEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := New(Options{Secret: secret}, mocks.NewMockEnqueuer(ctrl))

	res, err := h.ProcessEvent(context.Background(), EventPing, map[string]any{"zen": "hi"})
	require.NoError(t, err)
	assert.Equal(t, webhook.Result{"status": "pong"}, res)

	res, err = h.ProcessEvent(context.Background(), "issues", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "ignored", res["status"])

	res, err = h.ProcessEvent(context.Background(), webhook.UnknownEvent, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "ignored", res["status"])
}

func TestProcessEventWithoutContextEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	mq := mocks.NewMockEnqueuer(ctrl)
	mq.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return("job", nil).Times(2)

	h := New(Options{Secret: secret}, mq)
	data := map[string]any{
		"ref":     "refs/heads/main",
		"commits": []any{map[string]any{"id": "abc"}},
	}
	res, err := h.ProcessEvent(context.Background(), EventPush, data)
	require.NoError(t, err)
	assert.Equal(t, 1, res["commits"])
}

func TestEnqueueFailureIsReturned(t *testing.T) {
	ctrl := gomock.NewController(t)
	mq := mocks.NewMockEnqueuer(ctrl)
	mq.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return("", errors.New("locked"))

	h := New(Options{Secret: secret}, mq)
	_, _, err := webhook.Ingest(context.Background(), "github", h, pushHeader("d"), []byte(pushBody), sign256(pushBody))

	var perr *webhook.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, err.Error(), "locked")
}

func TestTypeMismatchIsMalformed(t *testing.T) {
	body := `{"ref":"refs/heads/main","commits":"not-a-list"}`
	ctrl := gomock.NewController(t)
	h := New(Options{Secret: secret}, mocks.NewMockEnqueuer(ctrl))

	_, _, err := webhook.Ingest(context.Background(), "github", h, pushHeader("d"), []byte(body), sign256(body))
	assert.True(t, errors.Is(err, webhook.ErrMalformedPayload))
}
