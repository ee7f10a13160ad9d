package api

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWebhookSecret = "worker-secret"
	testEventToken    = "event-token"
)

func (f *fixture) webhookHandler() *WebhookHandler {
	verifier := worker.NewSignatureVerifier(testWebhookSecret, f.log)
	return NewWebhookHandler(f.orch, verifier, f.pairings, testEventToken, f.log)
}

func postWorkerWebhook(h *WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/worker", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(worker.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.WorkerWebhook(rec, req)
	return rec
}

func TestWebhookHandler_WorkerWebhook(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := f.webhookHandler()
	tasks := NewTaskHandler(f.orch, f.queries, f.log)
	created := decode[TaskResponse](t, f.createTask(t, tasks, validTaskRequest()))

	body := `{"id":"job-` + created.ID.String() + `","status":"succeeded","output":["https://cdn.test/out.png"]}`

	rec := postWorkerWebhook(h, body, worker.Sign(testWebhookSecret, []byte(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"applied":true}`, rec.Body.String())

	task, err := f.tasks.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)

	t.Run("redelivery is acknowledged without effect", func(t *testing.T) {
		rec := postWorkerWebhook(h, body, worker.Sign(testWebhookSecret, []byte(body)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"applied":false}`, rec.Body.String())
	})

	t.Run("unknown job is acknowledged", func(t *testing.T) {
		unknown := `{"id":"job-unknown","status":"failed","error":"boom"}`
		rec := postWorkerWebhook(h, unknown, worker.Sign(testWebhookSecret, []byte(unknown)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"applied":false}`, rec.Body.String())
	})

	t.Run("bad signature is refused", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, postWorkerWebhook(h, body, "sha256=00").Code)
		assert.Equal(t, http.StatusUnauthorized, postWorkerWebhook(h, body, "").Code)
	})

	t.Run("malformed body is refused", func(t *testing.T) {
		bad := `{"status":"succeeded"}`
		assert.Equal(t, http.StatusBadRequest, postWorkerWebhook(h, bad, worker.Sign(testWebhookSecret, []byte(bad))).Code)
	})
}

func TestWebhookHandler_WorkerWebhookWithoutSecret(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := NewWebhookHandler(f.orch, worker.NewSignatureVerifier("", f.log), f.pairings, testEventToken, f.log)

	rec := postWorkerWebhook(h, `{"id":"job-x","status":"processing"}`, "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

// signedQuery builds the query string the messaging platform signs pushes with.
func signedQuery(token string, extra url.Values) string {
	timestamp, nonce := "1700000000", "nonce-1"
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))

	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("timestamp", timestamp)
	q.Set("nonce", nonce)
	q.Set("signature", hex.EncodeToString(sum[:]))
	return q.Encode()
}

func TestWebhookHandler_VerifyIdentityEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := f.webhookHandler()

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/identity?"+signedQuery(testEventToken, url.Values{"echostr": {"echo-123"}}), nil)
	rec := httptest.NewRecorder()
	h.VerifyIdentityEndpoint(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo-123", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet,
		"/webhooks/identity?"+signedQuery("wrong-token", url.Values{"echostr": {"echo-123"}}), nil)
	rec = httptest.NewRecorder()
	h.VerifyIdentityEndpoint(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookHandler_IdentityEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := f.webhookHandler()
	issued := f.issueToken(t, f.pairingHandler(), f.device)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/identity?"+signedQuery(testEventToken, nil),
			strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.IdentityEvent(rec, req)
		return rec
	}
	subscribe := func(openID string) string {
		return `<xml><ToUserName>gh_account</ToUserName><FromUserName>` + openID +
			`</FromUserName><CreateTime>1700000000</CreateTime><MsgType>event</MsgType>` +
			`<Event>subscribe</Event><EventKey>qrscene_` + issued.Token + `</EventKey></xml>`
	}

	rec := post(subscribe("openid-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())

	res, err := f.pairings.Resolve(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.PairingStatusUsed, res.Status)

	t.Run("redelivery and conflicting scans are acknowledged", func(t *testing.T) {
		assert.Equal(t, "success", post(subscribe("openid-1")).Body.String())
		assert.Equal(t, "success", post(subscribe("openid-2")).Body.String())

		res, err := f.pairings.Resolve(context.Background(), issued.Token)
		require.NoError(t, err)
		require.NotNil(t, res.IdentityExternalID)
		assert.Equal(t, "openid-1", *res.IdentityExternalID)
	})

	t.Run("malformed event is refused", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, post("<xml>").Code)
	})

	t.Run("unsigned push is refused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", strings.NewReader(subscribe("openid-3")))
		rec := httptest.NewRecorder()
		h.IdentityEvent(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
