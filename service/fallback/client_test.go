package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/service/delivery"
)

type capturedRequest struct {
	Path  string
	Token string
	Body  map[string]any
}

type backend struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
}

func newBackend(t *testing.T, status int) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		b.requests = append(b.requests, capturedRequest{
			Path:  r.URL.Path,
			Token: r.Header.Get(authHeader),
			Body:  body,
		})
		b.mu.Unlock()

		w.WriteHeader(b.status)
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

type statusRecorder struct {
	statuses []Status
}

func (r *statusRecorder) Report(_ context.Context, s Status) {
	r.statuses = append(r.statuses, s)
}

func result(apiURL, actionID string, extras map[string]string) delivery.ActionResult {
	all := map[string]string{delivery.KeyAPIURL: apiURL, delivery.KeyAuthToken: "tok"}
	for k, v := range extras {
		all[k] = v
	}
	return delivery.ActionResult{NotificationID: "42", ActionID: actionID, Extras: all}
}

func TestReplySwapsSenderAndRecipient(t *testing.T) {
	b, srv := newBackend(t, http.StatusCreated)
	c := New(Options{})

	r := result(srv.URL+"/", "reply", map[string]string{
		"senderId":    "alice",
		"recipientId": "bob",
		"offerId":     "o-1",
	})
	r.ReplyText = "ok"

	status, err := c.Deliver(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, StatusReplySent, status)

	require.Len(t, b.requests, 1)
	req := b.requests[0]
	assert.Equal(t, "/api/messages", req.Path)
	assert.Equal(t, "tok", req.Token)

	msg, ok := req.Body["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bob", msg["sender_id"])
	assert.Equal(t, "alice", msg["recipient_id"])
	assert.Equal(t, "o-1", msg["offer_id"])
	assert.Equal(t, "ok", msg["text"])
	assert.Equal(t, "Reply from notification", msg["notificationTitle"])
	assert.NotContains(t, msg, "commodity_id")
}

func TestReplyWithoutTextSendsEmptyString(t *testing.T) {
	b, srv := newBackend(t, http.StatusOK)
	c := New(Options{})

	_, err := c.Deliver(context.Background(), result(srv.URL, "reply", nil))
	require.NoError(t, err)

	require.Len(t, b.requests, 1)
	msg := b.requests[0].Body["message"].(map[string]any)
	assert.Equal(t, "", msg["text"])
}

func TestReplyRejectedIsPermanent(t *testing.T) {
	_, srv := newBackend(t, http.StatusInternalServerError)
	c := New(Options{})

	status, err := c.Deliver(context.Background(), result(srv.URL, "reply", nil))
	require.Error(t, err)
	assert.True(t, delivery.IsPermanent(err))
	assert.Equal(t, StatusReplyFailed, status)
}

func TestMarkRead(t *testing.T) {
	b, srv := newBackend(t, http.StatusOK)
	c := New(Options{})

	status, err := c.Deliver(context.Background(), result(srv.URL, "mark_read", map[string]string{"messageId": "m-9"}))
	require.NoError(t, err)
	assert.Equal(t, StatusMarkedRead, status)

	require.Len(t, b.requests, 1)
	assert.Equal(t, "/api/messages/mark-read", b.requests[0].Path)
	assert.Equal(t, "m-9", b.requests[0].Body["messageId"])
}

func TestMarkReadWithoutMessageIDMakesNoCall(t *testing.T) {
	b, srv := newBackend(t, http.StatusOK)
	rec := &statusRecorder{}
	c := New(Options{Reporter: rec})

	c.Replay(context.Background(), result(srv.URL, "mark_read", nil))

	assert.Empty(t, b.requests)
	assert.Equal(t, []Status{StatusMissingMessageID}, rec.statuses)
}

func TestMissingCredentialsReportsNothing(t *testing.T) {
	rec := &statusRecorder{}
	c := New(Options{Reporter: rec})

	status, err := c.Deliver(context.Background(), delivery.ActionResult{ActionID: "reply", Extras: map[string]string{}})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Empty(t, status)

	c.Replay(context.Background(), delivery.ActionResult{ActionID: "reply", Extras: map[string]string{}})
	assert.Empty(t, rec.statuses)
}

func TestDismissMakesNoCall(t *testing.T) {
	b, srv := newBackend(t, http.StatusOK)
	c := New(Options{})

	status, err := c.Deliver(context.Background(), result(srv.URL, "dismiss", nil))
	require.NoError(t, err)
	assert.Equal(t, StatusDismissed, status)
	assert.Empty(t, b.requests)
}

func TestUnknownActionIsLoggedOnly(t *testing.T) {
	c := New(Options{})

	status, err := c.Deliver(context.Background(), result("https://x", "archive", nil))
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Empty(t, status)
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestTransportErrorBecomesErrorStatus(t *testing.T) {
	rec := &statusRecorder{}
	c := New(Options{Reporter: rec, Transport: failingTransport{}})

	c.Replay(context.Background(), result("https://x/", "reply", nil))

	require.Len(t, rec.statuses, 1)
	assert.Contains(t, string(rec.statuses[0]), "Error: ")
	assert.Contains(t, string(rec.statuses[0]), "connection refused")
}
