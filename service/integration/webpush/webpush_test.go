package webpush

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/service/action"
	"courier/service/delivery"
	"courier/service/presentation"
	"courier/service/storage"
	"courier/service/subscription"
	"courier/service/surface"
)

func newStore(t *testing.T) *subscription.Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := subscription.NewStore(db)
	require.NoError(t, err)
	return store
}

type endpoint struct {
	mu       sync.Mutex
	messages []message
	status   int
}

func newEndpoint(t *testing.T, status int) (*endpoint, *httptest.Server) {
	t.Helper()
	e := &endpoint{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m message
		_ = json.NewDecoder(r.Body).Decode(&m)
		e.mu.Lock()
		e.messages = append(e.messages, m)
		e.mu.Unlock()
		w.WriteHeader(e.status)
	}))
	t.Cleanup(srv.Close)
	return e, srv
}

func TestRenderPostsToPlainEndpoints(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	e, srv := newEndpoint(t, http.StatusOK)
	_, err := store.AddSubscription(ctx, subscription.Subscription{
		Channel: subscription.ChannelWebPush,
		WebPush: &subscription.WebPushSubscription{Endpoint: srv.URL},
	})
	require.NoError(t, err)

	s := NewSender(store, "mailto:ops@example.com", nil)
	err = s.Render(ctx, surface.Notification{
		ID:    "42",
		Title: "New message",
		Body:  "Hi",
		Decision: presentation.Decision{
			Show:    true,
			Actions: []action.Descriptor{{ID: "reply", Title: "Reply", RequiresInput: true}, {ID: "dismiss", Title: "Dismiss"}},
		},
		Extras: map[string]string{"authToken": "secret"},
	})
	require.NoError(t, err)

	require.Len(t, e.messages, 1)
	m := e.messages[0]
	assert.Equal(t, "notification", m.Type)
	assert.Equal(t, "42", m.ID)
	assert.True(t, m.RequireInteraction)
	require.Len(t, m.Actions, 2)
	assert.Equal(t, "text", m.Actions[0].Type)
	assert.Equal(t, "Enter your reply...", m.Actions[0].Placeholder)
	assert.Empty(t, m.Actions[1].Type)
	assert.Equal(t, map[string]string{delivery.KeyNotificationID: "42"}, m.Data)
}

func TestWithdrawSendsWithdrawMessage(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	e, srv := newEndpoint(t, http.StatusOK)
	_, err := store.AddSubscription(ctx, subscription.Subscription{
		Channel: subscription.ChannelWebPush,
		WebPush: &subscription.WebPushSubscription{Endpoint: srv.URL},
	})
	require.NoError(t, err)

	require.NoError(t, NewSender(store, "", nil).Withdraw(ctx, "42"))

	require.Len(t, e.messages, 1)
	assert.Equal(t, "withdraw", e.messages[0].Type)
	assert.Equal(t, "42", e.messages[0].ID)
}

func TestRenderWithoutSubscriptionsIsNoop(t *testing.T) {
	s := NewSender(newStore(t), "", nil)
	assert.NoError(t, s.Render(context.Background(), surface.Notification{ID: "1"}))
}

func TestGoneEndpointIsPermanent(t *testing.T) {
	_, srv := newEndpoint(t, http.StatusGone)
	s := NewSender(newStore(t), "", nil)

	err := s.Send(context.Background(), &subscription.Subscription{
		ID:      "x",
		WebPush: &subscription.WebPushSubscription{Endpoint: srv.URL},
	}, []byte(`{}`), false)
	require.Error(t, err)
	assert.True(t, delivery.IsPermanent(err))
}

func TestRegisterHandlers(t *testing.T) {
	store := newStore(t)
	router := chi.NewRouter()
	RegisterRoutes(router, store, nil, func(next http.Handler) http.Handler { return next })

	tests := []struct {
		name string
		body string
		code int
	}{
		{"plain", `{"pushEndpoint":"http://hooks.example/a"}`, http.StatusCreated},
		{"bad url", `{"pushEndpoint":"not a url"}`, http.StatusBadRequest},
		{"partial keys", `{"pushEndpoint":"https://push.example/a","p256dh":"x"}`, http.StatusBadRequest},
		{"encrypted over http", `{"pushEndpoint":"http://push.example/a","p256dh":"x","auth":"y","vapidPrivateKey":"z"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/webpush/subscriptions/", strings.NewReader(tt.body))
			router.ServeHTTP(w, r)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}

	subs, err := store.GetSubscriptionsByChannel(context.Background(), subscription.ChannelWebPush)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/webpush/subscriptions/"+subs[0].ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/webpush/subscriptions/"+subs[0].ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNormalizeKeys(t *testing.T) {
	_, err := normalizeAuthSecret("AAAAAAAAAAAAAAAAAAAAAA")
	assert.NoError(t, err)

	_, err = normalizeAuthSecret("AAAA")
	assert.Error(t, err)

	_, err = normalizeVAPIDPrivateKey(strings.Repeat("A", 43))
	assert.Error(t, err, "zero scalar")
}
