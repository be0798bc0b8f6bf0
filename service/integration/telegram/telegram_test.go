package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/service/action"
	"courier/service/delivery"
	"courier/service/fallback"
	"courier/service/presentation"
	"courier/service/storage"
	"courier/service/subscription"
	"courier/service/surface"
)

type sent struct {
	chatID int64
	text   string
	markup telego.ReplyMarkup
}

type fakeBot struct {
	mu       sync.Mutex
	nextID   int
	sent     []sent
	deleted  []int
	answered []string
}

func (b *fakeBot) SendMessage(_ context.Context, chatID int64, text string, markup telego.ReplyMarkup) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.sent = append(b.sent, sent{chatID: chatID, text: text, markup: markup})
	return b.nextID, nil
}

func (b *fakeBot) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, messageID)
	return nil
}

func (b *fakeBot) AnswerCallback(_ context.Context, callbackID, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answered = append(b.answered, callbackID)
	return nil
}

type channelSource chan telego.Update

func (c channelSource) Updates(context.Context) (<-chan telego.Update, error) {
	return c, nil
}

func newStore(t *testing.T, chatIDs ...string) *subscription.Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := subscription.NewStore(db)
	require.NoError(t, err)
	for _, id := range chatIDs {
		_, err := store.AddSubscription(context.Background(), subscription.Subscription{
			Channel:  subscription.ChannelTelegram,
			Telegram: &subscription.TelegramSubscription{ChatID: id},
		})
		require.NoError(t, err)
	}
	return store
}

var replyNotification = surface.Notification{
	ID:    "42",
	Title: "New <offer>",
	Body:  "Hi & bye",
	Decision: presentation.Decision{
		Show: true,
		Actions: []action.Descriptor{
			{ID: "reply", Title: "Reply", RequiresInput: true, InputPlaceholder: "Say something"},
			{ID: "mark_read", Title: "Mark read"},
		},
	},
}

func TestRenderSendsKeyboardAndWithdrawDeletes(t *testing.T) {
	ctx := context.Background()
	b := &fakeBot{}
	s := NewSender(b, newStore(t, "100", "200"), nil)

	require.NoError(t, s.Render(ctx, replyNotification))
	require.Len(t, b.sent, 2)
	assert.Equal(t, "<b>New &lt;offer&gt;</b>\nHi &amp; bye", b.sent[0].text)

	kb, ok := b.sent[0].markup.(*telego.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "42|reply", kb.InlineKeyboard[0][0].CallbackData)

	require.NoError(t, s.Withdraw(ctx, "42"))
	assert.ElementsMatch(t, []int{1, 2}, b.deleted)

	require.NoError(t, s.Withdraw(ctx, "42"))
	assert.Len(t, b.deleted, 2)
}

func TestRenderWithoutActionsHasNoKeyboard(t *testing.T) {
	b := &fakeBot{}
	s := NewSender(b, newStore(t, "100"), nil)

	require.NoError(t, s.Render(context.Background(), surface.Notification{ID: "1", Body: "<i>x</i>", BodyIsHTML: true}))
	require.Len(t, b.sent, 1)
	assert.Nil(t, b.sent[0].markup)
	assert.Equal(t, "<i>x</i>", b.sent[0].text)
}

func TestReportSendsStatus(t *testing.T) {
	b := &fakeBot{}
	s := NewSender(b, newStore(t, "100"), nil)

	s.Report(context.Background(), fallback.StatusReplySent)
	require.Len(t, b.sent, 1)
	assert.Equal(t, "Reply sent", b.sent[0].text)
}

func TestPollerHandlesSilentAction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &fakeBot{}
	s := NewSender(b, newStore(t, "100"), nil)
	require.NoError(t, s.Render(ctx, replyNotification))

	var got []delivery.Interaction
	p := NewPoller(nil, s, func(_ context.Context, in delivery.Interaction) { got = append(got, in) }, nil)

	p.handle(ctx, telego.Update{CallbackQuery: &telego.CallbackQuery{ID: "cb1", Data: "42|mark_read", From: telego.User{ID: 100}}})

	require.Len(t, got, 1)
	assert.Equal(t, delivery.Interaction{NotificationID: "42", ActionID: "mark_read"}, got[0])
	assert.Equal(t, []string{"cb1"}, b.answered)
}

func TestPollerPromptsForReplyThenDelivers(t *testing.T) {
	ctx := context.Background()
	b := &fakeBot{}
	s := NewSender(b, newStore(t, "100"), nil)
	require.NoError(t, s.Render(ctx, replyNotification))

	var got []delivery.Interaction
	p := NewPoller(nil, s, func(_ context.Context, in delivery.Interaction) { got = append(got, in) }, nil)

	p.handle(ctx, telego.Update{CallbackQuery: &telego.CallbackQuery{ID: "cb1", Data: "42|reply", From: telego.User{ID: 100}}})
	assert.Empty(t, got)

	require.Len(t, b.sent, 2)
	promptMsg := b.sent[1]
	assert.Equal(t, "Say something", promptMsg.text)
	_, isForce := promptMsg.markup.(*telego.ForceReply)
	assert.True(t, isForce)

	p.handle(ctx, telego.Update{Message: &telego.Message{
		Chat:           telego.Chat{ID: 100},
		Text:           "ok",
		ReplyToMessage: &telego.Message{MessageID: 2},
	}})

	require.Len(t, got, 1)
	assert.Equal(t, delivery.Interaction{NotificationID: "42", ActionID: "reply", RequiresInput: true, ReplyText: "ok"}, got[0])

	p.handle(ctx, telego.Update{Message: &telego.Message{
		Chat:           telego.Chat{ID: 100},
		Text:           "again",
		ReplyToMessage: &telego.Message{MessageID: 2},
	}})
	assert.Len(t, got, 1)
}

func TestPollerRunStopsWhenChannelCloses(t *testing.T) {
	updates := make(channelSource, 1)
	b := &fakeBot{}
	s := NewSender(b, newStore(t), nil)

	var got []delivery.Interaction
	p := NewPoller(updates, s, func(_ context.Context, in delivery.Interaction) { got = append(got, in) }, nil)

	updates <- telego.Update{CallbackQuery: &telego.CallbackQuery{ID: "cb", Data: "9|open_thread"}}
	close(updates)

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, "open_thread", got[0].ActionID)
}

func TestDecodeCallback(t *testing.T) {
	in, ok := decodeCallback("a|b|reply")
	require.True(t, ok)
	assert.Equal(t, "a|b", in.NotificationID)
	assert.Equal(t, "reply", in.ActionID)

	_, ok = decodeCallback("noseparator")
	assert.False(t, ok)
	_, ok = decodeCallback("42|")
	assert.False(t, ok)
}

func TestRegisterRoutes(t *testing.T) {
	store := newStore(t)
	router := chi.NewRouter()
	RegisterRoutes(router, store, nil, func(next http.Handler) http.Handler { return next })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/telegram/subscriptions/", strings.NewReader(`{"chatId":"abc"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/telegram/subscriptions/", strings.NewReader(`{"chatId":"-100123"}`)))
	assert.Equal(t, http.StatusCreated, w.Code)

	subs, err := store.GetSubscriptionsByChannel(context.Background(), subscription.ChannelTelegram)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestPruneForgetsOldRendersAndPrompts(t *testing.T) {
	ctx := context.Background()
	b := &fakeBot{}
	s := NewSender(b, newStore(t, "100"), nil)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }
	require.NoError(t, s.Render(ctx, replyNotification))

	p := NewPoller(nil, s, func(context.Context, delivery.Interaction) {}, nil)
	p.handle(ctx, telego.Update{CallbackQuery: &telego.CallbackQuery{ID: "cb1", Data: "42|reply", From: telego.User{ID: 100}}})
	require.Len(t, s.prompts, 1)

	s.now = func() time.Time { return start.Add(2 * time.Hour) }
	fresh := replyNotification
	fresh.ID = "43"
	require.NoError(t, s.Render(ctx, fresh))

	assert.Equal(t, 1, s.Prune(start.Add(time.Hour)))

	_, _, ok := s.lookup("42", "reply")
	assert.False(t, ok)
	_, _, ok = s.lookup("43", "reply")
	assert.True(t, ok)
	assert.Empty(t, s.prompts)
	assert.Equal(t, 0, s.Prune(start.Add(time.Hour)))
}
