package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"courier/service/action"
	"courier/service/delivery"
	"courier/service/fallback"
	"courier/service/subscription"
	"courier/service/surface"

	"github.com/mymmrac/telego"
)

const (
	callbackSeparator = "|"
	maxCallbackData   = 64
)

type sentMessage struct {
	chatID    int64
	messageID int
}

type rendered struct {
	messages []sentMessage
	actions  []action.Descriptor
	at       time.Time
}

type prompt struct {
	notificationID string
	actionID       string
	at             time.Time
}

type promptKey struct {
	chatID    int64
	messageID int
}

// Sender renders notifications as chat messages with an inline keyboard, one
// button per action. It remembers what it sent so messages can be deleted on
// withdrawal and callbacks can be matched back to their action.
type Sender struct {
	bot    bot
	store  *subscription.Store
	logger *slog.Logger

	now func() time.Time

	mu       sync.Mutex
	rendered map[string]*rendered
	prompts  map[promptKey]prompt
}

func NewSender(b bot, store *subscription.Store, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sender{
		bot:      b,
		store:    store,
		logger:   logger,
		now:      time.Now,
		rendered: make(map[string]*rendered),
		prompts:  make(map[promptKey]prompt),
	}
}

func (s *Sender) Name() string {
	return subscription.ChannelTelegram.String()
}

func (s *Sender) Render(ctx context.Context, n surface.Notification) error {
	chats, err := s.chats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return nil
	}

	text := formatMessage(n)
	markup := s.keyboard(n.ID, n.Decision.Actions)

	r := &rendered{actions: n.Decision.Actions, at: s.now()}
	var errs []error
	for _, chatID := range chats {
		messageID, err := s.bot.SendMessage(ctx, chatID, text, markup)
		if err != nil {
			s.logger.Error("Failed to send telegram message", "chatID", chatID, "error", err)
			errs = append(errs, err)
			continue
		}
		r.messages = append(r.messages, sentMessage{chatID: chatID, messageID: messageID})
	}

	s.mu.Lock()
	prev, replaced := s.rendered[n.ID]
	s.rendered[n.ID] = r
	s.mu.Unlock()

	if replaced {
		_ = s.deleteAll(ctx, prev.messages)
	}

	if len(r.messages) == 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Sender) Withdraw(ctx context.Context, id string) error {
	s.mu.Lock()
	r, ok := s.rendered[id]
	delete(s.rendered, id)
	for k, p := range s.prompts {
		if p.notificationID == id {
			delete(s.prompts, k)
		}
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return s.deleteAll(ctx, r.messages)
}

// Prune forgets notifications rendered before the cutoff and any reply prompts
// left open for them. Their chat messages stay; their buttons stop routing.
func (s *Sender) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.rendered {
		if r.at.Before(before) {
			delete(s.rendered, id)
			n++
		}
	}
	for k, p := range s.prompts {
		if _, ok := s.rendered[p.notificationID]; !ok || p.at.Before(before) {
			delete(s.prompts, k)
		}
	}
	return n
}

// Report shows a fallback status in every subscribed chat.
func (s *Sender) Report(ctx context.Context, status fallback.Status) {
	chats, err := s.chats(ctx)
	if err != nil {
		s.logger.Warn("Failed to load telegram chats for status", "error", err)
		return
	}
	for _, chatID := range chats {
		if _, err := s.bot.SendMessage(ctx, chatID, html.EscapeString(string(status)), nil); err != nil {
			s.logger.Warn("Failed to send status", "chatID", chatID, "error", err)
		}
	}
}

func (s *Sender) deleteAll(ctx context.Context, messages []sentMessage) error {
	var errs []error
	for _, m := range messages {
		if err := s.bot.DeleteMessage(ctx, m.chatID, m.messageID); err != nil {
			s.logger.Warn("Failed to delete telegram message", "chatID", m.chatID, "messageID", m.messageID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sender) chats(ctx context.Context) ([]int64, error) {
	subs, err := s.store.GetSubscriptionsByChannel(ctx, subscription.ChannelTelegram)
	if err != nil {
		return nil, fmt.Errorf("failed to load telegram subscriptions: %w", err)
	}

	chats := make([]int64, 0, len(subs))
	for _, sub := range subs {
		if sub.Telegram == nil {
			continue
		}
		chatID, err := strconv.ParseInt(sub.Telegram.ChatID, 10, 64)
		if err != nil {
			s.logger.Warn("Skipping invalid chat ID", "subscription", sub.ID, "chatID", sub.Telegram.ChatID)
			continue
		}
		chats = append(chats, chatID)
	}
	return chats, nil
}

func (s *Sender) keyboard(notificationID string, actions []action.Descriptor) telego.ReplyMarkup {
	var rows [][]telego.InlineKeyboardButton
	for _, a := range actions {
		data := encodeCallback(notificationID, a.ID)
		if len(data) > maxCallbackData {
			s.logger.Warn("Action id too long for a telegram button", "id", notificationID, "action", a.ID)
			continue
		}
		rows = append(rows, []telego.InlineKeyboardButton{{Text: a.Title, CallbackData: data}})
	}
	if len(rows) == 0 {
		return nil
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// lookup returns the action descriptor and the chats a notification was sent to.
func (s *Sender) lookup(notificationID, actionID string) (action.Descriptor, []sentMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rendered[notificationID]
	if !ok {
		return action.Descriptor{}, nil, false
	}
	for _, a := range r.actions {
		if a.ID == actionID {
			return a, append([]sentMessage(nil), r.messages...), true
		}
	}
	return action.Descriptor{}, nil, false
}

func (s *Sender) addPrompt(chatID int64, messageID int, p prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.at = s.now()
	s.prompts[promptKey{chatID, messageID}] = p
}

func (s *Sender) takePrompt(chatID int64, messageID int) (prompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := promptKey{chatID, messageID}
	p, ok := s.prompts[key]
	delete(s.prompts, key)
	return p, ok
}

func formatMessage(n surface.Notification) string {
	body := n.Body
	if !n.BodyIsHTML {
		body = html.EscapeString(body)
	}
	if n.Title == "" {
		return body
	}
	return fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(n.Title), body)
}

func encodeCallback(notificationID, actionID string) string {
	return notificationID + callbackSeparator + actionID
}

func decodeCallback(data string) (delivery.Interaction, bool) {
	i := strings.LastIndex(data, callbackSeparator)
	if i <= 0 || i == len(data)-1 {
		return delivery.Interaction{}, false
	}
	return delivery.Interaction{NotificationID: data[:i], ActionID: data[i+1:]}, true
}
