package webpush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"courier/service/delivery"
	"courier/service/presentation"
	"courier/service/subscription"
	"courier/service/surface"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const defaultTTL = 86400

type message struct {
	Type               string            `json:"type"`
	ID                 string            `json:"id"`
	Title              string            `json:"title,omitempty"`
	Body               string            `json:"body,omitempty"`
	Icon               string            `json:"icon,omitempty"`
	Image              string            `json:"image,omitempty"`
	Tag                string            `json:"tag,omitempty"`
	Silent             bool              `json:"silent,omitempty"`
	RequireInteraction bool              `json:"requireInteraction,omitempty"`
	Vibrate            []int64           `json:"vibrate,omitempty"`
	Actions            []messageAction   `json:"actions,omitempty"`
	Data               map[string]string `json:"data,omitempty"`
}

type messageAction struct {
	Action        string `json:"action"`
	Title         string `json:"title"`
	Icon          string `json:"icon,omitempty"`
	Type          string `json:"type,omitempty"`
	Placeholder   string `json:"placeholder,omitempty"`
	RequiresInput bool   `json:"requiresInput,omitempty"`
}

// Sender renders notifications to every registered push endpoint. Endpoints
// with keys get an encrypted Web Push message; bare endpoints get a plain
// JSON POST.
type Sender struct {
	store      *subscription.Store
	subscriber string
	http       *http.Client
	logger     *slog.Logger
}

func NewSender(store *subscription.Store, subscriber string, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sender{
		store:      store,
		subscriber: subscriber,
		http:       &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (s *Sender) Name() string {
	return subscription.ChannelWebPush.String()
}

func (s *Sender) Render(ctx context.Context, n surface.Notification) error {
	return s.broadcast(ctx, buildMessage(n), n.Decision.Priority >= presentation.PriorityHigh)
}

func (s *Sender) Withdraw(ctx context.Context, id string) error {
	return s.broadcast(ctx, message{Type: "withdraw", ID: id, Tag: id}, false)
}

func buildMessage(n surface.Notification) message {
	m := message{
		Type:               "notification",
		ID:                 n.ID,
		Title:              n.Title,
		Body:               n.Body,
		Icon:               n.Decision.SmallIcon.Name,
		Image:              n.Decision.ImageURL,
		Tag:                n.ID,
		Silent:             n.Decision.Sound == "" && n.Decision.Vibrate == nil,
		RequireInteraction: len(n.Decision.Actions) > 0,
		Vibrate:            n.Decision.Vibrate,
		Data:               map[string]string{delivery.KeyNotificationID: n.ID},
	}

	for _, a := range n.Decision.Actions {
		ma := messageAction{
			Action:        a.ID,
			Title:         a.Title,
			Icon:          a.Icon,
			RequiresInput: a.RequiresInput,
		}
		if a.RequiresInput {
			ma.Type = "text"
			ma.Placeholder = a.Placeholder()
		}
		m.Actions = append(m.Actions, ma)
	}
	return m
}

func (s *Sender) broadcast(ctx context.Context, msg message, urgent bool) error {
	subs, err := s.store.GetSubscriptionsByChannel(ctx, subscription.ChannelWebPush)
	if err != nil {
		return fmt.Errorf("failed to load webpush subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	var failed int
	var lastErr error
	for i := range subs {
		if err := s.Send(ctx, &subs[i], payload, urgent); err != nil {
			failed++
			lastErr = err
			s.logger.Warn("Webpush delivery failed", "subscription", subs[i].ID, "permanent", delivery.IsPermanent(err), "error", err)
		}
	}

	if failed == len(subs) {
		return lastErr
	}
	return nil
}

func (s *Sender) Send(ctx context.Context, sub *subscription.Subscription, payload []byte, urgent bool) error {
	if sub.WebPush == nil {
		return delivery.NewPermanentError("webpush", fmt.Errorf("no push endpoint configured for subscription %s", sub.ID))
	}

	var resp *http.Response
	var err error

	if sub.WebPush.HasEncryption() {
		target := &webpush.Subscription{
			Endpoint: sub.WebPush.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.WebPush.P256dh,
				Auth:   sub.WebPush.Auth,
			},
		}

		urgency := webpush.UrgencyNormal
		if urgent {
			urgency = webpush.UrgencyHigh
		}

		resp, err = webpush.SendNotificationWithContext(ctx, payload, target, &webpush.Options{
			HTTPClient:      s.http,
			Subscriber:      s.subscriber,
			VAPIDPrivateKey: sub.WebPush.VapidPrivateKey,
			TTL:             defaultTTL,
			Urgency:         urgency,
		})
		if err != nil {
			return fmt.Errorf("failed to send webpush: %w", err)
		}
	} else {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, sub.WebPush.Endpoint, bytes.NewReader(payload))
		if reqErr != nil {
			return delivery.NewPermanentError("webhook", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = s.http.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send webhook: %w", err)
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return delivery.NewPermanentError("webpush", fmt.Errorf("endpoint gone (status %d)", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("webpush returned status %d", resp.StatusCode)
	}

	s.logger.Debug("Sent webpush message", "subscription", sub.ID, "encrypted", sub.WebPush.HasEncryption())
	return nil
}
