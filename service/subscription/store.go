package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("subscription not found")

type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) (*Store, error) {
	store := &Store{DB: db}
	if err := store.createTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			label TEXT,
			channel TEXT NOT NULL,
			telegramChatId TEXT,
			pushEndpoint TEXT,
			p256dh TEXT,
			auth TEXT,
			vapidPrivateKey TEXT,
			createdAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_channel ON subscriptions(channel)`,
	}

	for _, query := range queries {
		if _, err := s.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return nil
}

const selectColumns = `SELECT id, label, channel, telegramChatId, pushEndpoint, p256dh, auth, vapidPrivateKey, createdAt FROM subscriptions`

func (s *Store) AddSubscription(ctx context.Context, sub Subscription) (string, error) {
	if _, ok := ParseChannel(string(sub.Channel)); !ok {
		return "", fmt.Errorf("unknown channel %q", sub.Channel)
	}

	var telegramChatID, pushEndpoint, p256dh, auth, vapidPrivateKey *string
	if sub.Telegram != nil {
		telegramChatID = &sub.Telegram.ChatID
	}
	if sub.WebPush != nil {
		pushEndpoint = &sub.WebPush.Endpoint
		p256dh = &sub.WebPush.P256dh
		auth = &sub.WebPush.Auth
		vapidPrivateKey = &sub.WebPush.VapidPrivateKey
	}

	id := sub.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO subscriptions (id, label, channel, telegramChatId, pushEndpoint, p256dh, auth, vapidPrivateKey)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, sub.Label, sub.Channel, telegramChatID, pushEndpoint, p256dh, auth, vapidPrivateKey)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) GetSubscriptions(ctx context.Context) ([]Subscription, error) {
	return s.query(ctx, selectColumns+` ORDER BY createdAt`)
}

func (s *Store) GetSubscriptionsByChannel(ctx context.Context, channel Channel) ([]Subscription, error) {
	return s.query(ctx, selectColumns+` WHERE channel = ? ORDER BY createdAt`, channel)
}

func (s *Store) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	subs, err := s.query(ctx, selectColumns+` WHERE id = ?`, subscriptionID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ErrNotFound
	}
	return &subs[0], nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, subscriptionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSubscriptionsByChannel(ctx context.Context, channel Channel) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM subscriptions WHERE channel = ?`, channel)
	return err
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Subscription, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscriptions []Subscription
	for rows.Next() {
		var sub Subscription
		var label, telegramChatID, pushEndpoint, p256dh, auth, vapidPrivateKey sql.NullString

		if err := rows.Scan(&sub.ID, &label, &sub.Channel, &telegramChatID, &pushEndpoint, &p256dh, &auth, &vapidPrivateKey, &sub.CreatedAt); err != nil {
			return nil, err
		}

		sub.Label = label.String
		if telegramChatID.Valid {
			sub.Telegram = &TelegramSubscription{
				ChatID: telegramChatID.String,
			}
		}
		if pushEndpoint.Valid {
			sub.WebPush = &WebPushSubscription{
				Endpoint:        pushEndpoint.String,
				P256dh:          p256dh.String,
				Auth:            auth.String,
				VapidPrivateKey: vapidPrivateKey.String,
			}
		}

		subscriptions = append(subscriptions, sub)
	}

	return subscriptions, rows.Err()
}
