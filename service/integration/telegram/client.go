package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoutil"
)

var errNotInitialized = errors.New("telegram client not initialized")

// bot is the slice of the Bot API the renderer and poller use.
type bot interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup telego.ReplyMarkup) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type Client struct {
	bot *telego.Bot
}

func NewClient(token string) (*Client, error) {
	if token == "" {
		return nil, nil
	}

	b, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Client{bot: b}, nil
}

func (c *Client) GetMe(ctx context.Context) (*telego.User, error) {
	if c == nil || c.bot == nil {
		return nil, errNotInitialized
	}
	return c.bot.GetMe(ctx)
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup telego.ReplyMarkup) (int, error) {
	if c == nil || c.bot == nil {
		return 0, errNotInitialized
	}

	msg := telegoutil.Message(
		telegoutil.ID(chatID),
		text,
	).WithParseMode(telego.ModeHTML)
	if markup != nil {
		msg = msg.WithReplyMarkup(markup)
	}

	sent, err := c.bot.SendMessage(ctx, msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if c == nil || c.bot == nil {
		return errNotInitialized
	}
	return c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    telegoutil.ID(chatID),
		MessageID: messageID,
	})
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if c == nil || c.bot == nil {
		return errNotInitialized
	}
	return c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
}

// Updates starts long polling for messages and callback queries.
func (c *Client) Updates(ctx context.Context) (<-chan telego.Update, error) {
	if c == nil || c.bot == nil {
		return nil, errNotInitialized
	}
	return c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
}
