package telegram

import (
	"context"
	"log/slog"

	"courier/service/delivery"

	"github.com/mymmrac/telego"
)

// InteractionHandler receives taps and replies collected from chats.
type InteractionHandler func(ctx context.Context, in delivery.Interaction)

type updateSource interface {
	Updates(ctx context.Context) (<-chan telego.Update, error)
}

// Poller turns button presses into interactions. Buttons for actions that
// need input first ask for a reply; the reply text completes the interaction.
type Poller struct {
	source  updateSource
	sender  *Sender
	handler InteractionHandler
	logger  *slog.Logger
}

func NewPoller(source updateSource, sender *Sender, handler InteractionHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{source: source, sender: sender, handler: handler, logger: logger}
}

// Run blocks until ctx is cancelled or the update channel closes.
func (p *Poller) Run(ctx context.Context) error {
	updates, err := p.source.Updates(ctx)
	if err != nil {
		return err
	}

	p.logger.Info("Telegram poller started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.handle(ctx, update)
		}
	}
}

func (p *Poller) handle(ctx context.Context, update telego.Update) {
	switch {
	case update.CallbackQuery != nil:
		p.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		p.handleMessage(ctx, update.Message)
	}
}

func (p *Poller) handleCallback(ctx context.Context, q *telego.CallbackQuery) {
	in, ok := decodeCallback(q.Data)
	if !ok {
		p.logger.Debug("Ignoring unknown callback", "data", q.Data)
		p.answer(ctx, q.ID, "")
		return
	}

	desc, messages, known := p.sender.lookup(in.NotificationID, in.ActionID)
	if !known {
		// Already withdrawn or sent by an earlier process; the ledger decides.
		p.answer(ctx, q.ID, "")
		p.handler(ctx, in)
		return
	}

	if !desc.RequiresInput {
		p.answer(ctx, q.ID, desc.Title)
		p.handler(ctx, in)
		return
	}

	chatID := promptChat(q.From.ID, messages)
	text := desc.Placeholder()
	markup := &telego.ForceReply{ForceReply: true, InputFieldPlaceholder: desc.Placeholder()}
	messageID, err := p.sender.bot.SendMessage(ctx, chatID, text, markup)
	if err != nil {
		p.logger.Warn("Failed to prompt for reply", "chatID", chatID, "error", err)
		p.answer(ctx, q.ID, "")
		return
	}
	p.sender.addPrompt(chatID, messageID, prompt{notificationID: in.NotificationID, actionID: in.ActionID})
	p.answer(ctx, q.ID, "")
}

func (p *Poller) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.ReplyToMessage == nil {
		return
	}

	pr, ok := p.sender.takePrompt(msg.Chat.ID, msg.ReplyToMessage.MessageID)
	if !ok {
		return
	}

	p.handler(ctx, delivery.Interaction{
		NotificationID: pr.notificationID,
		ActionID:       pr.actionID,
		RequiresInput:  true,
		ReplyText:      msg.Text,
	})
}

func (p *Poller) answer(ctx context.Context, callbackID, text string) {
	if err := p.sender.bot.AnswerCallback(ctx, callbackID, text); err != nil {
		p.logger.Debug("Failed to answer callback", "error", err)
	}
}

// promptChat prefers the presser's private chat when the notification went
// there, otherwise the first chat it was sent to.
func promptChat(userID int64, messages []sentMessage) int64 {
	for _, m := range messages {
		if m.chatID == userID {
			return userID
		}
	}
	if len(messages) > 0 {
		return messages[0].chatID
	}
	return userID
}
