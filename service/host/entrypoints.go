package host

import (
	"context"
	"errors"

	"courier/service/bridge"
	"courier/service/delivery"
	"courier/service/keepalive"
	"courier/service/metrics"
	"courier/service/payload"
	"courier/service/surface"
)

type Receipt struct {
	ID          string
	MessageType payload.MessageType
	Show        bool
	KeepAlive   bool
	Delivered   bool
}

// OnMessageReceived normalizes an incoming push, presents it when the
// decision says so and hands the message event to the consumer.
func (a *App) OnMessageReceived(ctx context.Context, raw payload.RawPayload) (Receipt, error) {
	var rc Receipt
	err := a.guard(ctx, "message", func() error {
		var err error
		rc, err = a.receive(ctx, raw)
		return err
	})
	return rc, err
}

func (a *App) receive(ctx context.Context, raw payload.RawPayload) (Receipt, error) {
	intent, err := a.normalizer.Normalize(raw)
	if errors.Is(err, payload.ErrEmpty) {
		metrics.PayloadsTotal.WithLabelValues("dropped").Inc()
		a.logger.Warn("Dropped empty payload", "messageId", raw.MessageID, "from", raw.From)
		return Receipt{}, nil
	}
	if err != nil {
		return Receipt{}, err
	}
	metrics.PayloadsTotal.WithLabelValues("accepted").Inc()

	snap := a.Snapshot()
	decision := a.engine.Decide(intent, snap)
	rc := Receipt{ID: intent.ID, MessageType: intent.MessageType, Show: decision.Show}

	if keepalive.Required(decision.Show, intent.HasActions(), snap) {
		a.KeepAlive.Start(ctx, keepalive.StartOptions{})
		rc.KeepAlive = true
	}

	ev := delivery.MessageEvent(intent, decision.Show)

	if decision.Show {
		err := a.Surface.Present(ctx, surface.Notification{
			ID:         intent.ID,
			Title:      intent.Title,
			Body:       intent.Body,
			BodyIsHTML: intent.BodyIsHTML,
			Decision:   decision,
			Extras:     ev,
		})
		if err != nil {
			return rc, err
		}
	}

	switch err := a.Bridge.Publish(ev); {
	case err == nil:
		rc.Delivered = true
	case errors.Is(err, bridge.ErrNotRegistered):
		a.logger.Debug("No consumer registered for message event", "id", intent.ID)
	default:
		a.logger.Warn("Failed to hand message event to consumer", "id", intent.ID, "error", err)
	}

	return rc, nil
}

// OnInteraction routes a tap or action press. Interactions that arrive with
// only ids are completed from the ledger.
func (a *App) OnInteraction(ctx context.Context, in delivery.Interaction) (delivery.Outcome, error) {
	if in.NotificationID == "" && in.ActionID == "" {
		return delivery.Outcome{}, delivery.ErrInvalidInteraction
	}

	var out delivery.Outcome
	err := a.guard(ctx, "interaction", func() error {
		a.complete(ctx, &in)

		var err error
		out, err = a.Router.Route(ctx, a.Snapshot(), in)
		return err
	})
	return out, err
}

func (a *App) complete(ctx context.Context, in *delivery.Interaction) {
	if in.NotificationID == "" {
		return
	}

	rec, err := a.Surface.Lookup(ctx, in.NotificationID)
	if err != nil {
		if !surface.IsNotFound(err) {
			a.logger.Warn("Failed to look up notification", "id", in.NotificationID, "error", err)
		}
		return
	}

	if len(in.Extras) == 0 {
		in.Extras = rec.Extras
	}
	if !in.RequiresInput && in.ActionID != "" {
		for _, d := range rec.Actions {
			if d.ID == in.ActionID {
				in.RequiresInput = d.RequiresInput
				break
			}
		}
	}
}

// OnTaskRemoved re-arms the keep-alive task when the application's task is
// removed while one is active.
func (a *App) OnTaskRemoved(ctx context.Context) bool {
	var resumed bool
	_ = a.guard(ctx, "task-removed", func() error {
		resumed = a.KeepAlive.Resume()
		return nil
	})
	return resumed
}

// OnNewToken forwards a refreshed push token to the consumer.
func (a *App) OnNewToken(ctx context.Context, token string) error {
	return a.guard(ctx, "token", func() error {
		err := a.Bridge.Publish(delivery.TokenEvent(token))
		if errors.Is(err, bridge.ErrNotRegistered) {
			a.logger.Debug("No consumer registered for token event")
			return nil
		}
		return err
	})
}
