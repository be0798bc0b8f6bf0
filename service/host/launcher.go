package host

import (
	"context"
	"errors"
	"log/slog"

	"courier/service/bridge"
)

const EventLaunch = "launch"

// appLauncher asks the consumer application to come to the foreground by
// publishing a launch event, queued if the consumer is registered but away.
type appLauncher struct {
	bridge *bridge.Bridge
	logger *slog.Logger
}

func (l *appLauncher) Launch(ctx context.Context, extras map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := bridge.Event{}
	for k, v := range extras {
		ev[k] = v
	}
	ev[bridge.KeyEventType] = EventLaunch

	err := l.bridge.Publish(ev)
	if errors.Is(err, bridge.ErrNotRegistered) {
		l.logger.Debug("No consumer registered to launch")
		return nil
	}
	return err
}
