package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"courier/service/action"
	"courier/service/bridge"
	"courier/service/lifecycle"
	"courier/service/metrics"
)

type Path string

const (
	PathDirect    Path = "direct"
	PathQueued    Path = "queued"
	PathFallback  Path = "fallback"
	PathDropped   Path = "dropped"
	PathDuplicate Path = "duplicate"
	PathLaunch    Path = "launch"
)

type Cancellation int

const (
	Cancelled Cancellation = iota
	AlreadyCancelled
	NotPresented
)

// Canceller withdraws a presented notification. It must report AlreadyCancelled
// for every caller but the first, which is how duplicate taps are detected.
type Canceller interface {
	Cancel(ctx context.Context, notificationID string) (Cancellation, error)
}

type Launcher interface {
	Launch(ctx context.Context, extras map[string]string) error
}

type Bridge interface {
	Deliver(ev bridge.Event) error
	Enqueue(ev bridge.Event) error
	Registered() bool
}

// Fallback delivers a result straight to the backend when no in-process
// consumer can take it.
type Fallback interface {
	Replay(ctx context.Context, result ActionResult)
}

type Outcome struct {
	Path     Path
	Kind     action.Kind
	Launched bool
	Event    bridge.Event
}

type Router struct {
	canceller Canceller
	bridge    Bridge
	launcher  Launcher
	fallback  Fallback
	logger    *slog.Logger

	wg sync.WaitGroup
}

func NewRouter(canceller Canceller, b Bridge, launcher Launcher, fallback Fallback, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		canceller: canceller,
		bridge:    b,
		launcher:  launcher,
		fallback:  fallback,
		logger:    logger,
	}
}

// Route cancels the notification, then hands the result to the consumer, the
// pending queue or the fallback client, in that order of preference.
func (r *Router) Route(ctx context.Context, snap lifecycle.Snapshot, in Interaction) (Outcome, error) {
	if in.NotificationID == "" && in.ActionID == "" {
		return Outcome{}, ErrInvalidInteraction
	}

	kind := in.Kind()
	log := r.logger.With("notification_id", in.NotificationID, "action", in.ActionID, "kind", kind.String())

	if duplicate := r.cancel(ctx, in.NotificationID, log); duplicate {
		log.Debug("Ignoring duplicate interaction")
		metrics.DeliveriesTotal.WithLabelValues(string(PathDuplicate)).Inc()
		return Outcome{Path: PathDuplicate, Kind: kind}, nil
	}

	result := NewActionResult(in)
	ev := ActionEvent(result, snap)
	out := Outcome{Kind: kind, Event: ev}

	if in.IsTap() {
		out.Path = r.routeTap(ev, snap, log)
	} else {
		out.Path = r.routeAction(ctx, ev, result, snap, log)
	}
	metrics.DeliveriesTotal.WithLabelValues(string(out.Path)).Inc()

	if kind == action.AppOpening {
		out.Launched = r.launch(ctx, result.Extras, log)
	}

	return out, nil
}

// Wait blocks until in-flight fallback deliveries finish.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) cancel(ctx context.Context, id string, log *slog.Logger) bool {
	if id == "" || r.canceller == nil {
		return false
	}

	state, err := r.canceller.Cancel(ctx, id)
	if err != nil {
		log.Warn("Failed to cancel notification", "error", err)
		return false
	}

	switch state {
	case AlreadyCancelled:
		return true
	case NotPresented:
		log.Debug("Notification was not presented by this process")
	}
	return false
}

// Taps never fall back: opening the application is the delivery.
func (r *Router) routeTap(ev bridge.Event, snap lifecycle.Snapshot, log *slog.Logger) Path {
	if snap.HasRegisteredConsumer {
		if err := r.bridge.Deliver(ev); err == nil {
			return PathDirect
		}
	}
	if r.bridge.Registered() {
		if err := r.bridge.Enqueue(ev); err == nil {
			return PathQueued
		}
	}
	log.Debug("Tap delivered by launch only")
	return PathLaunch
}

func (r *Router) routeAction(ctx context.Context, ev bridge.Event, result ActionResult, snap lifecycle.Snapshot, log *slog.Logger) Path {
	directFailed := false
	if snap.HasRegisteredConsumer {
		err := r.bridge.Deliver(ev)
		if err == nil {
			log.Debug("Delivered action directly")
			return PathDirect
		}
		directFailed = true
		log.Debug("Direct delivery failed, queueing", "error", err)
	}

	if directFailed || r.bridge.Registered() {
		err := r.bridge.Enqueue(ev)
		if err == nil {
			log.Debug("Queued action for consumer")
			return PathQueued
		}
		if !errors.Is(err, bridge.ErrNotRegistered) {
			log.Warn("Failed to queue action", "error", err)
		}
	}

	if r.fallback == nil || !result.HasFallbackCredentials() {
		log.Warn("Dropping action result: no consumer and no fallback credentials")
		return PathDropped
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.fallback.Replay(context.WithoutCancel(ctx), result)
	}()
	log.Debug("Handed action to fallback client")
	return PathFallback
}

func (r *Router) launch(ctx context.Context, extras map[string]string, log *slog.Logger) bool {
	if r.launcher == nil {
		return false
	}
	if err := r.launcher.Launch(ctx, extras); err != nil {
		log.Warn("Failed to launch application", "error", err)
		return false
	}
	return true
}
