package bridge

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNoConsumer    = errors.New("no consumer attached")
	ErrNotRegistered = errors.New("no consumer registered in this process")
	ErrConsumerBusy  = errors.New("consumer cannot accept events")
)

// Event is the flat string map handed to the application.
type Event map[string]string

const (
	KeyActionEvent = "_isActionEvent"
	KeyEventType   = "eventType"
)

func (e Event) IsActionEvent() bool {
	return e[KeyActionEvent] == "true"
}

// Consumer is an attached in-process listener. Receive must not block.
type Consumer interface {
	Receive(ev Event) error
}

type ConsumerFunc func(ev Event) error

func (f ConsumerFunc) Receive(ev Event) error { return f(ev) }

// Bridge hands events to the attached consumer and buffers them while the
// application has registered for events but is not listening right now.
// Buffered events are flushed on the next Attach, action events first.
type Bridge struct {
	mu         sync.Mutex
	consumer   Consumer
	session    string
	registered bool
	queue      []Event
	maxQueue   int
	logger     *slog.Logger
}

func New(maxQueue int, logger *slog.Logger) *Bridge {
	if maxQueue <= 0 {
		maxQueue = 256
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{maxQueue: maxQueue, logger: logger}
}

// Attach makes c the current consumer, flushing anything queued. The returned
// function detaches c; the registration survives so later events are queued.
func (b *Bridge) Attach(c Consumer) (session string, detach func()) {
	session = uuid.NewString()

	b.mu.Lock()
	b.consumer = c
	b.session = session
	b.registered = true
	pending := b.drainLocked()
	b.mu.Unlock()

	b.logger.Info("Consumer attached", "session", session, "pending", len(pending))

	for i, ev := range pending {
		if err := c.Receive(ev); err != nil {
			b.logger.Warn("Consumer rejected queued event, re-queueing", "session", session, "error", err)
			b.requeue(pending[i:])
			break
		}
	}

	var once sync.Once
	detach = func() {
		once.Do(func() {
			b.mu.Lock()
			if b.session == session {
				b.consumer = nil
				b.session = ""
			}
			b.mu.Unlock()
			b.logger.Info("Consumer detached", "session", session)
		})
	}
	return session, detach
}

// Unregister drops the registration and any queued events.
func (b *Bridge) Unregister() {
	b.mu.Lock()
	dropped := len(b.queue)
	b.consumer = nil
	b.session = ""
	b.registered = false
	b.queue = nil
	b.mu.Unlock()

	if dropped > 0 {
		b.logger.Warn("Dropped queued events on unregister", "count", dropped)
	}
}

func (b *Bridge) HasConsumer() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumer != nil
}

func (b *Bridge) Registered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registered
}

func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Deliver hands ev to the attached consumer synchronously.
func (b *Bridge) Deliver(ev Event) error {
	b.mu.Lock()
	c := b.consumer
	b.mu.Unlock()

	if c == nil {
		return ErrNoConsumer
	}
	if err := c.Receive(ev); err != nil {
		return errors.Join(ErrConsumerBusy, err)
	}
	return nil
}

// Enqueue holds ev until a consumer attaches. It fails when nothing in the
// process ever registered for events.
func (b *Bridge) Enqueue(ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.registered {
		return ErrNotRegistered
	}

	if len(b.queue) >= b.maxQueue {
		dropAt := b.oldestDroppableLocked()
		b.logger.Warn("Bridge queue full, dropping oldest event", "max", b.maxQueue)
		b.queue = append(b.queue[:dropAt], b.queue[dropAt+1:]...)
	}
	b.queue = append(b.queue, cloneEvent(ev))
	return nil
}

// Return puts events a consumer accepted but never handed on back at the head
// of the queue, ahead of anything queued since.
func (b *Bridge) Return(evs []Event) error {
	if len(evs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.registered {
		return ErrNotRegistered
	}

	returned := make([]Event, 0, len(evs)+len(b.queue))
	for _, ev := range evs {
		returned = append(returned, cloneEvent(ev))
	}
	b.queue = append(returned, b.queue...)

	for len(b.queue) > b.maxQueue {
		dropAt := b.oldestDroppableLocked()
		b.logger.Warn("Bridge queue full, dropping oldest event", "max", b.maxQueue)
		b.queue = append(b.queue[:dropAt], b.queue[dropAt+1:]...)
	}
	return nil
}

// Publish delivers to the attached consumer, falling back to the queue.
func (b *Bridge) Publish(ev Event) error {
	if err := b.Deliver(ev); err == nil {
		return nil
	}
	return b.Enqueue(ev)
}

func (b *Bridge) drainLocked() []Event {
	if len(b.queue) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.queue))
	for _, ev := range b.queue {
		if ev.IsActionEvent() {
			out = append(out, ev)
		}
	}
	for _, ev := range b.queue {
		if !ev.IsActionEvent() {
			out = append(out, ev)
		}
	}
	b.queue = nil
	return out
}

func (b *Bridge) requeue(evs []Event) {
	b.mu.Lock()
	b.queue = append(append([]Event{}, evs...), b.queue...)
	b.mu.Unlock()
}

// oldestDroppableLocked prefers dropping plain message events over action events.
func (b *Bridge) oldestDroppableLocked() int {
	for i, ev := range b.queue {
		if !ev.IsActionEvent() {
			return i
		}
	}
	return 0
}

func cloneEvent(ev Event) Event {
	out := make(Event, len(ev))
	for k, v := range ev {
		out[k] = v
	}
	return out
}
