package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"courier/service/bridge"
	"courier/service/util"
)

const consumerHeartbeat = 25 * time.Second

// streamConsumer buffers events for one event-stream connection. Receive never
// blocks; a full or closed buffer is reported so the bridge queues instead.
type streamConsumer struct {
	mu     sync.Mutex
	closed bool
	events chan bridge.Event
}

func newStreamConsumer(size int) *streamConsumer {
	if size <= 0 {
		size = 1
	}
	return &streamConsumer{events: make(chan bridge.Event, size)}
}

func (c *streamConsumer) Receive(ev bridge.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return bridge.ErrConsumerBusy
	}
	select {
	case c.events <- ev:
		return nil
	default:
		return bridge.ErrConsumerBusy
	}
}

// close stops accepting events and returns the ones never written out.
func (c *streamConsumer) close() []bridge.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	var pending []bridge.Event
	for {
		select {
		case ev := <-c.events:
			pending = append(pending, ev)
		default:
			return pending
		}
	}
}

func (s *Server) handleConsumerEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		util.JSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	consumer := newStreamConsumer(s.cfg.ConsumerQueueSize)
	session, detach := s.app.AttachConsumer(consumer)

	// unsent is the event whose write failed; it goes back ahead of the buffer.
	var unsent []bridge.Event
	defer func() {
		returned := append(unsent, consumer.close()...)
		detach()
		if err := s.app.Bridge.Return(returned); err != nil {
			s.logger.Warn("Dropped undelivered consumer events", "session", session, "count", len(returned), "error", err)
		} else if len(returned) > 0 {
			s.logger.Debug("Returned undelivered consumer events", "session", session, "count", len(returned))
		}
	}()

	if _, err := fmt.Fprintf(w, ": session %s\n\n", session); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(consumerHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_, _ = w.Write([]byte(":\n\n"))
			flusher.Flush()
		case ev := <-consumer.events:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("Failed to encode consumer event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev[bridge.KeyEventType], data); err != nil {
				unsent = []bridge.Event{ev}
				return
			}
			flusher.Flush()
		}
	}
}

// handleUnregisterConsumer drops the consumer registration; later events are
// no longer queued for it.
func (s *Server) handleUnregisterConsumer(w http.ResponseWriter, r *http.Request) {
	s.app.Bridge.Unregister()
	w.WriteHeader(http.StatusNoContent)
}
