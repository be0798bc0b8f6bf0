// Package surface is where presented notifications live: a ledger of what is
// showing plus the render targets that actually display it.
package surface

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"courier/service/crash"
	"courier/service/delivery"
	"courier/service/metrics"
	"courier/service/presentation"
)

type Notification struct {
	ID         string
	Title      string
	Body       string
	BodyIsHTML bool
	Decision   presentation.Decision
	Extras     map[string]string
}

// Renderer displays notifications on one kind of target.
type Renderer interface {
	Name() string
	Render(ctx context.Context, n Notification) error
	Withdraw(ctx context.Context, id string) error
}

// Service keeps the ledger transition on the caller's goroutine and does the
// target work in the background. Work for one notification id runs in order.
type Service struct {
	ledger *Ledger
	logger *slog.Logger
	sink   crash.Sink

	mu        sync.RWMutex
	renderers []Renderer

	jobsMu sync.Mutex
	tails  map[string]chan struct{}
	wg     sync.WaitGroup
}

func NewService(ledger *Ledger, logger *slog.Logger, renderers ...Renderer) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		ledger:    ledger,
		logger:    logger,
		sink:      crash.NewLogSink(logger, 0),
		renderers: renderers,
		tails:     make(map[string]chan struct{}),
	}
}

// SetCrashSink routes panics raised by renderers to sink.
func (s *Service) SetCrashSink(sink crash.Sink) {
	if sink != nil {
		s.sink = sink
	}
}

// Wait blocks until queued render and withdraw work has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// schedule runs fn after any earlier work for the same id.
func (s *Service) schedule(ctx context.Context, id, name string, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	done := make(chan struct{})

	s.jobsMu.Lock()
	prev := s.tails[id]
	s.tails[id] = done
	s.jobsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.jobsMu.Lock()
			if s.tails[id] == done {
				delete(s.tails, id)
			}
			s.jobsMu.Unlock()
			close(done)
		}()

		if prev != nil {
			<-prev
		}
		crash.Guard(ctx, s.sink, name, func() error {
			fn(ctx)
			return nil
		})
	}()
}

func (s *Service) AddRenderer(r Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderers = append(s.renderers, r)
}

func (s *Service) snapshot() []Renderer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Renderer(nil), s.renderers...)
}

// Present records the notification and renders it on every target in the
// background. A failing target does not stop the others; only a ledger failure
// is returned.
func (s *Service) Present(ctx context.Context, n Notification) error {
	err := s.ledger.Present(ctx, Record{
		ID:      n.ID,
		Title:   n.Title,
		Body:    n.Body,
		Actions: n.Decision.Actions,
		Extras:  n.Extras,
	})
	if err != nil {
		return err
	}
	metrics.PresentedTotal.Inc()

	renderers := s.snapshot()
	s.schedule(ctx, n.ID, "render", func(ctx context.Context) {
		failures := 0
		for _, r := range renderers {
			if err := r.Render(ctx, n); err != nil {
				s.logger.Warn("Failed to render notification", "renderer", r.Name(), "id", n.ID, "error", err)
				failures++
			}
		}
		s.logger.Debug("Presented notification", "id", n.ID, "actions", len(n.Decision.Actions), "render_failures", failures)
	})
	return nil
}

// Cancel satisfies delivery.Canceller. Targets are only asked to withdraw on
// the transition, so duplicates never reach them.
func (s *Service) Cancel(ctx context.Context, id string) (delivery.Cancellation, error) {
	state, err := s.ledger.Cancel(ctx, id)
	if err != nil || state != delivery.Cancelled {
		return state, err
	}

	renderers := s.snapshot()
	s.schedule(ctx, id, "withdraw", func(ctx context.Context) {
		for _, r := range renderers {
			if err := r.Withdraw(ctx, id); err != nil {
				s.logger.Warn("Failed to withdraw notification", "renderer", r.Name(), "id", id, "error", err)
			}
		}
	})
	return state, nil
}

// Lookup returns the ledger record, so that interactions arriving with only an
// id can be routed with the full payload.
func (s *Service) Lookup(ctx context.Context, id string) (*Record, error) {
	return s.ledger.Get(ctx, id)
}

func (s *Service) Active(ctx context.Context) ([]string, error) {
	return s.ledger.Active(ctx)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
