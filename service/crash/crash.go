// Package crash collects errors and panics caught at the outermost boundary
// of each entry point.
package crash

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"courier/service/metrics"
)

type Report struct {
	Context string
	Err     error
	Panic   bool
	Stack   string
	Time    time.Time
}

type Sink interface {
	Report(ctx context.Context, r Report)
}

// LogSink logs reports and keeps the most recent ones for the health endpoint.
type LogSink struct {
	logger *slog.Logger
	keep   int

	mu     sync.Mutex
	recent []Report
}

func NewLogSink(logger *slog.Logger, keep int) *LogSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if keep <= 0 {
		keep = 20
	}
	return &LogSink{logger: logger, keep: keep}
}

func (s *LogSink) Report(_ context.Context, r Report) {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	metrics.CrashReportsTotal.WithLabelValues(r.Context).Inc()

	attrs := []any{"context", r.Context, "error", r.Err}
	if r.Panic {
		attrs = append(attrs, "stack", r.Stack)
	}
	s.logger.Error("Entry point failed", attrs...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, r)
	if len(s.recent) > s.keep {
		s.recent = s.recent[len(s.recent)-s.keep:]
	}
}

func (s *LogSink) Recent() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Report(nil), s.recent...)
}

// Guard runs fn and reports a returned error or a panic under name. It never
// re-raises.
func Guard(ctx context.Context, sink Sink, name string, fn func() error) (failed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			sink.Report(ctx, Report{
				Context: name,
				Err:     fmt.Errorf("panic: %v", rec),
				Panic:   true,
				Stack:   string(debug.Stack()),
			})
			failed = true
		}
	}()

	if err := fn(); err != nil {
		sink.Report(ctx, Report{Context: name, Err: err})
		return true
	}
	return false
}
