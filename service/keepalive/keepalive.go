// Package keepalive buys the process a short, bounded window of schedulability
// after an actionable notification is shown, so the interaction callback can
// still be delivered in-process.
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"courier/service/lifecycle"
	"courier/service/metrics"
)

const DefaultTimeout = 3 * time.Second

// Launcher opens the host application's main entry point.
type Launcher interface {
	Launch(ctx context.Context, extras map[string]string) error
}

type StartOptions struct {
	// LaunchApp asks the coordinator to open the application once, e.g. for an
	// app-opening action whose handler could not launch it directly.
	LaunchApp bool
	Extras    map[string]string
}

// Required reports whether a keep-alive task should accompany a presented notification.
func Required(show, hasActions bool, snap lifecycle.Snapshot) bool {
	return show && hasActions && !snap.ForegroundWithConsumer()
}

type Coordinator struct {
	timeout  time.Duration
	launcher Launcher
	logger   *slog.Logger

	mu   sync.Mutex
	task *task
}

type task struct {
	deadline time.Time
	timer    *time.Timer
	done     chan struct{}
	once     sync.Once
}

func (t *task) finish() {
	t.once.Do(func() { close(t.done) })
}

func New(timeout time.Duration, launcher Launcher, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		timeout:  timeout,
		launcher: launcher,
		logger:   logger,
	}
}

// Start arms the keep-alive task. Starting while a task is active does not
// move its deadline. It reports whether a new task was armed.
func (c *Coordinator) Start(ctx context.Context, opts StartOptions) bool {
	c.mu.Lock()
	started := c.task == nil
	if started {
		c.task = c.arm()
	}
	deadline := c.task.deadline
	c.mu.Unlock()

	if started {
		metrics.KeepAliveStartsTotal.WithLabelValues("start").Inc()
		c.logger.Debug("Keep-alive started", "timeout", c.timeout, "deadline", deadline)
	} else {
		c.logger.Debug("Keep-alive already active", "deadline", deadline)
	}

	if opts.LaunchApp {
		c.launch(ctx, opts.Extras)
	}

	return started
}

// Resume re-arms the task after the host removed it abruptly. Each call
// corresponds to one removal event and re-arms at most once.
func (c *Coordinator) Resume() bool {
	c.mu.Lock()
	old := c.task
	if old == nil {
		c.mu.Unlock()
		return false
	}
	old.timer.Stop()
	c.task = c.arm()
	deadline := c.task.deadline
	c.mu.Unlock()

	old.finish()
	metrics.KeepAliveStartsTotal.WithLabelValues("resume").Inc()
	c.logger.Debug("Keep-alive re-armed after task removal", "deadline", deadline)
	return true
}

func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task != nil
}

func (c *Coordinator) Deadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task == nil {
		return time.Time{}, false
	}
	return c.task.deadline, true
}

// Done returns a channel closed when the current task ends. With no active
// task the channel is already closed.
func (c *Coordinator) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.task.done
}

func (c *Coordinator) Stop() {
	c.mu.Lock()
	t := c.task
	c.task = nil
	c.mu.Unlock()

	if t != nil {
		t.timer.Stop()
		t.finish()
	}
}

func (c *Coordinator) arm() *task {
	t := &task{
		deadline: time.Now().Add(c.timeout),
		done:     make(chan struct{}),
	}
	t.timer = time.AfterFunc(c.timeout, func() { c.expire(t) })
	return t
}

func (c *Coordinator) expire(t *task) {
	c.mu.Lock()
	if c.task == t {
		c.task = nil
	}
	c.mu.Unlock()

	t.finish()
	c.logger.Debug("Keep-alive stopped after timeout", "timeout", c.timeout)
}

func (c *Coordinator) launch(ctx context.Context, extras map[string]string) {
	if c.launcher == nil {
		c.logger.Warn("Launch requested but no launcher is available")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.launcher.Launch(ctx, extras); err != nil {
		c.logger.Error("Failed to launch application", "error", err)
		return
	}
	c.logger.Debug("Launched application from keep-alive task")
}
