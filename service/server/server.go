package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"courier/service/config"
	"courier/service/host"
	"courier/service/integration/telegram"
	"courier/service/integration/webpush"
	"courier/service/subscription"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	cfg        *config.Config
	app        *host.App
	version    string
	logger     *slog.Logger
	router     *chi.Mux
	httpServer *http.Server
	stopOnce   sync.Once
}

func New(cfg *config.Config, version string, logger *slog.Logger) (*Server, error) {
	app, err := host.New(host.Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	return NewWithApp(cfg, app, version, logger), nil
}

// NewWithApp serves an already constructed app. The server owns it from here
// and closes it on Shutdown.
func NewWithApp(cfg *config.Config, app *host.App, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		cfg:     cfg,
		app:     app,
		version: version,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	auth := authMiddleware(s.cfg.APIKey)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))
	r.Use(securityHeadersMiddleware())
	r.Use(middleware.StripSlashes)
	r.Use(rateLimitMiddleware(s.cfg.RateLimit, time.Minute))

	r.Get("/health", s.handleHealth)
	r.With(auth).Handle("/metrics", promhttp.Handler())

	// The event stream stays open, so it is kept out of the timeout group.
	r.With(auth).Get("/api/v1/consumer/events", s.handleConsumerEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Use(middleware.Compress(5))

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/api/v1/push", s.handlePush)
			r.Post("/api/v1/interactions", s.handleInteraction)
			r.Post("/api/v1/lifecycle", s.handleLifecycle)
			r.Post("/api/v1/task-removed", s.handleTaskRemoved)
			r.Post("/api/v1/token", s.handleToken)
			r.Delete("/api/v1/consumer", s.handleUnregisterConsumer)
			r.Get("/api/v1/notifications", s.handleNotifications)
		})

		s.registerChannelRoutes(r, auth)
	})

	s.router = r
}

// registerChannelRoutes mounts subscription endpoints for the render targets
// this process actually delivers to.
func (s *Server) registerChannelRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	webPushOn, telegramOn := s.cfg.EnableWebPush, s.cfg.IsTelegramEnabled()

	for _, c := range []subscription.Channel{subscription.ChannelWebPush, subscription.ChannelTelegram} {
		if !c.IsAvailable(webPushOn, telegramOn) {
			s.logger.Debug(c.Label() + " subscriptions disabled")
			continue
		}
		logger := s.logger.With("component", c.String())
		switch c {
		case subscription.ChannelWebPush:
			webpush.RegisterRoutes(r, s.app.Subscriptions, logger, auth)
		case subscription.ChannelTelegram:
			telegram.RegisterRoutes(r, s.app.Subscriptions, logger, auth)
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start app: %w", err)
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info(fmt.Sprintf("Courier running on http://localhost:%d", s.cfg.Port))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) Shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Info("Shutting down server")

		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if e := s.httpServer.Shutdown(ctx); e != nil {
				err = fmt.Errorf("failed to shutdown http server: %w", e)
			}
		}

		if e := s.app.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("failed to close app: %w", e))
		}
	})
	return err
}
