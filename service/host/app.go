// Package host owns the process-scoped objects of the delivery pipeline and
// exposes the entry points the transports call into.
package host

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"courier/service/bridge"
	"courier/service/config"
	"courier/service/crash"
	"courier/service/delivery"
	"courier/service/fallback"
	"courier/service/integration/telegram"
	"courier/service/integration/webpush"
	"courier/service/keepalive"
	"courier/service/lifecycle"
	"courier/service/payload"
	"courier/service/presentation"
	"courier/service/storage"
	"courier/service/subscription"
	"courier/service/surface"
	"courier/service/util"
)

var ErrEntryPointFailed = errors.New("entry point failed")

type Options struct {
	Config    *config.Config
	Logger    *slog.Logger
	Localizer payload.Localizer
	Resources presentation.Resources
	Channels  presentation.Channels
	Crash     crash.Sink
	// Renderers are added after the configured webpush and telegram targets.
	Renderers []surface.Renderer
	// FallbackTransport replaces the fallback client's dialing transport.
	FallbackTransport http.RoundTripper
}

// App is created once per process. Construction order is storage, surface,
// bridge, keep-alive, fallback, router; Close tears down in reverse.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	db            *sql.DB
	ledger        *surface.Ledger
	Subscriptions *subscription.Store
	Surface       *surface.Service
	Bridge        *bridge.Bridge
	Lifecycle     *lifecycle.Tracker
	KeepAlive     *keepalive.Coordinator
	Fallback      *fallback.Client
	Router        *delivery.Router
	Crash         crash.Sink

	normalizer *payload.Normalizer
	engine     *presentation.Engine

	telegramClient *telegram.Client
	telegramSender *telegram.Sender

	startTime time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sink := opts.Crash
	if sink == nil {
		sink = crash.NewLogSink(logger, 0)
	}

	db, err := storage.Open(cfg.StoragePath)
	if err != nil {
		return nil, util.LogError(logger, "Failed to open storage", err, "path", cfg.StoragePath)
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		Crash:     sink,
		Lifecycle: lifecycle.NewTracker(),
		startTime: time.Now(),
	}

	if err := a.build(opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(opts Options) error {
	cfg := a.cfg

	subs, err := subscription.NewStore(a.db)
	if err != nil {
		return util.LogError(a.logger, "Failed to create subscription store", err)
	}
	a.Subscriptions = subs

	sealer, err := surface.NewSealer(cfg.APIKey)
	if err != nil {
		return err
	}
	a.ledger, err = surface.NewLedger(a.db, sealer, a.logger.With("component", "ledger"))
	if err != nil {
		return util.LogError(a.logger, "Failed to create ledger", err)
	}
	a.Surface = surface.NewService(a.ledger, a.logger.With("component", "surface"))
	a.Surface.SetCrashSink(a.Crash)

	var reporter fallback.Reporter = fallback.LogReporter{Logger: a.logger.With("component", "status")}

	if cfg.EnableWebPush {
		a.Surface.AddRenderer(webpush.NewSender(subs, cfg.VAPIDSubscriber, a.logger.With("component", "webpush")))
	}
	if cfg.IsTelegramEnabled() {
		client, err := telegram.NewClient(cfg.TelegramBotToken)
		if err != nil {
			return err
		}
		a.telegramClient = client
		a.telegramSender = telegram.NewSender(client, subs, a.logger.With("component", "telegram"))
		a.Surface.AddRenderer(a.telegramSender)
		reporter = a.telegramSender
	}
	for _, r := range opts.Renderers {
		a.Surface.AddRenderer(r)
	}

	a.Bridge = bridge.New(cfg.ConsumerQueueSize, a.logger.With("component", "bridge"))
	launcher := &appLauncher{bridge: a.Bridge, logger: a.logger.With("component", "launcher")}
	a.KeepAlive = keepalive.New(cfg.KeepAliveTimeout, launcher, a.logger.With("component", "keepalive"))

	a.Fallback = fallback.New(fallback.Options{
		ConnectTimeout: cfg.FallbackConnectTimeout,
		ReadTimeout:    cfg.FallbackReadTimeout,
		Reporter:       reporter,
		Logger:         a.logger.With("component", "fallback"),
		Transport:      opts.FallbackTransport,
	})
	a.Router = delivery.NewRouter(
		a.Surface,
		a.Bridge,
		launcher,
		guardedFallback{app: a},
		a.logger.With("component", "router"),
	)

	a.normalizer = payload.NewNormalizer(opts.Localizer, a.logger.With("component", "normalizer"))
	a.engine = presentation.NewEngine(presentation.Options{
		Resources:        opts.Resources,
		Channels:         opts.Channels,
		DefaultChannelID: cfg.DefaultChannelID,
		AccentColor:      cfg.AccentColor,
	}, a.logger.With("component", "presentation"))

	return nil
}

// Start runs background work: the telegram poller and ledger pruning.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if a.telegramClient != nil {
		if err := a.seedTelegramChat(ctx); err != nil {
			a.logger.Warn("Failed to add configured telegram chat", "error", err)
		}
		poller := telegram.NewPoller(a.telegramClient, a.telegramSender, func(ctx context.Context, in delivery.Interaction) {
			if _, err := a.OnInteraction(ctx, in); err != nil {
				a.logger.Debug("Telegram interaction not routed", "error", err)
			}
		}, a.logger.With("component", "telegram"))

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := poller.Run(ctx); err != nil {
				a.Crash.Report(ctx, crash.Report{Context: "telegram-poller", Err: err})
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pruneLoop(ctx)
	}()

	return nil
}

func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
		a.KeepAlive.Stop()
		a.Router.Wait()
		a.Surface.Wait()
		a.Bridge.Unregister()
		err = a.db.Close()
	})
	return err
}

func (a *App) Uptime() time.Duration {
	return time.Since(a.startTime)
}

// Snapshot reads the process state used by presentation and routing. An
// active keep-alive task counts as a live background process.
func (a *App) Snapshot() lifecycle.Snapshot {
	l := a.Lifecycle.Liveness()
	if l == lifecycle.Unknown && a.KeepAlive.Active() {
		l = lifecycle.Background
	}
	return lifecycle.Snapshot{
		Liveness:              l,
		HasRegisteredConsumer: a.Bridge.HasConsumer(),
	}
}

func (a *App) AttachConsumer(c bridge.Consumer) (string, func()) {
	return a.Bridge.Attach(c)
}

func (a *App) seedTelegramChat(ctx context.Context) error {
	if a.cfg.TelegramChatID == "" {
		return nil
	}
	existing, err := a.Subscriptions.GetSubscriptionsByChannel(ctx, subscription.ChannelTelegram)
	if err != nil {
		return err
	}
	for _, s := range existing {
		if s.Telegram != nil && s.Telegram.ChatID == a.cfg.TelegramChatID {
			return nil
		}
	}
	_, err = a.Subscriptions.AddSubscription(ctx, subscription.Subscription{
		Label:    "configured",
		Channel:  subscription.ChannelTelegram,
		Telegram: &subscription.TelegramSubscription{ChatID: a.cfg.TelegramChatID},
	})
	return err
}

func (a *App) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().Add(-a.cfg.LedgerRetention)
		n, err := a.ledger.Prune(ctx, cutoff)
		if err != nil && ctx.Err() == nil {
			a.logger.Warn("Failed to prune ledger", "error", err)
		} else if n > 0 {
			a.logger.Debug("Pruned cancelled notifications", "count", n)
		}
		if a.telegramSender != nil {
			if n := a.telegramSender.Prune(cutoff); n > 0 {
				a.logger.Debug("Pruned telegram messages", "count", n)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// guard runs fn behind the crash boundary. Panics become ErrEntryPointFailed.
func (a *App) guard(ctx context.Context, name string, fn func() error) error {
	var err error
	failed := crash.Guard(ctx, a.Crash, name, func() error {
		err = fn()
		return err
	})
	if failed && err == nil {
		return ErrEntryPointFailed
	}
	return err
}

type guardedFallback struct {
	app *App
}

func (g guardedFallback) Replay(ctx context.Context, result delivery.ActionResult) {
	_ = g.app.guard(ctx, "fallback", func() error {
		g.app.Fallback.Replay(ctx, result)
		return nil
	})
}

// TelegramAccount returns the bot's username when telegram is enabled and the
// bot answers.
func (a *App) TelegramAccount(ctx context.Context) (string, bool) {
	if a.telegramClient == nil {
		return "", false
	}
	bot, err := a.telegramClient.GetMe(ctx)
	if err != nil {
		a.logger.Debug("Telegram bot unreachable", "error", err)
		return "", false
	}
	return "@" + bot.Username, true
}
