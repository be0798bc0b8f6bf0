package presentation

import (
	"log/slog"

	"courier/service/action"
	"courier/service/lifecycle"
	"courier/service/payload"
)

// Channels reports which notification channels the host has created.
type Channels interface {
	ChannelExists(id string) bool
}

type ChannelSet map[string]bool

func (c ChannelSet) ChannelExists(id string) bool {
	return c[id]
}

type Decision struct {
	Show       bool
	ChannelID  string
	SmallIcon  Icon
	LargeIcon  Icon
	Color      string
	Sound      string
	Light      *Light
	Vibrate    []int64
	Priority   int
	Visibility int
	ImageURL   string
	ImageType  payload.ImageType
	Actions    []action.Descriptor
}

type Options struct {
	Resources        Resources
	Channels         Channels
	DefaultChannelID string
	AccentColor      string
}

type Engine struct {
	opts   Options
	logger *slog.Logger
}

func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.DefaultChannelID == "" {
		opts.DefaultChannelID = "fcm_default_channel"
	}
	return &Engine{opts: opts, logger: logger}
}

// ShouldPresent decides whether the intent gets a visible notification.
// Plain notifications are suppressed while a listening consumer is in the
// foreground; anything with action buttons is always shown.
func ShouldPresent(intent payload.Intent, snap lifecycle.Snapshot) bool {
	if !intent.HasContent() {
		return false
	}
	return snap.InBackground() ||
		!snap.HasRegisteredConsumer ||
		intent.ForegroundOverride ||
		intent.HasActions()
}

func (e *Engine) Decide(intent payload.Intent, snap lifecycle.Snapshot) Decision {
	d := Decision{
		Show:       ShouldPresent(intent, snap),
		ChannelID:  e.channel(intent.ChannelID),
		SmallIcon:  ResolveIcon(e.opts.Resources, intent.Icon),
		LargeIcon:  ResolveLargeIcon(e.opts.Resources, intent.Icon),
		Color:      e.opts.AccentColor,
		Sound:      intent.Sound,
		Priority:   parseBounded(intent.Priority, PriorityMax, PriorityMin, PriorityMax),
		Visibility: parseBounded(intent.Visibility, VisibilityPublic, VisibilitySecret, VisibilityPublic),
		ImageURL:   intent.ImageURL,
		Actions:    intent.Actions(),
	}

	if intent.Color != "" {
		if ValidColor(intent.Color) {
			d.Color = intent.Color
		} else {
			e.logger.Warn("Ignoring invalid color", "id", intent.ID, "color", intent.Color)
		}
	}

	if intent.Light != "" {
		if light, ok := ParseLight(intent.Light); ok {
			d.Light = &light
		} else {
			e.logger.Warn("Ignoring invalid light setting", "id", intent.ID, "light", intent.Light)
		}
	}

	if intent.Vibrate != "" {
		if pattern, ok := ParseVibrate(intent.Vibrate); ok {
			d.Vibrate = pattern
		} else {
			e.logger.Warn("Ignoring invalid vibrate pattern", "id", intent.ID, "vibrate", intent.Vibrate)
		}
	}

	switch intent.ImageType {
	case payload.ImageCircle, payload.ImageBigPicture:
		d.ImageType = intent.ImageType
	}

	e.logger.Debug("Presentation decided",
		"id", intent.ID,
		"show", d.Show,
		"channel", d.ChannelID,
		"smallIcon", d.SmallIcon.Name,
		"largeIcon", d.LargeIcon.Name,
		"priority", d.Priority,
		"visibility", d.Visibility,
		"actions", len(d.Actions))

	return d
}

func (e *Engine) channel(id string) string {
	if id == "" || e.opts.Channels == nil || !e.opts.Channels.ChannelExists(id) {
		return e.opts.DefaultChannelID
	}
	return id
}
