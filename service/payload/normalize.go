package payload

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"strconv"

	"courier/service/action"
)

var ErrEmpty = errors.New("payload has no title, body or data")

// Localizer resolves localization keys against the host's string resources.
type Localizer interface {
	Localize(key string, args []string) (string, error)
}

type Normalizer struct {
	localizer Localizer
	logger    *slog.Logger
	randomID  func() string
}

func NewNormalizer(localizer Localizer, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{
		localizer: localizer,
		logger:    logger,
		randomID: func() string {
			return strconv.Itoa(rand.IntN(50) + 1)
		},
	}
}

// Normalize merges the notification and data blocks into an Intent. Data-block
// values win field by field. ErrEmpty is returned for payloads that carry
// nothing to show or deliver.
func (n *Normalizer) Normalize(raw RawPayload) (Intent, error) {
	data := raw.Data
	if data == nil {
		data = map[string]string{}
	}

	_, hasActions := data[KeyActions]

	intent := Intent{
		MessageType: MessageTypeData,
		From:        raw.From,
		CollapseKey: raw.CollapseKey,
		SentTime:    raw.SentTime,
		TTL:         raw.TTL,
	}

	if raw.Notification != nil {
		if !hasActions {
			// The transport id only names notification messages.
			intent.MessageType = MessageTypeNotification
			intent.ID = raw.MessageID
		}
		n.applyNotificationBlock(&intent, raw.Notification)
	}

	n.applyDataBlock(&intent, data)

	if !intent.HasContent() && len(data) == 0 {
		n.logger.Debug("Dropping empty payload", "messageId", raw.MessageID, "from", raw.From)
		return Intent{}, ErrEmpty
	}

	if intent.ID == "" {
		intent.ID = n.randomID()
	}

	intent.extras = maps.Clone(data)
	intent.actions = action.Parse(data[KeyActions], n.logger)

	n.logger.Debug("Normalized payload",
		"id", intent.ID,
		"messageType", intent.MessageType,
		"title", intent.Title,
		"actions", len(intent.actions),
		"from", intent.From)

	return intent, nil
}

func (n *Normalizer) applyNotificationBlock(intent *Intent, block *NotificationBlock) {
	intent.Title = n.localize(block.TitleLocKey, block.TitleLocArgs, block.Title)
	intent.Body = n.localize(block.BodyLocKey, block.BodyLocArgs, block.Body)
	intent.ChannelID = block.ChannelID
	intent.Sound = block.Sound
	intent.Color = block.Color
	intent.Icon = block.Icon
	intent.ImageURL = block.ImageURL
}

func (n *Normalizer) applyDataBlock(intent *Intent, data map[string]string) {
	if _, ok := data[KeyForeground]; ok {
		intent.ForegroundOverride = true
	}

	override := func(key string, dst *string) {
		if v, ok := data[key]; ok {
			*dst = v
		}
	}

	override(KeyTitle, &intent.Title)
	override(KeyBody, &intent.Body)
	override(KeyChannelID, &intent.ChannelID)
	override(KeyID, &intent.ID)
	override(KeySound, &intent.Sound)
	override(KeyVibrate, &intent.Vibrate)
	override(KeyLight, &intent.Light)
	override(KeyColor, &intent.Color)
	override(KeyIcon, &intent.Icon)
	override(KeyVisibility, &intent.Visibility)
	override(KeyPriority, &intent.Priority)
	override(KeyImage, &intent.ImageURL)

	if _, ok := data[KeyBodyHTML]; ok {
		intent.BodyIsHTML = true
	}
	if v, ok := data[KeyImageType]; ok {
		intent.ImageType = ImageType(v)
	}
}

func (n *Normalizer) localize(key string, args []string, literal string) string {
	if key == "" || n.localizer == nil {
		return literal
	}

	localized, err := n.localizer.Localize(key, args)
	if err != nil {
		n.logger.Warn("Localization failed, using literal", "key", key, "error", err)
		return literal
	}
	return localized
}

// StaticLocalizer resolves keys from an in-memory table of fmt format strings.
type StaticLocalizer map[string]string

func (l StaticLocalizer) Localize(key string, args []string) (string, error) {
	format, ok := l[key]
	if !ok {
		return "", fmt.Errorf("no string resource %q", key)
	}
	if len(args) == 0 {
		return format, nil
	}

	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a
	}
	return fmt.Sprintf(format, values...), nil
}
