package payload

import (
	"maps"
	"slices"

	"courier/service/action"
)

type MessageType string

const (
	MessageTypeNotification MessageType = "notification"
	MessageTypeData         MessageType = "data"
)

// Reserved data-block keys.
const (
	KeyForeground = "notification_foreground"
	KeyTitle      = "notification_title"
	KeyBody       = "notification_body"
	KeyBodyHTML   = "notification_android_body_html"
	KeyChannelID  = "notification_android_channel_id"
	KeyID         = "notification_android_id"
	KeySound      = "notification_android_sound"
	KeyVibrate    = "notification_android_vibrate"
	KeyLight      = "notification_android_light"
	KeyColor      = "notification_android_color"
	KeyIcon       = "notification_android_icon"
	KeyVisibility = "notification_android_visibility"
	KeyPriority   = "notification_android_priority"
	KeyImage      = "notification_android_image"
	KeyImageType  = "notification_android_image_type"
	KeyActions    = "actions"
)

type ImageType string

const (
	ImageCircle     ImageType = "circle"
	ImageBigPicture ImageType = "big_picture"
)

type NotificationBlock struct {
	Title        string   `json:"title,omitempty"`
	TitleLocKey  string   `json:"titleLocKey,omitempty"`
	TitleLocArgs []string `json:"titleLocArgs,omitempty"`
	Body         string   `json:"body,omitempty"`
	BodyLocKey   string   `json:"bodyLocKey,omitempty"`
	BodyLocArgs  []string `json:"bodyLocArgs,omitempty"`
	Sound        string   `json:"sound,omitempty"`
	Color        string   `json:"color,omitempty"`
	Icon         string   `json:"icon,omitempty"`
	ChannelID    string   `json:"channelId,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
}

// RawPayload is what the push transport hands over.
type RawPayload struct {
	MessageID    string             `json:"messageId,omitempty"`
	From         string             `json:"from,omitempty"`
	CollapseKey  string             `json:"collapseKey,omitempty"`
	SentTime     int64              `json:"sentTime,omitempty"`
	TTL          int                `json:"ttl,omitempty"`
	Notification *NotificationBlock `json:"notification,omitempty"`
	Data         map[string]string  `json:"data,omitempty"`
}

// Intent is the canonical form of an incoming push. It is built once by the
// Normalizer; the extras and actions are copied in and out so callers cannot
// change it after construction.
type Intent struct {
	ID                 string
	Title              string
	Body               string
	BodyIsHTML         bool
	Sound              string
	Vibrate            string
	Light              string
	Color              string
	Icon               string
	ChannelID          string
	Priority           string
	Visibility         string
	ImageURL           string
	ImageType          ImageType
	MessageType        MessageType
	ForegroundOverride bool

	From        string
	CollapseKey string
	SentTime    int64
	TTL         int

	extras  map[string]string
	actions []action.Descriptor
}

func (i Intent) Extras() map[string]string {
	return maps.Clone(i.extras)
}

func (i Intent) Extra(key string) (string, bool) {
	v, ok := i.extras[key]
	return v, ok
}

func (i Intent) Actions() []action.Descriptor {
	return slices.Clone(i.actions)
}

func (i Intent) HasActions() bool {
	return len(i.actions) > 0
}

func (i Intent) HasContent() bool {
	return i.Title != "" || i.Body != ""
}
