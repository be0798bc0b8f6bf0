package subscription

// Channel is the kind of render target a subscription points at.
type Channel string

const (
	ChannelWebPush  Channel = "webpush"
	ChannelTelegram Channel = "telegram"
)

func (c Channel) String() string {
	return string(c)
}

func (c Channel) Label() string {
	switch c {
	case ChannelWebPush:
		return "WebPush"
	case ChannelTelegram:
		return "Telegram"
	default:
		return string(c)
	}
}

func (c Channel) IsAvailable(webPushEnabled, telegramEnabled bool) bool {
	switch c {
	case ChannelWebPush:
		return webPushEnabled
	case ChannelTelegram:
		return telegramEnabled
	default:
		return false
	}
}

func ParseChannel(s string) (Channel, bool) {
	switch Channel(s) {
	case ChannelWebPush, ChannelTelegram:
		return Channel(s), true
	}
	return "", false
}
