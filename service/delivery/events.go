package delivery

import (
	"strconv"

	"courier/service/action"
	"courier/service/bridge"
	"courier/service/lifecycle"
	"courier/service/payload"
)

type Tap string

const (
	TapForeground Tap = "foreground"
	TapBackground Tap = "background"
	TapAction     Tap = "action"
)

const (
	EventMessage = "message"
	EventAction  = "action"
	EventToken   = "token"
)

// MessageEvent builds the consumer event for a received push. Data-block keys
// are copied first and are never overwritten by derived fields.
func MessageEvent(intent payload.Intent, show bool) bridge.Event {
	ev := bridge.Event(intent.Extras())
	if ev == nil {
		ev = bridge.Event{}
	}

	ev["messageType"] = string(intent.MessageType)

	put := func(k, v string) {
		if v == "" {
			return
		}
		if _, ok := ev[k]; !ok {
			ev[k] = v
		}
	}

	put(bridge.KeyEventType, EventMessage)
	put("id", intent.ID)
	put("title", intent.Title)
	put("body", intent.Body)
	if intent.BodyIsHTML {
		put("body_html", "true")
	}
	put("sound", intent.Sound)
	put("vibrate", intent.Vibrate)
	put("light", intent.Light)
	put("color", intent.Color)
	put("icon", intent.Icon)
	put("channel_id", intent.ChannelID)
	put("priority", intent.Priority)
	put("visibility", intent.Visibility)
	put("image", intent.ImageURL)
	put("image_type", string(intent.ImageType))
	put("show_notification", strconv.FormatBool(show))
	put("from", intent.From)
	put("collapse_key", intent.CollapseKey)
	if intent.SentTime > 0 {
		put("sent_time", strconv.FormatInt(intent.SentTime, 10))
	}
	if intent.TTL > 0 {
		put("ttl", strconv.Itoa(intent.TTL))
	}

	if intent.HasActions() {
		if encoded, err := action.Encode(intent.Actions()); err == nil {
			ev[payload.KeyActions] = encoded
		}
	}

	return ev
}

// ActionEvent builds the consumer event for an interaction.
func ActionEvent(result ActionResult, snap lifecycle.Snapshot) bridge.Event {
	ev := bridge.Event{}
	for k, v := range result.Extras {
		ev[k] = v
	}
	ev[bridge.KeyEventType] = EventAction

	if result.ActionID == "" {
		if _, ok := ev["messageType"]; !ok {
			ev["messageType"] = string(payload.MessageTypeNotification)
		}
		if snap.InBackground() {
			ev["tap"] = string(TapBackground)
		} else {
			ev["tap"] = string(TapForeground)
		}
		return ev
	}

	ev[KeyAction] = result.ActionID
	ev["tap"] = string(TapAction)
	if result.ReplyText != "" {
		ev["replyText"] = result.ReplyText
	}
	ev[bridge.KeyActionEvent] = "true"
	return ev
}

func TokenEvent(token string) bridge.Event {
	return bridge.Event{bridge.KeyEventType: EventToken, "token": token}
}
