package delivery

import (
	"maps"

	"courier/service/action"
)

// Keys consumed by routing and never copied into an ActionResult.
const (
	KeyAction         = "action"
	KeyNotificationID = "notificationId"
)

// Extras the fallback path depends on.
const (
	KeyAPIURL    = "apiUrl"
	KeyAuthToken = "authToken"
	KeyMessageID = "messageId"
)

// Interaction is a user tap on a presented notification or one of its action buttons.
type Interaction struct {
	NotificationID string            `json:"notificationId"`
	ActionID       string            `json:"action,omitempty"`
	RequiresInput  bool              `json:"requiresInput,omitempty"`
	ReplyText      string            `json:"replyText,omitempty"`
	Extras         map[string]string `json:"extras,omitempty"`
}

func (i Interaction) IsTap() bool {
	return i.ActionID == ""
}

func (i Interaction) Kind() action.Kind {
	if i.IsTap() {
		return action.AppOpening
	}
	return action.Classify(i.ActionID, i.RequiresInput)
}

type ActionResult struct {
	NotificationID string
	ActionID       string
	ReplyText      string
	Extras         map[string]string
}

func NewActionResult(in Interaction) ActionResult {
	extras := maps.Clone(in.Extras)
	if extras == nil {
		extras = map[string]string{}
	}
	delete(extras, KeyAction)
	delete(extras, KeyNotificationID)

	return ActionResult{
		NotificationID: in.NotificationID,
		ActionID:       in.ActionID,
		ReplyText:      in.ReplyText,
		Extras:         extras,
	}
}

func (r ActionResult) Extra(key string) string {
	return r.Extras[key]
}

func (r ActionResult) APIURL() string    { return r.Extras[KeyAPIURL] }
func (r ActionResult) AuthToken() string { return r.Extras[KeyAuthToken] }

func (r ActionResult) HasFallbackCredentials() bool {
	return r.APIURL() != "" && r.AuthToken() != ""
}
