package action

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
)

const defaultReplyPlaceholder = "Enter your reply..."

type rawDescriptor struct {
	ID               json.RawMessage `json:"id"`
	Title            json.RawMessage `json:"title"`
	Icon             json.RawMessage `json:"icon"`
	RequiresInput    json.RawMessage `json:"requiresInput"`
	InputPlaceholder json.RawMessage `json:"inputPlaceholder"`
}

// Parse reads the "actions" data field. Entries without an id or title are
// skipped; anything that is not a JSON array yields no actions.
func Parse(raw string, logger *slog.Logger) []Descriptor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	actions := []Descriptor{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return actions
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger.Error("Failed to parse actions", "error", err)
		return actions
	}

	logger.Debug("Parsing action buttons", "count", len(entries))

	for i, entry := range entries {
		var rd rawDescriptor
		if err := json.Unmarshal(entry, &rd); err != nil {
			logger.Warn("Skipping malformed action", "index", i, "error", err)
			continue
		}

		id, idOK := optString(rd.ID)
		title, titleOK := optString(rd.Title)
		if !idOK || !titleOK || id == "" || title == "" {
			logger.Warn("Skipping action with missing id or title", "index", i)
			continue
		}

		d := Descriptor{ID: id, Title: title}
		d.Icon, _ = optString(rd.Icon)
		d.RequiresInput = optBool(rd.RequiresInput)
		d.InputPlaceholder, _ = optString(rd.InputPlaceholder)

		logger.Debug("Added action", "id", d.ID, "title", d.Title, "icon", d.Icon, "requiresInput", d.RequiresInput)
		actions = append(actions, d)
	}

	return actions
}

// Placeholder is the hint shown in the inline input of an action that requires input.
func (d Descriptor) Placeholder() string {
	if d.InputPlaceholder != "" {
		return d.InputPlaceholder
	}
	return defaultReplyPlaceholder
}

func optString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	// numbers and booleans are accepted in their literal form
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch v.(type) {
	case float64, bool:
		return string(raw), true
	default:
		return "", false
	}
}

func optBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, err := strconv.ParseBool(s)
		return err == nil && parsed
	}
	return false
}

// Encode serializes descriptors the way they are exposed to consumers: id, title and icon only.
func Encode(actions []Descriptor) (string, error) {
	type exposed struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Icon  string `json:"icon,omitempty"`
	}

	out := make([]exposed, 0, len(actions))
	for _, a := range actions {
		out = append(out, exposed{ID: a.ID, Title: a.Title, Icon: a.Icon})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
