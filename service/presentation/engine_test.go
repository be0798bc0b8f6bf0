package presentation

import (
	"testing"

	"courier/service/lifecycle"
	"courier/service/payload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalize(t *testing.T, raw payload.RawPayload) payload.Intent {
	t.Helper()
	intent, err := payload.NewNormalizer(nil, nil).Normalize(raw)
	require.NoError(t, err)
	return intent
}

func TestShouldPresent(t *testing.T) {
	plain := normalize(t, payload.RawPayload{Notification: &payload.NotificationBlock{Title: "hi"}})
	forced := normalize(t, payload.RawPayload{Data: map[string]string{payload.KeyTitle: "hi", payload.KeyForeground: "true"}})
	withActions := normalize(t, payload.RawPayload{Data: map[string]string{
		payload.KeyTitle:   "hi",
		payload.KeyActions: `[{"id":"reply","title":"Reply"}]`,
	}})
	dataOnly := normalize(t, payload.RawPayload{Data: map[string]string{"k": "v", payload.KeyActions: `[{"id":"a","title":"A"}]`}})

	fgConsumer := lifecycle.Snapshot{Liveness: lifecycle.Foreground, HasRegisteredConsumer: true}
	fgNoConsumer := lifecycle.Snapshot{Liveness: lifecycle.Foreground}
	bg := lifecycle.Snapshot{Liveness: lifecycle.Background, HasRegisteredConsumer: true}

	assert.False(t, ShouldPresent(plain, fgConsumer))
	assert.True(t, ShouldPresent(plain, fgNoConsumer))
	assert.True(t, ShouldPresent(plain, bg))
	assert.True(t, ShouldPresent(plain, lifecycle.Snapshot{}))
	assert.True(t, ShouldPresent(forced, fgConsumer))
	assert.True(t, ShouldPresent(withActions, fgConsumer))
	assert.False(t, ShouldPresent(dataOnly, bg), "nothing to show without title or body")
}

func TestResolveIconChain(t *testing.T) {
	res := StaticResources{
		"ic_custom":      10,
		DefaultSmallIcon: 20,
		GenericAppIcon:   30,
	}

	icon := ResolveIcon(res, "ic_custom")
	assert.Equal(t, IconCustom, icon.Source)
	assert.Equal(t, 10, icon.ID)

	delete(res, "ic_custom")
	icon = ResolveIcon(res, "ic_custom")
	assert.Equal(t, IconDefault, icon.Source)
	assert.Equal(t, DefaultSmallIcon, icon.Name)

	delete(res, DefaultSmallIcon)
	icon = ResolveIcon(res, "ic_custom")
	assert.Equal(t, IconGeneric, icon.Source)
	assert.Equal(t, 30, icon.ID)

	delete(res, GenericAppIcon)
	icon = ResolveIcon(res, "ic_custom")
	assert.Equal(t, IconBuiltin, icon.Source)
	assert.Equal(t, BuiltinIcon, icon.Name)

	assert.Equal(t, IconBuiltin, ResolveIcon(nil, "").Source)
}

func TestResolveIconUnsetCustom(t *testing.T) {
	res := StaticResources{DefaultSmallIcon: 1, GenericAppIcon: 2}
	assert.Equal(t, IconDefault, ResolveIcon(res, "").Source)
}

func TestResolveLargeIconChain(t *testing.T) {
	res := StaticResources{
		"ic_custom_large":              11,
		DefaultSmallIcon + LargeSuffix: 21,
		GenericAppIcon:                 31,
		"ic_custom":                    99,
	}

	assert.Equal(t, 11, ResolveLargeIcon(res, "ic_custom").ID)

	delete(res, "ic_custom_large")
	assert.Equal(t, 21, ResolveLargeIcon(res, "ic_custom").ID)

	delete(res, DefaultSmallIcon+LargeSuffix)
	assert.Equal(t, IconGeneric, ResolveLargeIcon(res, "ic_custom").Source)

	delete(res, GenericAppIcon)
	assert.Equal(t, IconBuiltin, ResolveLargeIcon(res, "ic_custom").Source)
}

func TestDecideAttributes(t *testing.T) {
	engine := NewEngine(Options{
		Resources:        StaticResources{DefaultSmallIcon: 5},
		Channels:         ChannelSet{"chat": true},
		DefaultChannelID: "default",
		AccentColor:      "#112233",
	}, nil)

	intent := normalize(t, payload.RawPayload{Data: map[string]string{
		payload.KeyTitle:      "t",
		payload.KeyChannelID:  "chat",
		payload.KeyColor:      "#FF00FF00",
		payload.KeyLight:      "#FFFF00FF, 1000, 3000",
		payload.KeyVibrate:    "0,250,250",
		payload.KeyPriority:   "-1",
		payload.KeyVisibility: "0",
		payload.KeyImageType:  "big_picture",
	}})

	d := engine.Decide(intent, lifecycle.Snapshot{Liveness: lifecycle.Background})
	assert.True(t, d.Show)
	assert.Equal(t, "chat", d.ChannelID)
	assert.Equal(t, "#FF00FF00", d.Color)
	require.NotNil(t, d.Light)
	assert.Equal(t, uint32(0xFFFF00FF), d.Light.ARGB)
	assert.Equal(t, 1000, d.Light.OnMs)
	assert.Equal(t, 3000, d.Light.OffMs)
	assert.Equal(t, []int64{0, 250, 250}, d.Vibrate)
	assert.Equal(t, PriorityLow, d.Priority)
	assert.Equal(t, VisibilityPrivate, d.Visibility)
	assert.Equal(t, payload.ImageBigPicture, d.ImageType)
	assert.Equal(t, IconDefault, d.SmallIcon.Source)
}

func TestDecideDefaults(t *testing.T) {
	engine := NewEngine(Options{AccentColor: "#112233"}, nil)

	intent := normalize(t, payload.RawPayload{Data: map[string]string{
		payload.KeyTitle:      "t",
		payload.KeyChannelID:  "unknown",
		payload.KeyColor:      "red",
		payload.KeyLight:      "#FFFF00FF,1000",
		payload.KeyVibrate:    "a,b",
		payload.KeyPriority:   "9",
		payload.KeyVisibility: "x",
		payload.KeyImageType:  "square",
	}})

	d := engine.Decide(intent, lifecycle.Snapshot{})
	assert.Equal(t, "fcm_default_channel", d.ChannelID)
	assert.Equal(t, "#112233", d.Color)
	assert.Nil(t, d.Light)
	assert.Nil(t, d.Vibrate)
	assert.Equal(t, PriorityMax, d.Priority)
	assert.Equal(t, VisibilityPublic, d.Visibility)
	assert.Empty(t, d.ImageType)
	assert.Equal(t, IconBuiltin, d.SmallIcon.Source)
}
