package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		id            string
		requiresInput bool
		want          Kind
	}{
		{Reply, false, Silent},
		{MarkRead, false, Silent},
		{Dismiss, false, Silent},
		{"view_commodity", true, Silent},
		{"view_commodity", false, AppOpening},
		{"open", false, AppOpening},
		{"", false, AppOpening},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.id, tt.requiresInput), "id=%q requiresInput=%v", tt.id, tt.requiresInput)
	}
}

func TestDescriptorKindMatchesClassify(t *testing.T) {
	d := Descriptor{ID: "accept", Title: "Accept", RequiresInput: true}
	assert.Equal(t, Silent, d.Kind())
}

func TestParsePreservesOrder(t *testing.T) {
	raw := `[
		{"id":"reply","title":"Reply","requiresInput":true,"inputPlaceholder":"Say something"},
		{"id":"mark_read","title":"Mark read","icon":"ic_check"},
		{"id":"view","title":"Open"}
	]`

	got := Parse(raw, nil)
	require.Len(t, got, 3)

	assert.Equal(t, "reply", got[0].ID)
	assert.True(t, got[0].RequiresInput)
	assert.Equal(t, "Say something", got[0].Placeholder())
	assert.Equal(t, "ic_check", got[1].Icon)
	assert.False(t, got[1].RequiresInput)
	assert.Equal(t, "view", got[2].ID)
	assert.Equal(t, defaultReplyPlaceholder, got[2].Placeholder())
}

func TestParseSkipsIncompleteEntries(t *testing.T) {
	raw := `[{"id":"a"},{"title":"no id"},{"id":null,"title":"x"},"junk",{"id":"ok","title":"OK"}]`

	got := Parse(raw, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
}

func TestParseLenientValues(t *testing.T) {
	got := Parse(`[{"id":7,"title":"Seven","requiresInput":"true"}]`, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "7", got[0].ID)
	assert.True(t, got[0].RequiresInput)
}

func TestParseNeverFails(t *testing.T) {
	for _, raw := range []string{"", "   ", "{", `{"id":"a","title":"b"}`, "null", "[]"} {
		got := Parse(raw, nil)
		assert.NotNil(t, got, "raw=%q", raw)
		assert.Empty(t, got, "raw=%q", raw)
	}
}

func TestEncodeExposesIDTitleIcon(t *testing.T) {
	out, err := Encode([]Descriptor{{ID: "reply", Title: "Reply", RequiresInput: true}, {ID: "x", Title: "X", Icon: "ic"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"reply","title":"Reply"},{"id":"x","title":"X","icon":"ic"}]`, out)
}
