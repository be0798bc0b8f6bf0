package crash

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/service/metrics"
)

func TestGuardReportsError(t *testing.T) {
	sink := NewLogSink(nil, 0)
	before := testutil.ToFloat64(metrics.CrashReportsTotal.WithLabelValues("test-error"))

	failed := Guard(context.Background(), sink, "test-error", func() error {
		return errors.New("boom")
	})

	assert.True(t, failed)
	require.Len(t, sink.Recent(), 1)
	assert.False(t, sink.Recent()[0].Panic)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CrashReportsTotal.WithLabelValues("test-error")))
}

func TestGuardRecoversPanic(t *testing.T) {
	sink := NewLogSink(nil, 0)

	failed := Guard(context.Background(), sink, "test-panic", func() error {
		panic("bad state")
	})

	assert.True(t, failed)
	reports := sink.Recent()
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Panic)
	assert.Contains(t, reports[0].Err.Error(), "bad state")
	assert.NotEmpty(t, reports[0].Stack)
}

func TestGuardSuccess(t *testing.T) {
	sink := NewLogSink(nil, 0)

	assert.False(t, Guard(context.Background(), sink, "ok", func() error { return nil }))
	assert.Empty(t, sink.Recent())
}

func TestLogSinkKeepsRecent(t *testing.T) {
	sink := NewLogSink(nil, 2)
	for i := range 3 {
		sink.Report(context.Background(), Report{Context: "c", Err: errors.New(string(rune('a' + i)))})
	}

	reports := sink.Recent()
	require.Len(t, reports, 2)
	assert.Equal(t, "b", reports[0].Err.Error())
	assert.Equal(t, "c", reports[1].Err.Error())
}
