package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceConsumer struct {
	events []Event
	err    error
}

func (c *sliceConsumer) Receive(ev Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func TestDeliverWithoutConsumer(t *testing.T) {
	b := New(0, nil)

	assert.ErrorIs(t, b.Deliver(Event{"a": "1"}), ErrNoConsumer)
	assert.ErrorIs(t, b.Enqueue(Event{"a": "1"}), ErrNotRegistered)
	assert.False(t, b.Registered())
}

func TestAttachDeliversDirectly(t *testing.T) {
	b := New(0, nil)
	c := &sliceConsumer{}

	session, detach := b.Attach(c)
	assert.NotEmpty(t, session)
	assert.True(t, b.HasConsumer())

	require.NoError(t, b.Deliver(Event{"id": "1"}))
	require.Len(t, c.events, 1)

	detach()
	detach()
	assert.False(t, b.HasConsumer())
	assert.True(t, b.Registered())
}

func TestQueuedEventsFlushOnAttachActionsFirst(t *testing.T) {
	b := New(0, nil)
	_, detach := b.Attach(&sliceConsumer{})
	detach()

	require.NoError(t, b.Enqueue(Event{"id": "msg-1"}))
	require.NoError(t, b.Enqueue(Event{"id": "act-1", KeyActionEvent: "true"}))
	require.NoError(t, b.Enqueue(Event{"id": "msg-2"}))
	assert.Equal(t, 3, b.Pending())

	c := &sliceConsumer{}
	b.Attach(c)

	require.Len(t, c.events, 3)
	assert.Equal(t, "act-1", c.events[0]["id"])
	assert.Equal(t, "msg-1", c.events[1]["id"])
	assert.Equal(t, "msg-2", c.events[2]["id"])
	assert.Equal(t, 0, b.Pending())
}

func TestRejectedFlushIsRequeued(t *testing.T) {
	b := New(0, nil)
	_, detach := b.Attach(&sliceConsumer{})
	detach()
	require.NoError(t, b.Enqueue(Event{"id": "1"}))

	b.Attach(&sliceConsumer{err: errors.New("full")})
	assert.Equal(t, 1, b.Pending())
}

func TestDeliverReportsBusyConsumer(t *testing.T) {
	b := New(0, nil)
	b.Attach(&sliceConsumer{err: errors.New("buffer full")})

	err := b.Deliver(Event{"id": "1"})
	assert.ErrorIs(t, err, ErrConsumerBusy)
}

func TestQueueBoundDropsPlainEventsFirst(t *testing.T) {
	b := New(2, nil)
	_, detach := b.Attach(&sliceConsumer{})
	detach()

	require.NoError(t, b.Enqueue(Event{"id": "act", KeyActionEvent: "true"}))
	require.NoError(t, b.Enqueue(Event{"id": "msg"}))
	require.NoError(t, b.Enqueue(Event{"id": "act-2", KeyActionEvent: "true"}))

	c := &sliceConsumer{}
	b.Attach(c)
	require.Len(t, c.events, 2)
	assert.Equal(t, "act", c.events[0]["id"])
	assert.Equal(t, "act-2", c.events[1]["id"])
}

func TestPublishFallsBackToQueue(t *testing.T) {
	b := New(0, nil)
	_, detach := b.Attach(&sliceConsumer{})
	detach()

	require.NoError(t, b.Publish(Event{"id": "1"}))
	assert.Equal(t, 1, b.Pending())
}

func TestUnregisterClearsQueue(t *testing.T) {
	b := New(0, nil)
	_, detach := b.Attach(&sliceConsumer{})
	detach()
	require.NoError(t, b.Enqueue(Event{"id": "1"}))

	b.Unregister()
	assert.False(t, b.Registered())
	assert.Equal(t, 0, b.Pending())
}

func TestEnqueueCopiesEvent(t *testing.T) {
	b := New(0, nil)
	_, detach := b.Attach(&sliceConsumer{})
	detach()

	ev := Event{"id": "1"}
	require.NoError(t, b.Enqueue(ev))
	ev["id"] = "mutated"

	c := &sliceConsumer{}
	b.Attach(c)
	assert.Equal(t, "1", c.events[0]["id"])
}

func TestReturnPrependsAheadOfQueue(t *testing.T) {
	b := New(0, nil)
	_, detach := b.Attach(&sliceConsumer{})
	detach()

	require.NoError(t, b.Enqueue(Event{"id": "later"}))
	require.NoError(t, b.Return([]Event{{"id": "first"}, {"id": "second"}}))
	assert.Equal(t, 3, b.Pending())

	c := &sliceConsumer{}
	b.Attach(c)
	require.Len(t, c.events, 3)
	assert.Equal(t, "first", c.events[0]["id"])
	assert.Equal(t, "second", c.events[1]["id"])
	assert.Equal(t, "later", c.events[2]["id"])
}

func TestReturnRequiresRegistration(t *testing.T) {
	b := New(0, nil)

	assert.ErrorIs(t, b.Return([]Event{{"id": "1"}}), ErrNotRegistered)
	assert.NoError(t, b.Return(nil))
}
