package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversTypedEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := Subscribe[TaskStarted](bus, 4)
	defer cancel()

	require.NoError(t, bus.Publish(TaskStarted{TaskID: "t1", Kind: "GitClone", At: time.Now()}))
	// Events of other types do not reach this subscription.
	require.NoError(t, bus.Publish(TaskCompleted{TaskID: "t1", Kind: "GitClone", At: time.Now()}))

	evt := <-ch
	assert.Equal(t, "t1", evt.TaskID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event: %+v", extra)
	default:
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a, cancelA := Subscribe[ProxyState](bus, 1)
	defer cancelA()
	b, cancelB := Subscribe[ProxyState](bus, 1)
	defer cancelB()

	require.NoError(t, bus.Publish(ProxyState{Previous: "Enabled", Current: "Fallback"}))
	assert.Equal(t, "Fallback", (<-a).Current)
	assert.Equal(t, "Fallback", (<-b).Current)
}

func TestBusPreservesPublishOrderPerSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := Subscribe[TaskProgress](bus, 8)
	defer cancel()

	for pct := uint32(0); pct < 5; pct++ {
		require.NoError(t, bus.Publish(TaskProgress{TaskID: "t", Percent: pct * 20}))
	}
	for pct := uint32(0); pct < 5; pct++ {
		assert.Equal(t, pct*20, (<-ch).Percent)
	}
}

func TestBusDropsInsteadOfBlockingSlowSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := Subscribe[TaskStarted](bus, 2)
	defer cancel()

	// Nobody reads; the third publish overflows the buffer but Publish
	// still returns immediately and without error.
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(TaskStarted{TaskID: "t"}))
	}
	assert.Equal(t, uint64(3), bus.Dropped())
	assert.Len(t, ch, 2, "buffered events survive the drops")
}

func TestBusUnsubscribeClosesChannelKeepingBufferedEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := Subscribe[TaskCanceled](bus, 2)
	require.NoError(t, bus.Publish(TaskCanceled{TaskID: "t1"}))
	cancel()
	cancel() // idempotent

	evt, open := <-ch
	assert.True(t, open)
	assert.Equal(t, "t1", evt.TaskID)
	_, open = <-ch
	assert.False(t, open)
}

func TestBusCloseClosesSubscriptions(t *testing.T) {
	bus := NewBus()
	ch, cancel := Subscribe[TaskFailed](bus, 1)
	defer cancel()
	bus.Close()
	_, open := <-ch
	assert.False(t, open)

	// Publishing after close is an error, not a panic; so is a nil event.
	assert.Error(t, bus.Publish(TaskFailed{TaskID: "t"}))
	assert.Error(t, NewBus().Publish(nil))

	// Subscribing after close yields an already-closed channel.
	late, lateCancel := Subscribe[TaskFailed](bus, 1)
	defer lateCancel()
	_, open = <-late
	assert.False(t, open)
}

func TestBusInterfaceSubscriptionSeesAllEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := Subscribe[any](bus, 4)
	defer cancel()

	require.NoError(t, bus.Publish(TaskStarted{TaskID: "t"}))
	require.NoError(t, bus.Publish(ProxyRecovered{At: time.Now()}))
	assert.IsType(t, TaskStarted{}, <-ch)
	assert.IsType(t, ProxyRecovered{}, <-ch)
}

func TestFanoutSinkPublishesToAll(t *testing.T) {
	var got []any
	record := sinkFunc(func(evt any) { got = append(got, evt) })
	fan := FanoutSink{record, nil, record}
	fan.Publish(TaskStarted{TaskID: "x"})
	assert.Len(t, got, 2)
}

type sinkFunc func(any)

func (f sinkFunc) Publish(evt any) { f(evt) }

func TestBusSinkNilBusIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { BusSink{}.Publish(TaskStarted{TaskID: "x"}) })
}
