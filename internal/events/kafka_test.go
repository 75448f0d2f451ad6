package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestKafkaRelayForwardsBusEvents(t *testing.T) {
	w := &fakeWriter{}
	relay := NewKafkaRelayWithWriter(w, nil)
	bus := NewEventBus()
	relay.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	require.NoError(t, bus.Publish(Event{Type: TypeBookingCreated, OwnerID: "owner-1", EntityID: "b-1"}))
	require.NoError(t, bus.Publish(Event{Type: TypeScheduleUpdated, OwnerID: "owner-2"}))

	require.Eventually(t, func() bool { return w.count() == 2 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)

	first := w.msgs[0]
	assert.Equal(t, "owner-1", string(first.Key))

	var got Event
	require.NoError(t, json.Unmarshal(first.Value, &got))
	assert.Equal(t, TypeBookingCreated, got.Type)
	assert.Equal(t, "b-1", got.EntityID)
	assert.Equal(t, TypeBookingCreated, headerValue(first.Headers, "event_type"))
	assert.NotEmpty(t, headerValue(first.Headers, "event_id"))
}

func TestKafkaRelayDrainsOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	relay := NewKafkaRelayWithWriter(w, nil)
	require.NoError(t, relay.enqueue(Event{Type: TypeEventUpdated, OwnerID: "owner-1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	relay.Run(ctx)

	assert.Equal(t, 1, w.count())
}

func TestKafkaRelayQueueFull(t *testing.T) {
	relay := NewKafkaRelayWithWriter(&fakeWriter{err: errors.New("down")}, nil)
	for i := 0; i < relayQueueSize; i++ {
		require.NoError(t, relay.enqueue(Event{Type: TypeEventUpdated}))
	}
	assert.Error(t, relay.enqueue(Event{Type: TypeEventUpdated}))
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, SplitBrokers(""))
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
