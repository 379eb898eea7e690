package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_PublishSubscribe(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := broker.Subscribe(ctx)

	broker.Publish(CreatedEvent, "payload")

	select {
	case event := <-sub:
		require.Equal(t, CreatedEvent, event.Type)
		require.Equal(t, "payload", event.Payload)
		require.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subA := broker.Subscribe(ctx)
	subB := broker.Subscribe(ctx)
	require.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(UpdatedEvent, 42)

	for _, sub := range []<-chan Event[int]{subA, subB} {
		select {
		case event := <-sub:
			require.Equal(t, 42, event.Payload)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := broker.Subscribe(ctx)

	// Fill the buffer, then publish more. The publisher must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			broker.Publish(CreatedEvent, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	// The first event is still there; the rest were dropped.
	event := <-sub
	require.Equal(t, 0, event.Payload)
}

func TestBroker_SubscribeAfterClose(t *testing.T) {
	broker := NewBroker[string]()
	broker.Close()

	sub := broker.Subscribe(context.Background())
	_, ok := <-sub
	require.False(t, ok, "subscription to a closed broker must be a closed channel")
}

func TestBroker_PublishAfterCloseIsNoop(t *testing.T) {
	broker := NewBroker[string]()
	broker.Close()
	broker.Publish(DeletedEvent, "late")
	broker.Close() // idempotent
}

func TestBroker_ContextCancelUnsubscribes(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := broker.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)

	_, ok := <-sub
	require.False(t, ok)
}
