package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/events"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	evt := entity.ChangeEvent{Created: []entity.Ref{{ID: "asset-1", CollectionID: "col-1"}}}
	bus.Publish(evt)

	select {
	case got := <-ch:
		require.Equal(t, evt, got)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive published event")
	}
}

func TestPublishIgnoresEmptyEvents(t *testing.T) {
	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(entity.ChangeEvent{})

	select {
	case got := <-ch:
		t.Fatalf("expected no event, got %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe()

	unsubscribe()

	_, ok := <-ch
	require.False(t, ok, "channel must be closed after unsubscribe")
}

func TestPublishFansOutToEverySubscriber(t *testing.T) {
	bus := events.NewBus()
	chA, unsubA := bus.Subscribe()
	defer unsubA()
	chB, unsubB := bus.Subscribe()
	defer unsubB()

	evt := entity.ChangeEvent{Deleted: []entity.Ref{{ID: "asset-2"}}}
	bus.Publish(evt)

	require.Equal(t, evt, <-chA)
	require.Equal(t, evt, <-chB)
}

func TestPublishDropsForSlowSubscriberWithoutBlocking(t *testing.T) {
	bus := events.NewBus()
	_, unsubscribe := bus.Subscribe() // never drained
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 32; i++ {
			bus.Publish(entity.ChangeEvent{Created: []entity.Ref{{ID: "x"}}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
