package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierPublishSubscribe(t *testing.T) {
	n := NewNotifier()
	n.Start()
	defer n.Stop()

	sub := n.Subscribe()
	defer n.Unsubscribe(sub)

	n.Publish(ChannelRouteTable)

	select {
	case note := <-sub:
		assert.Equal(t, ChannelRouteTable, note.Channel)
	case <-time.After(time.Second):
		t.Fatal("expected a notification")
	}
}

func TestNotifierMultipleSubscribersAllReceive(t *testing.T) {
	n := NewNotifier()
	n.Start()
	defer n.Stop()

	subA := n.Subscribe()
	subB := n.Subscribe()
	defer n.Unsubscribe(subA)
	defer n.Unsubscribe(subB)

	n.Publish(ChannelRouteTable)

	for _, sub := range []Subscription{subA, subB} {
		select {
		case <-sub:
		case <-time.After(time.Second):
			t.Fatal("expected all subscribers to receive the notification")
		}
	}
}

func TestNotifierUnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier()
	n.Start()
	defer n.Stop()

	sub := n.Subscribe()
	n.Unsubscribe(sub)

	_, ok := <-sub
	assert.False(t, ok, "unsubscribed channel must be closed")
}

func TestNotifierPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	n := NewNotifier()
	n.Start()
	defer n.Stop()

	sub := n.Subscribe()
	defer n.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			n.Publish(ChannelRouteTable)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish must never block even if a subscriber's buffer fills up")
	}
	require.NotNil(t, sub)
}
