package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/scentstream/scent"
)

func event(n int) scent.Event {
	return scent.Event{
		Type:     scent.EventSensorData,
		DeviceID: "dev-1",
		Data:     fmt.Sprintf("payload-%d", n),
	}
}

func drain(sub *Subscriber) []scent.Event {
	var out []scent.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	a := b.Subscribe()
	c := b.Subscribe()
	require.Equal(t, 2, b.Count())
	assert.NotEqual(t, a.ID(), c.ID())

	b.Publish(event(1))
	b.Publish(event(2))

	assert.Len(t, drain(a), 2)
	assert.Len(t, drain(c), 2)

	published, dropped := b.Stats()
	assert.Equal(t, uint64(2), published)
	assert.Zero(t, dropped)
}

func TestBroadcaster_SlowSubscriberDropsOldest(t *testing.T) {
	b := New(WithBufferSize(2))
	defer b.Close()

	slow := b.Subscribe()
	fast := b.Subscribe()

	for i := 1; i <= 5; i++ {
		b.Publish(event(i))
		// Keep the fast subscriber drained so only the slow one
		// overflows.
		drain(fast)
	}

	got := drain(slow)
	require.Len(t, got, 2)
	assert.Equal(t, "payload-4", got[0].Data)
	assert.Equal(t, "payload-5", got[1].Data)
	assert.Equal(t, uint64(3), slow.Dropped())
	assert.Zero(t, fast.Dropped())
}

func TestBroadcaster_UnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	b.Publish(event(1))

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)
	assert.Equal(t, 0, b.Count())

	// The channel is closed; buffered events remain readable first.
	ev, ok := <-sub.Events()
	assert.True(t, ok)
	assert.Equal(t, "payload-1", ev.Data)
	_, ok = <-sub.Events()
	assert.False(t, ok)

	// Publishing after removal must not panic or block.
	b.Publish(event(2))
}

func TestBroadcaster_SubscribeDuringPublish(t *testing.T) {
	b := New(WithBufferSize(256))
	defer b.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				b.Publish(event(i))
			}
		}
	}()

	// Churning subscribers concurrently with publishes must not race or
	// panic, and a subscriber must see events published after it joined.
	for i := 0; i < 50; i++ {
		sub := b.Subscribe()
		select {
		case <-sub.Events():
		case <-time.After(time.Second):
			t.Fatal("subscriber starved during concurrent publish")
		}
		b.Unsubscribe(sub)
	}

	close(stop)
	wg.Wait()
}

func TestBroadcaster_Close(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	b.Close()
	b.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, b.Count())

	// Publish and Subscribe after close are inert.
	b.Publish(event(1))
	late := b.Subscribe()
	_, ok = <-late.Events()
	assert.False(t, ok)

	published, _ := b.Stats()
	assert.Zero(t, published)
}
