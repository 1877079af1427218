package notifier

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_SubscribeUnsubscribe(t *testing.T) {
	n := New()

	ch := n.Subscribe()
	require.NotNil(t, ch)
	assert.Equal(t, 1, n.Len())

	n.Unsubscribe(ch)
	assert.Equal(t, 0, n.Len())

	_, ok := <-ch
	assert.False(t, ok, "channel is closed after unsubscribe")
}

func TestNotifier_Broadcast(t *testing.T) {
	n := New()
	a, b := n.Subscribe(), n.Subscribe()
	defer n.Unsubscribe(a)
	defer n.Unsubscribe(b)

	n.Broadcast("run-1")

	for _, ch := range []chan string{a, b} {
		select {
		case id := <-ch:
			assert.Equal(t, "run-1", id)
		case <-time.After(time.Second):
			t.Fatal("listener did not receive run id")
		}
	}
}

func TestNotifier_BroadcastNonBlocking(t *testing.T) {
	n := New()
	ch := n.Subscribe()
	defer n.Unsubscribe(ch)

	n.Broadcast("run-1")
	n.Broadcast("run-2") // dropped, buffer full

	assert.Equal(t, "run-1", <-ch)
	select {
	case id := <-ch:
		t.Fatalf("unexpected run id %s", id)
	default:
	}
}

func TestNotifier_Concurrent(t *testing.T) {
	n := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := n.Subscribe()
			n.Broadcast("run")
			n.Unsubscribe(ch)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, n.Len())
}
