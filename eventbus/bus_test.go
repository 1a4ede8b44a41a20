package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_ExactMatch(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var got []string

	unsub := b.Subscribe("task:completed", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Name)
	})
	defer unsub()

	b.Publish("task:completed", map[string]string{"taskId": "t1"})
	b.Publish("task:failed", nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"task:completed"}, got)
	mu.Unlock()
}

func TestBus_Wildcard(t *testing.T) {
	b := New()
	var count int32
	var mu sync.Mutex

	unsub := b.Subscribe("task:*", func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer unsub()

	b.Publish("task:started", nil)
	b.Publish("task:completed", nil)
	b.Publish("node:failover", nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	}, time.Second, time.Millisecond)
}

func TestBus_Regex(t *testing.T) {
	b := New()
	ch := make(chan Event, 2)

	unsub := b.Subscribe("regex:^task:(completed|failed)$", func(e Event) {
		ch <- e
	})
	defer unsub()

	b.Publish("task:completed", nil)
	b.Publish("task:started", nil)
	b.Publish("task:failed", nil)

	names := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			names[e.Name] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.True(t, names["task:completed"])
	assert.True(t, names["task:failed"])
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	var mu sync.Mutex
	count := 0

	unsub := b.Subscribe("x", func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsub()
	unsub() // idempotent

	b.Publish("x", nil)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, count)
	mu.Unlock()
}

func TestBus_HandlerPanicDoesNotAffectOthers(t *testing.T) {
	b := New()
	ch := make(chan struct{}, 1)

	b.Subscribe("x", func(e Event) { panic("boom") })
	b.Subscribe("x", func(e Event) { ch <- struct{}{} })

	b.Publish("x", nil)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("second subscriber never ran")
	}
}
