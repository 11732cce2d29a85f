package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	seq int
}

func (testEvent) Name() string { return "test.event" }

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var got []int
	bus.RegisterHandler(func(ev Event) {
		mu.Lock()
		got = append(got, ev.(testEvent).seq)
		mu.Unlock()
	})

	for i := 0; i < 20; i++ {
		bus.Publish(testEvent{seq: i})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 20
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range got {
		assert.Equal(t, i, seq)
	}
}

func TestBusRunsHandlersInRegistrationOrder(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	var mu sync.Mutex
	var order []string
	bus.RegisterHandler(func(Event) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	bus.RegisterHandler(func(Event) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})

	bus.Publish(testEvent{})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBusIsolatesHandlerPanics(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	var mu sync.Mutex
	var delivered int
	bus.RegisterHandler(func(Event) {
		panic("handler blew up")
	})
	bus.RegisterHandler(func(Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	bus.Publish(testEvent{})
	bus.Publish(testEvent{})

	// The panicking handler must not stop the bus or starve the second one.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBusBuffersBurstsBeyondInitialCapacity(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()

	var mu sync.Mutex
	var got []int
	bus.RegisterHandler(func(ev Event) {
		time.Sleep(2 * time.Millisecond) // slow subscriber, like a store write
		mu.Lock()
		got = append(got, ev.(testEvent).seq)
		mu.Unlock()
	})

	// Far more publishes than the initial capacity while the handler is
	// backed up: every event must still arrive, in order.
	for i := 0; i < 50; i++ {
		bus.Publish(testEvent{seq: i})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 50
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range got {
		assert.Equal(t, i, seq)
	}
}

func TestBusCloseIsIdempotentAndDropsLatePublishes(t *testing.T) {
	bus := NewBus(4)

	var mu sync.Mutex
	var delivered int
	bus.RegisterHandler(func(Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	bus.Publish(testEvent{})
	bus.Close()
	bus.Close()

	// Publishing after close must not panic and must not deliver.
	bus.Publish(testEvent{})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, delivered)
}
