package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler consumes a single event. Handlers run on the bus dispatch
// goroutine, in registration order, and must not block indefinitely.
type Handler func(Event)

// Bus is the in-process publish/subscribe mechanism connecting domain
// operations to the notification pipeline. Publish never fails visibly to
// the caller; handler panics are isolated and logged.
//
// The buffer grows on demand. An event that has not reached a handler has
// no persisted delivery behind it, so unlike the delivery work queue there
// is no poll to recover a drop; a burst backs up in memory instead.
type Bus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	handlers []Handler
	buffer   []Event
	closed   bool
	done     chan struct{}
}

// NewBus creates a bus and starts its dispatch loop. The buffer argument is
// the initial capacity only; publishing past it grows the buffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	b := &Bus{
		buffer: make([]Event, 0, buffer),
		done:   make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.dispatch()
	return b
}

// RegisterHandler adds a handler for every subsequently published event.
// Registration happens at startup, before the first Publish.
func (b *Bus) RegisterHandler(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish enqueues an event for asynchronous dispatch and returns
// immediately. Only events published after Close are dropped.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		logrus.WithField("event", ev.Name()).Warn("Event bus closed, dropping event")
		return
	}

	b.buffer = append(b.buffer, ev)
	b.cond.Signal()
}

// Close stops accepting events and terminates the dispatch loop once the
// buffered events have been handled. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cond.Signal()
	b.mu.Unlock()

	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.buffer) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.buffer) == 0 {
			b.mu.Unlock()
			return
		}
		ev := b.buffer[0]
		b.buffer[0] = nil
		b.buffer = b.buffer[1:]
		handlers := b.handlers
		b.mu.Unlock()

		for _, h := range handlers {
			b.invoke(h, ev)
		}
	}
}

// invoke isolates handler panics so one misbehaving subscriber cannot stop
// the bus or starve the remaining handlers.
func (b *Bus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"event": ev.Name(),
				"panic": r,
			}).Error("Event handler panicked")
		}
	}()
	h(ev)
}
