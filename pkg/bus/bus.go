package bus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sipeed/dialogbridge/pkg/logger"
)

type registration struct {
	name    string
	handler Handler
	active  atomic.Bool
}

// Subscription identifies a registered handler. The zero value is valid and
// unsubscribing it is a no-op.
type Subscription struct {
	Signal Signal
	Name   string
}

// MessageBus is a process-wide publish/subscribe bus.
//
// Dispatch is serialized: the goroutine that finds the bus idle becomes the
// drainer and delivers its event and everything queued behind it, including
// events published re-entrantly from handlers (breadth-first) and events
// published concurrently by other goroutines. Handlers therefore never run
// concurrently with each other.
type MessageBus struct {
	mu       sync.RWMutex
	handlers map[Signal][]*registration
	closed   bool

	qmu      sync.Mutex
	queue    []Event
	draining bool
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		handlers: make(map[Signal][]*registration),
	}
}

// Subscribe registers handler for signal under name. Subscribing an existing
// (signal, name) pair replaces its handler in place, keeping its position in
// delivery order.
func (mb *MessageBus) Subscribe(signal Signal, name string, handler Handler) Subscription {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	sub := Subscription{Signal: signal, Name: name}
	if mb.closed || handler == nil {
		return sub
	}

	reg := &registration{name: name, handler: handler}
	reg.active.Store(true)

	// Copy-on-write so an in-flight dispatch keeps its own snapshot.
	regs := mb.handlers[signal]
	next := make([]*registration, 0, len(regs)+1)
	replaced := false
	for _, r := range regs {
		if r.name == name {
			r.active.Store(false)
			next = append(next, reg)
			replaced = true
			continue
		}
		next = append(next, r)
	}
	if !replaced {
		next = append(next, reg)
	}
	mb.handlers[signal] = next
	return sub
}

// Unsubscribe removes the subscription. Safe to call more than once.
func (mb *MessageBus) Unsubscribe(sub Subscription) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	regs := mb.handlers[sub.Signal]
	for i, r := range regs {
		if r.name != sub.Name {
			continue
		}
		r.active.Store(false)
		next := make([]*registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(mb.handlers, sub.Signal)
		} else {
			mb.handlers[sub.Signal] = next
		}
		return
	}
}

// SubscriberCount reports how many handlers are registered for signal.
func (mb *MessageBus) SubscriberCount(signal Signal) int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.handlers[signal])
}

// Publish delivers ev to every subscriber of ev.Signal in registration order.
// Events with no subscribers are dropped.
func (mb *MessageBus) Publish(ev Event) {
	mb.qmu.Lock()
	mb.queue = append(mb.queue, ev)
	if mb.draining {
		mb.qmu.Unlock()
		return
	}
	mb.draining = true

	for len(mb.queue) > 0 {
		next := mb.queue[0]
		mb.queue[0] = Event{}
		mb.queue = mb.queue[1:]
		mb.qmu.Unlock()

		mb.dispatch(next)

		mb.qmu.Lock()
	}
	mb.queue = nil
	mb.draining = false
	mb.qmu.Unlock()
}

func (mb *MessageBus) dispatch(ev Event) {
	mb.mu.RLock()
	if mb.closed {
		mb.mu.RUnlock()
		return
	}
	regs := mb.handlers[ev.Signal]
	mb.mu.RUnlock()

	for _, reg := range regs {
		if !reg.active.Load() {
			continue
		}
		mb.invoke(reg, ev)
	}
}

func (mb *MessageBus) invoke(reg *registration, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("bus", "Handler panic", map[string]any{
				"signal":  string(ev.Signal),
				"handler": reg.name,
				"panic":   fmt.Sprintf("%v", r),
			})
		}
	}()
	reg.handler(ev)
}

// Close drops all subscriptions; later publishes are discarded.
func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	for _, regs := range mb.handlers {
		for _, r := range regs {
			r.active.Store(false)
		}
	}
	mb.handlers = make(map[Signal][]*registration)
}
