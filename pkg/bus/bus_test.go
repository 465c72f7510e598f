package bus

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishRegistrationOrder(t *testing.T) {
	mb := NewMessageBus()
	var got []string

	mb.Subscribe(SignalResponse, "a", func(ev Event) { got = append(got, "a:"+ev.Text) })
	mb.Subscribe(SignalResponse, "b", func(ev Event) { got = append(got, "b:"+ev.Text) })
	mb.Subscribe(SignalThought, "c", func(ev Event) { got = append(got, "c:"+ev.Text) })

	mb.Publish(Event{Signal: SignalResponse, Text: "hi"})

	assert.Equal(t, []string{"a:hi", "b:hi"}, got)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	mb := NewMessageBus()
	assert.NotPanics(t, func() {
		mb.Publish(Event{Signal: SignalToolCall, Text: "ls"})
	})
}

func TestSubscribeSameNameReplaces(t *testing.T) {
	mb := NewMessageBus()
	var got []string

	mb.Subscribe(SignalResponse, "first", func(Event) { got = append(got, "old") })
	mb.Subscribe(SignalResponse, "second", func(Event) { got = append(got, "second") })
	mb.Subscribe(SignalResponse, "first", func(Event) { got = append(got, "new") })

	mb.Publish(Event{Signal: SignalResponse})

	assert.Equal(t, []string{"new", "second"}, got)
	assert.Equal(t, 2, mb.SubscriberCount(SignalResponse))
}

func TestUnsubscribeIdempotent(t *testing.T) {
	mb := NewMessageBus()
	calls := 0
	sub := mb.Subscribe(SignalResponse, "x", func(Event) { calls++ })

	mb.Unsubscribe(sub)
	mb.Unsubscribe(sub)
	mb.Unsubscribe(Subscription{})
	mb.Publish(Event{Signal: SignalResponse})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, mb.SubscriberCount(SignalResponse))
}

func TestReentrantPublishIsBreadthFirst(t *testing.T) {
	mb := NewMessageBus()
	var order []string

	mb.Subscribe(SignalDialogAnswered, "router", func(ev Event) {
		order = append(order, "answered:start")
		mb.Publish(Event{Signal: SignalInteractionFinished})
		order = append(order, "answered:end")
	})
	mb.Subscribe(SignalDialogAnswered, "audit", func(Event) {
		order = append(order, "answered:audit")
	})
	mb.Subscribe(SignalInteractionFinished, "ipc", func(Event) {
		order = append(order, "finished")
	})

	mb.Publish(Event{Signal: SignalDialogAnswered, Text: "yes"})

	assert.Equal(t, []string{
		"answered:start",
		"answered:end",
		"answered:audit",
		"finished",
	}, order)
}

func TestUnsubscribeDuringDispatchSkipsHandler(t *testing.T) {
	mb := NewMessageBus()
	var second Subscription
	calls := 0

	mb.Subscribe(SignalResponse, "first", func(Event) { mb.Unsubscribe(second) })
	second = mb.Subscribe(SignalResponse, "second", func(Event) { calls++ })

	mb.Publish(Event{Signal: SignalResponse})
	assert.Equal(t, 0, calls)
}

func TestHandlerPanicIsContained(t *testing.T) {
	mb := NewMessageBus()
	reached := false

	mb.Subscribe(SignalResponse, "bad", func(Event) { panic("boom") })
	mb.Subscribe(SignalResponse, "good", func(Event) { reached = true })

	require.NotPanics(t, func() { mb.Publish(Event{Signal: SignalResponse}) })
	assert.True(t, reached)

	// The bus is still usable after a panic.
	reached = false
	mb.Publish(Event{Signal: SignalResponse})
	assert.True(t, reached)
}

func TestConcurrentPublishersSerializeHandlers(t *testing.T) {
	mb := NewMessageBus()
	var inFlight, maxInFlight, total atomic.Int32

	mb.Subscribe(SignalPromptSubmitted, "owner", func(Event) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		total.Add(1)
		inFlight.Add(-1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				mb.Publish(Event{Signal: SignalPromptSubmitted})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, int32(1600), total.Load())
}

func TestClose(t *testing.T) {
	mb := NewMessageBus()
	calls := 0
	mb.Subscribe(SignalResponse, "x", func(Event) { calls++ })

	mb.Close()
	mb.Close()
	mb.Publish(Event{Signal: SignalResponse})
	mb.Subscribe(SignalResponse, "y", func(Event) { calls++ })
	mb.Publish(Event{Signal: SignalResponse})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, mb.SubscriberCount(SignalResponse))
}
