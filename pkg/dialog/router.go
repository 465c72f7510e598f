package dialog

import (
	"context"
	"errors"
	"sync"

	"github.com/sipeed/dialogbridge/pkg/bus"
	"github.com/sipeed/dialogbridge/pkg/logger"
)

// AuditSink records every announced interaction.
type AuditSink interface {
	Record(d bus.Dialog) error
}

type RouterOption func(*Router)

func WithAuditSink(sink AuditSink) RouterOption {
	return func(r *Router) { r.audit = sink }
}

// WithAnswerBuffer sets how many answers may queue while Run is busy.
func WithAnswerBuffer(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.answers = make(chan string, n)
		}
	}
}

// Router binds a Detector and a Tracker to the bus. Snapshots and answers
// are applied on the goroutine running Run.
type Router struct {
	bus      *bus.MessageBus
	detector *Detector
	tracker  *Tracker
	audit    AuditSink
	sub      bus.Subscription

	mu      sync.Mutex
	pending *Snapshot
	wake    chan struct{}
	answers chan string
}

func NewRouter(mb *bus.MessageBus, actions Actions, opts ...RouterOption) *Router {
	r := &Router{
		bus:      mb,
		detector: NewDetector(actions),
		tracker:  NewTracker(),
		wake:     make(chan struct{}, 1),
		answers:  make(chan string, 16),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sub = mb.Subscribe(bus.SignalDialogAnswered, "dialog-router", r.onAnswer)
	return r
}

// Submit hands the router the latest session snapshot. Snapshots that arrive
// before Run picks them up are coalesced; only the newest is scanned.
func (r *Router) Submit(s *Snapshot) {
	r.mu.Lock()
	r.pending = s
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Router) onAnswer(ev bus.Event) {
	select {
	case r.answers <- ev.Text:
	default:
		logger.WarnCF("dialog", "Answer queue full, dropping answer", map[string]any{
			"answer": logger.Truncate(ev.Text, 50),
		})
	}
}

// Run processes snapshots and answers until ctx is done. Pending handles are
// discarded on return.
func (r *Router) Run(ctx context.Context) error {
	defer func() {
		r.bus.Unsubscribe(r.sub)
		r.tracker.Reset()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
			r.mu.Lock()
			s := r.pending
			r.pending = nil
			r.mu.Unlock()
			if s != nil {
				r.observe(s)
			}
		case token := <-r.answers:
			r.answer(token)
		}
	}
}

func (r *Router) observe(s *Snapshot) {
	global, calls := r.detector.Detect(s)
	for _, n := range r.tracker.Observe(global, calls) {
		if n.Type == NoticeOpened {
			logger.InfoCF("dialog", "Dialog opened", map[string]any{
				"type":   n.Interaction.Type,
				"prompt": logger.Truncate(n.Interaction.Prompt, 50),
			})
			r.record(n.Interaction)
		}
		r.bus.Publish(n.Event())
	}
}

func (r *Router) answer(token string) {
	res, err := r.tracker.Answer(token)
	switch {
	case errors.Is(err, ErrUnroutable):
		logger.WarnCF("dialog", "Unroutable answer dropped", map[string]any{
			"answer": logger.Truncate(token, 50),
		})
		return
	case err != nil:
		logger.WarnCF("dialog", "Answer not applied", map[string]any{
			"type":   res.Interaction.Type,
			"answer": logger.Truncate(token, 50),
			"error":  err.Error(),
		})
	default:
		logger.InfoCF("dialog", "Answer applied", map[string]any{
			"type":     res.Interaction.Type,
			"answer":   logger.Truncate(token, 50),
			"fallback": res.Fallback,
		})
	}
	if res.Finished != nil {
		r.bus.Publish(res.Finished.Event())
	}
}

func (r *Router) record(ia *Interaction) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(*ia.Dialog()); err != nil {
		logger.WarnCF("dialog", "Audit record failed", map[string]any{"error": err.Error()})
	}
}
