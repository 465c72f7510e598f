package dialog

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnroutable      = errors.New("no pending interaction to route answer to")
	ErrAlreadyResolved = errors.New("interaction already resolved")
	ErrDiscarded       = errors.New("interaction was superseded")
	ErrRejected        = errors.New("answer not accepted for this interaction")
	ErrCallbackPanic   = errors.New("interaction callback panicked")
)

// ResolveFunc delivers an answer token to the UI. It reports false when the
// token is not a valid answer for the interaction; the handle then stays live.
type ResolveFunc func(token string) (accepted bool, err error)

type handleState int

const (
	handleLive handleState = iota
	handleResolved
	handleDiscarded
)

// Handle is a single-use resolution handle. Resolve consumes it and Discard
// invalidates it; whichever comes first wins.
type Handle struct {
	mu    sync.Mutex
	fn    ResolveFunc
	state handleState
}

func NewHandle(fn ResolveFunc) *Handle {
	return &Handle{fn: fn}
}

// Resolve invokes the callback at most once. A panic in the callback is
// returned as ErrCallbackPanic and still consumes the handle.
func (h *Handle) Resolve(token string) (err error) {
	h.mu.Lock()
	switch h.state {
	case handleResolved:
		h.mu.Unlock()
		return ErrAlreadyResolved
	case handleDiscarded:
		h.mu.Unlock()
		return ErrDiscarded
	}
	fn := h.fn
	h.fn = nil
	h.state = handleResolved
	h.mu.Unlock()

	if fn == nil {
		return nil
	}

	accepted := true
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrCallbackPanic, r)
			}
		}()
		accepted, err = fn(token)
	}()
	if err != nil {
		return err
	}

	if !accepted {
		h.mu.Lock()
		if h.state == handleResolved {
			h.state = handleLive
			h.fn = fn
		}
		h.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrRejected, token)
	}
	return nil
}

// Discard invalidates a live handle. It reports whether the handle was live.
func (h *Handle) Discard() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != handleLive {
		return false
	}
	h.state = handleDiscarded
	h.fn = nil
	return true
}

func (h *Handle) Live() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == handleLive
}
