package dialog

import (
	"errors"
	"slices"

	"github.com/sipeed/dialogbridge/pkg/bus"
	"github.com/sipeed/dialogbridge/pkg/logger"
)

type NoticeType int

const (
	NoticeOpened NoticeType = iota
	NoticeFinished
)

func (t NoticeType) String() string {
	if t == NoticeFinished {
		return "finished"
	}
	return "opened"
}

// Notice is an announcement the router publishes on the bus.
type Notice struct {
	Type        NoticeType
	Interaction *Interaction
}

// Event converts the notice into its bus event.
func (n Notice) Event() bus.Event {
	if n.Type == NoticeFinished {
		return bus.Event{Signal: bus.SignalInteractionFinished, Dialog: n.Interaction.Dialog()}
	}
	return bus.Event{Signal: bus.SignalDialogOpened, Dialog: n.Interaction.Dialog()}
}

// AnswerResult describes where an answer went.
type AnswerResult struct {
	Interaction *Interaction
	Token       string
	// Fallback is set when the answer went to a tool confirmation only
	// because nothing more specific was pending.
	Fallback bool
	// Finished carries the notice to publish once the answer is applied.
	Finished *Notice
}

// Tracker deduplicates announcements and routes answers. It is not safe for
// concurrent use; the Router owns it.
type Tracker struct {
	global *Interaction

	calls     map[string]*Interaction
	callOrder []string
	// resolved holds call ids answered remotely that the UI still shows as
	// confirming.
	resolved map[string]struct{}
	// lastCallID is set while the most recent announcement is a tool call.
	lastCallID string
}

func NewTracker() *Tracker {
	return &Tracker{
		calls:    make(map[string]*Interaction),
		resolved: make(map[string]struct{}),
	}
}

// Observe reconciles tracked state with the current candidates and returns
// the notices to publish, in order.
func (t *Tracker) Observe(global *Interaction, calls []*Interaction) []Notice {
	var notices []Notice

	switch {
	case global != nil && t.global != nil && t.global.Identity == global.Identity:
		notices = append(notices, t.rebindGlobal(global)...)
	case global != nil:
		if t.global != nil {
			t.global.Handle.Discard()
			logger.DebugCF("dialog", "Superseded global dialog", map[string]any{"kind": string(t.global.Kind)})
		}
		t.global = global
		t.lastCallID = ""
		notices = append(notices, Notice{Type: NoticeOpened, Interaction: global})
	case global == nil && t.global != nil:
		t.global.Handle.Discard()
		notices = append(notices, Notice{Type: NoticeFinished, Interaction: t.global})
		t.global = nil
	}

	current := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		current[c.CallID] = struct{}{}
		if _, ok := t.calls[c.CallID]; ok {
			continue
		}
		if _, ok := t.resolved[c.CallID]; ok {
			continue
		}
		t.calls[c.CallID] = c
		t.callOrder = append(t.callOrder, c.CallID)
		t.lastCallID = c.CallID
		notices = append(notices, Notice{Type: NoticeOpened, Interaction: c})
	}

	for _, id := range slices.Clone(t.callOrder) {
		if _, ok := current[id]; ok {
			continue
		}
		t.calls[id].Handle.Discard()
		t.forget(id)
		logger.DebugCF("dialog", "Cleaning up tool confirmation", map[string]any{"call_id": id})
	}
	for id := range t.resolved {
		if _, ok := current[id]; !ok {
			delete(t.resolved, id)
		}
	}

	return notices
}

// rebindGlobal points the tracked global dialog at the candidate from the
// latest snapshot so answers reach the request the UI is showing now. A dialog
// already answered is announced again only when a new request replaced it.
func (t *Tracker) rebindGlobal(global *Interaction) []Notice {
	if t.global.Handle.Discard() {
		t.global = global
		return nil
	}
	if global.request == nil || global.request == t.global.request {
		global.Handle.Discard()
		return nil
	}
	t.global = global
	t.lastCallID = ""
	return []Notice{{Type: NoticeOpened, Interaction: global}}
}

// Answer routes token to the interaction the controller is most likely
// answering: the latest tool confirmation when it was the last thing
// announced, otherwise the global dialog, otherwise the latest tool
// confirmation still pending.
func (t *Tracker) Answer(token string) (AnswerResult, error) {
	if ia, ok := t.calls[t.lastCallID]; ok {
		return t.answerCall(ia, token, false)
	}
	if t.global != nil && t.global.Handle.Live() {
		return t.answerGlobal(token)
	}
	if n := len(t.callOrder); n > 0 {
		return t.answerCall(t.calls[t.callOrder[n-1]], token, true)
	}
	if t.global != nil {
		return AnswerResult{Interaction: t.global, Token: token}, ErrAlreadyResolved
	}
	return AnswerResult{Token: token}, ErrUnroutable
}

func (t *Tracker) answerCall(ia *Interaction, token string, fallback bool) (AnswerResult, error) {
	t.forget(ia.CallID)
	t.resolved[ia.CallID] = struct{}{}
	res := AnswerResult{
		Interaction: ia,
		Token:       token,
		Fallback:    fallback,
		Finished:    &Notice{Type: NoticeFinished, Interaction: ia},
	}
	return res, ia.Handle.Resolve(token)
}

func (t *Tracker) answerGlobal(token string) (AnswerResult, error) {
	res := AnswerResult{Interaction: t.global, Token: token}
	err := t.global.Handle.Resolve(token)
	if err != nil && !errors.Is(err, ErrRejected) {
		logger.WarnCF("dialog", "Global dialog callback failed", map[string]any{
			"kind":  string(t.global.Kind),
			"error": err.Error(),
		})
	}
	return res, err
}

func (t *Tracker) forget(id string) {
	delete(t.calls, id)
	if i := slices.Index(t.callOrder, id); i >= 0 {
		t.callOrder = slices.Delete(t.callOrder, i, i+1)
	}
	if t.lastCallID == id {
		t.lastCallID = ""
	}
}

// Reset discards every tracked handle.
func (t *Tracker) Reset() {
	if t.global != nil {
		t.global.Handle.Discard()
		t.global = nil
	}
	for _, ia := range t.calls {
		ia.Handle.Discard()
	}
	clear(t.calls)
	clear(t.resolved)
	t.callOrder = nil
	t.lastCallID = ""
}

// GlobalIdentity returns the identity of the tracked global dialog, or "".
func (t *Tracker) GlobalIdentity() string {
	if t.global == nil {
		return ""
	}
	return t.global.Identity
}

// AnnouncedCallIDs returns the pending tool call ids in announcement order.
func (t *Tracker) AnnouncedCallIDs() []string {
	return slices.Clone(t.callOrder)
}
