// Package bridge wires the bus, dialog router, transport, history responder
// and audit sink into one object a host session embeds.
package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/sipeed/dialogbridge/pkg/audit"
	"github.com/sipeed/dialogbridge/pkg/bus"
	"github.com/sipeed/dialogbridge/pkg/config"
	"github.com/sipeed/dialogbridge/pkg/dialog"
	"github.com/sipeed/dialogbridge/pkg/history"
	"github.com/sipeed/dialogbridge/pkg/ipc"
	"github.com/sipeed/dialogbridge/pkg/logger"
)

type Bridge struct {
	cfg     *config.Config
	bus     *bus.MessageBus
	router  *dialog.Router
	server  *ipc.Server
	history *history.Responder
	audit   *audit.Sink

	mu      sync.Mutex
	started bool
	closed  bool
	bound   bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a bridge. A nil cfg uses defaults. An audit log that cannot be
// opened is logged and skipped.
func New(cfg *config.Config, actions dialog.Actions, src history.Source) *Bridge {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.RLock()
	remote := cfg.Remote
	auditCfg := cfg.Audit
	cfg.RUnlock()

	b := &Bridge{cfg: cfg, bus: bus.NewMessageBus()}

	var opts []dialog.RouterOption
	if auditCfg.Enabled {
		sink, err := audit.Open(audit.ConfigFrom(auditCfg))
		if err != nil {
			logger.WarnCF("bridge", "Audit log disabled", map[string]any{"error": err.Error()})
		} else {
			b.audit = sink
			opts = append(opts, dialog.WithAuditSink(sink))
		}
	}

	b.router = dialog.NewRouter(b.bus, actions, opts...)
	b.history = history.NewResponder(b.bus, src)
	if remote.Enabled {
		b.server = ipc.NewServer(b.bus, ipc.OptionsFromConfig(remote))
	}
	return b
}

// Start runs the router and binds the endpoint. A bind failure is logged and
// leaves the bridge running without remote control.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("bridge closed")
	}
	if b.started {
		return nil
	}
	b.started = true

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		_ = b.router.Run(ctx)
	}()

	if b.server != nil {
		if err := b.server.Start(); err != nil {
			logger.WarnCF("bridge", "Remote control unavailable", map[string]any{"error": err.Error()})
		} else {
			b.bound = true
		}
	}
	return nil
}

// Update hands the bridge the current session state.
func (b *Bridge) Update(s *dialog.Snapshot) {
	b.router.Submit(s)
}

func (b *Bridge) Response(text string) { b.bus.Publish(bus.Event{Signal: bus.SignalResponse, Text: text}) }
func (b *Bridge) Thought(text string)  { b.bus.Publish(bus.Event{Signal: bus.SignalThought, Text: text}) }
func (b *Bridge) CodeDiff(text string) { b.bus.Publish(bus.Event{Signal: bus.SignalCodeDiff, Text: text}) }
func (b *Bridge) ToolCall(text string) { b.bus.Publish(bus.Event{Signal: bus.SignalToolCall, Text: text}) }

// OnPrompt registers fn for prompts submitted by controllers, replacing any
// earlier registration. fn runs on the bus dispatch goroutine.
func (b *Bridge) OnPrompt(fn func(text string)) {
	b.bus.Subscribe(bus.SignalPromptSubmitted, "bridge-prompt", func(ev bus.Event) {
		fn(ev.Text)
	})
}

// Bus exposes the bridge's bus for additional subscribers.
func (b *Bridge) Bus() *bus.MessageBus { return b.bus }

// Endpoint returns the bound endpoint, or "" when remote control is off.
func (b *Bridge) Endpoint() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.bound {
		return ""
	}
	return b.server.Endpoint()
}

// Close stops the router, disconnects controllers and discards any pending
// interactions.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var errs []error
	if b.server != nil {
		errs = append(errs, b.server.Close())
	}
	b.history.Close()
	if b.audit != nil {
		errs = append(errs, b.audit.Close())
	}
	b.bus.Close()
	return errors.Join(errs...)
}
