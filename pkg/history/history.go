// Package history answers remote history requests with a text dump of the
// session.
package history

import (
	"strings"
	"time"

	"github.com/sipeed/dialogbridge/pkg/bus"
	"github.com/sipeed/dialogbridge/pkg/dialog"
	"github.com/sipeed/dialogbridge/pkg/logger"
)

const EmptyHistory = "No conversation history to dump."

var separator = strings.Repeat("=", 40)

// Source supplies the committed session history.
type Source interface {
	History() []dialog.HistoryItem
}

// SourceFunc adapts a function to Source.
type SourceFunc func() []dialog.HistoryItem

func (f SourceFunc) History() []dialog.HistoryItem { return f() }

// Render formats items as a plain-text dump.
func Render(items []dialog.HistoryItem) string {
	if len(items) == 0 {
		return EmptyHistory
	}

	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("[" + strings.ToUpper(string(item.Type)) + "]")
		if !item.Timestamp.IsZero() {
			sb.WriteString(" " + item.Timestamp.UTC().Format(time.RFC3339))
		}
		sb.WriteString("\n")
		if item.Text != "" {
			sb.WriteString(item.Text + "\n")
		}

		if len(item.Thoughts) > 0 {
			sb.WriteString("Thoughts:\n")
			for _, th := range item.Thoughts {
				sb.WriteString("- " + th.Subject + ": " + th.Description + "\n")
			}
		}
		if len(item.Tools) > 0 {
			sb.WriteString("Tool Calls:\n")
			for _, tc := range item.Tools {
				sb.WriteString("- " + tc.Name + "(" + tc.Args + ") [" + string(tc.Status) + "]\n")
				if tc.Result != "" {
					sb.WriteString("  Result: " + tc.Result + "\n")
				}
			}
		}
		sb.WriteString("\n" + separator + "\n\n")
	}
	return sb.String()
}

// Responder publishes a history dump as a response whenever a controller
// asks for one.
type Responder struct {
	bus    *bus.MessageBus
	source Source
	sub    bus.Subscription
}

func NewResponder(mb *bus.MessageBus, source Source) *Responder {
	r := &Responder{bus: mb, source: source}
	r.sub = mb.Subscribe(bus.SignalHistoryRequested, "history-responder", r.handle)
	return r
}

func (r *Responder) handle(bus.Event) {
	var items []dialog.HistoryItem
	if r.source != nil {
		items = r.source.History()
	}
	logger.DebugCF("history", "Dumping history", map[string]any{"items": len(items)})
	r.bus.Publish(bus.Event{Signal: bus.SignalResponse, Text: Render(items)})
}

func (r *Responder) Close() {
	r.bus.Unsubscribe(r.sub)
}
