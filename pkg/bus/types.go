package bus

// Signal names a class of event carried on the bus.
type Signal string

const (
	// Inbound, published by the transport on behalf of a remote controller.
	SignalPromptSubmitted  Signal = "prompt-submitted"
	SignalHistoryRequested Signal = "history-requested"
	SignalDialogAnswered   Signal = "dialog-answered"

	// Outbound, published by the host session and the dialog router.
	SignalResponse            Signal = "response"
	SignalThought             Signal = "thought"
	SignalCodeDiff            Signal = "code-diff"
	SignalToolCall            Signal = "tool-call"
	SignalDialogOpened        Signal = "dialog-opened"
	SignalInteractionFinished Signal = "interaction-finished"
)

// Dialog is the payload of SignalDialogOpened.
type Dialog struct {
	Type    string   `json:"type"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

// Event is one published signal. Text carries the payload of text-shaped
// signals (prompt, response, thought, code diff, tool call, answer token);
// Dialog is set for SignalDialogOpened and, when known, for
// SignalInteractionFinished.
type Event struct {
	Signal Signal
	Text   string
	Dialog *Dialog
}

// Handler receives events for the signals it subscribed to.
type Handler func(Event)
