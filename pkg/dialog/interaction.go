package dialog

import "github.com/sipeed/dialogbridge/pkg/bus"

// Interaction is one pending request for user input.
type Interaction struct {
	Kind Kind
	// Type is the dialogType put on the wire.
	Type string
	// Identity is Type+":"+Prompt for global dialogs and the call id for
	// tool confirmations.
	Identity string
	Prompt   string
	Options  []string
	CallID   string
	Handle   *Handle

	// request is the host object the handle resolves against, nil for
	// dialogs answered only through Actions.
	request any
}

// Dialog converts the interaction into its bus payload.
func (i *Interaction) Dialog() *bus.Dialog {
	opts := make([]string, len(i.Options))
	copy(opts, i.Options)
	return &bus.Dialog{Type: i.Type, Prompt: i.Prompt, Options: opts}
}

func (i *Interaction) IsTool() bool { return i.CallID != "" }
