package ipc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sipeed/dialogbridge/pkg/bus"
)

var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMissingField     = errors.New("missing required field")
	ErrLineTooLong      = errors.New("line exceeds maximum message size")
)

const (
	CommandPrompt         = "prompt"
	CommandGetHistory     = "getHistory"
	CommandDialogResponse = "dialogResponse"
)

const (
	FrameResponse       = "response"
	FrameThought        = "thought"
	FrameCodeDiff       = "codeDiff"
	FrameToolCall       = "toolCall"
	FrameDialog         = "dialog"
	FrameDialogFinished = "dialogFinished"
)

// Command is one inbound line from a controller.
type Command struct {
	Command  string `json:"command"`
	Text     string `json:"text,omitempty"`
	Response string `json:"response,omitempty"`
}

// DecodeCommand parses and validates one line.
func DecodeCommand(line []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	switch cmd.Command {
	case CommandPrompt:
		if cmd.Text == "" {
			return cmd, fmt.Errorf("%w: prompt requires text", ErrMissingField)
		}
	case CommandDialogResponse:
		if cmd.Response == "" {
			return cmd, fmt.Errorf("%w: dialogResponse requires response", ErrMissingField)
		}
	case CommandGetHistory:
	case "":
		return cmd, fmt.Errorf("%w: command", ErrMissingField)
	default:
		return cmd, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	return cmd, nil
}

// Event maps a validated command onto its bus event.
func (c Command) Event() bus.Event {
	switch c.Command {
	case CommandPrompt:
		return bus.Event{Signal: bus.SignalPromptSubmitted, Text: c.Text}
	case CommandDialogResponse:
		return bus.Event{Signal: bus.SignalDialogAnswered, Text: c.Response}
	default:
		return bus.Event{Signal: bus.SignalHistoryRequested}
	}
}

// EncodeCommand renders c as one newline-terminated line.
func EncodeCommand(c Command) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Frame is one outbound line as seen by a controller.
type Frame struct {
	Type       string   `json:"type"`
	Text       string   `json:"text,omitempty"`
	DialogType string   `json:"dialogType,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	Options    []string `json:"options,omitempty"`
}

type textFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type dialogFrame struct {
	Type       string   `json:"type"`
	DialogType string   `json:"dialogType"`
	Prompt     string   `json:"prompt"`
	Options    []string `json:"options"`
}

type finishedFrame struct {
	Type       string `json:"type"`
	DialogType string `json:"dialogType,omitempty"`
}

var textFrameTypes = map[bus.Signal]string{
	bus.SignalResponse: FrameResponse,
	bus.SignalThought:  FrameThought,
	bus.SignalCodeDiff: FrameCodeDiff,
	bus.SignalToolCall: FrameToolCall,
}

// EncodeEvent renders an outbound bus event as one newline-terminated line.
// It reports false for signals that are not forwarded to controllers.
func EncodeEvent(ev bus.Event) ([]byte, bool, error) {
	var v any
	switch ev.Signal {
	case bus.SignalDialogOpened:
		if ev.Dialog == nil {
			return nil, false, nil
		}
		opts := ev.Dialog.Options
		if opts == nil {
			opts = []string{}
		}
		v = dialogFrame{Type: FrameDialog, DialogType: ev.Dialog.Type, Prompt: ev.Dialog.Prompt, Options: opts}
	case bus.SignalInteractionFinished:
		f := finishedFrame{Type: FrameDialogFinished}
		if ev.Dialog != nil {
			f.DialogType = ev.Dialog.Type
		}
		v = f
	default:
		typ, ok := textFrameTypes[ev.Signal]
		if !ok {
			return nil, false, nil
		}
		v = textFrame{Type: typ, Text: ev.Text}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	return append(data, '\n'), true, nil
}

// DecodeFrame parses one outbound line.
func DecodeFrame(line []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return f, fmt.Errorf("%w: type", ErrMissingField)
	}
	return f, nil
}
