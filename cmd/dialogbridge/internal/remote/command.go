package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/dialogbridge/cmd/dialogbridge/internal"
	"github.com/sipeed/dialogbridge/pkg/ipc"
)

func connect(cmd *cobra.Command, pidArg string) (*ipc.Client, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return internal.DialSession(cmd.Context(), cfg, pidArg)
}

func NewPromptCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "prompt <pid> <text>",
		Short:   "Submit a prompt to a running session",
		Example: `dialogbridge prompt 4242 "run the tests"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd, args[0])
			if err != nil {
				return err
			}
			defer c.Close()
			return c.SendPrompt(strings.Join(args[1:], " "))
		},
	}
}

func NewAnswerCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "answer <pid> <token>",
		Short:   "Answer the pending dialog of a running session",
		Example: "dialogbridge answer 4242 yes",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd, args[0])
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Answer(args[1])
		},
	}
}

func NewHistoryCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "history <pid>",
		Short: "Print the conversation history of a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd, args[0])
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.RequestHistory(); err != nil {
				return err
			}
			text, err := awaitResponse(c.Frames(), timeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the dump")
	return cmd
}

// awaitResponse returns the text of the first response frame.
func awaitResponse(frames <-chan ipc.Frame, timeout time.Duration) (string, error) {
	deadline := time.After(timeout)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return "", errors.New("session closed the connection")
			}
			if f.Type == ipc.FrameResponse {
				return f.Text, nil
			}
		case <-deadline:
			return "", fmt.Errorf("no history received within %s", timeout)
		}
	}
}

func NewWatchCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "watch <pid>",
		Short: "Stream responses and dialogs from a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := connect(cmd, args[0])
			if err != nil {
				return err
			}
			defer c.Close()
			return watch(ctx, c.Frames(), cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw frames as JSON lines")
	return cmd
}

func watch(ctx context.Context, frames <-chan ipc.Frame, out io.Writer, asJSON bool) error {
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				fmt.Fprintln(out, "session closed")
				return nil
			}
			if asJSON {
				if err := enc.Encode(f); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(out, FormatFrame(f))
		}
	}
}

// FormatFrame renders a frame for terminal output.
func FormatFrame(f ipc.Frame) string {
	switch f.Type {
	case ipc.FrameDialog:
		s := fmt.Sprintf("[dialog %s] %s", f.DialogType, f.Prompt)
		if len(f.Options) > 0 {
			s += " (" + strings.Join(f.Options, " / ") + ")"
		}
		return s
	case ipc.FrameDialogFinished:
		if f.DialogType != "" {
			return "[dialog finished " + f.DialogType + "]"
		}
		return "[dialog finished]"
	default:
		return "[" + f.Type + "] " + f.Text
	}
}
