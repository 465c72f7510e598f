package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/dialogbridge/cmd/dialogbridge/internal"
	"github.com/sipeed/dialogbridge/cmd/dialogbridge/internal/demo"
	"github.com/sipeed/dialogbridge/cmd/dialogbridge/internal/endpoint"
	"github.com/sipeed/dialogbridge/cmd/dialogbridge/internal/remote"
	"github.com/sipeed/dialogbridge/cmd/dialogbridge/internal/version"
)

func NewDialogbridgeCommand() *cobra.Command {
	short := fmt.Sprintf("Remote control for interactive sessions v%s", internal.GetVersion())

	cmd := &cobra.Command{
		Use:           "dialogbridge",
		Short:         short,
		Example:       "dialogbridge list",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		endpoint.NewEndpointCommand(),
		endpoint.NewListCommand(),
		remote.NewPromptCommand(),
		remote.NewAnswerCommand(),
		remote.NewHistoryCommand(),
		remote.NewWatchCommand(),
		demo.NewDemoCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewDialogbridgeCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
