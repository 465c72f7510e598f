package demo

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sipeed/dialogbridge/cmd/dialogbridge/internal"
	"github.com/sipeed/dialogbridge/pkg/bridge"
)

func NewDemoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a simulated session with the bridge attached",
		Long: `Runs a scripted session that controllers can drive. Prompts starting with
/model, /trust, /theme or /settings open the matching dialog; any other
prompt asks for confirmation to run a shell command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			cfg.Remote.Enabled = true

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			sess := NewSession(out)
			b := bridge.New(cfg, sess, sess)
			if err := b.Start(ctx); err != nil {
				return err
			}
			defer b.Close()

			if ep := b.Endpoint(); ep != "" {
				fmt.Fprintf(out, "Demo session listening on %s\n", ep)
				fmt.Fprintln(out, "Try: dialogbridge watch auto   and   dialogbridge prompt auto /model")
			} else {
				fmt.Fprintln(out, "Demo session running without remote control")
			}
			sess.Attach(b)

			<-ctx.Done()
			fmt.Fprintln(out, "Shutting down")
			return nil
		},
	}
}
