package endpoint

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sipeed/dialogbridge/cmd/dialogbridge/internal"
	"github.com/sipeed/dialogbridge/pkg/ipc"
)

func NewEndpointCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "endpoint [pid]",
		Short:   "Print the endpoint a session listens on",
		Example: "dialogbridge endpoint 4242",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			opts := ipc.OptionsFromConfig(cfg.Remote)

			if len(args) == 0 {
				ep, err := ipc.ResolveEndpoint(opts, 0)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ep)
				return nil
			}

			pid, err := internal.ParsePID(args[0])
			if err != nil {
				return err
			}
			if pid == 0 {
				ep, err := ipc.ResolveEndpoint(opts, 0)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ep)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ipc.EndpointName(opts.Prefix, opts.SocketDir, pid))
			return nil
		},
	}
}

func NewListCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List running sessions with remote control enabled",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			eps, err := ipc.ListEndpoints(ipc.OptionsFromConfig(cfg.Remote))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if eps == nil {
					eps = []ipc.Endpoint{}
				}
				return enc.Encode(eps)
			}
			if len(eps) == 0 {
				fmt.Fprintln(out, "No running sessions.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PID\tENDPOINT")
			for _, ep := range eps {
				fmt.Fprintf(tw, "%d\t%s\n", ep.PID, ep.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
