package main

import (
	"github.com/spf13/cobra"

	"github.com/m4xw311/strudelgate/agent/acp"
)

func newACPCmd(a *app) *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "acp",
		Short: "Serve the agent to an editor over the Agent Client Protocol",
		Long: `Speak the Agent Client Protocol (newline-delimited JSON-RPC) on stdin and
stdout so editors such as Zed can drive the agent. Tools run without
confirmation; logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.mode = "auto"
			ag, svc, err := a.newAgent(cmd.Context(), &f)
			if err != nil {
				return err
			}
			defer svc.Close()
			return acp.NewServer(ag, a.logger).Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&f.session, "session", "s", "", "session used as the template for new ACP sessions")
	cmd.Flags().StringVarP(&f.toolset, "toolset", "t", "", "toolset to use (defaults to 'default')")
	return cmd
}
