package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func newMCPCmd(a *app) *cobra.Command {
	var toolset string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose the gateway tools over MCP on stdio",
		Long: `Serve the tools of a toolset to an agent runtime over the Model Context
Protocol. Patterns are validated against a surface owned by this process;
use "serve" to share the surface with UI clients.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			svc, err := a.newSurface()
			if err != nil {
				return err
			}
			defer svc.Close()

			srv, err := a.newMCPServer(svc, toolset)
			if err != nil {
				return err
			}
			return srv.ServeStdio(ctx)
		},
	}
	cmd.Flags().StringVarP(&toolset, "toolset", "t", "default", "toolset to expose")
	return cmd
}
