package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/m4xw311/strudelgate/bridge"
	"github.com/m4xw311/strudelgate/server"
	"github.com/m4xw311/strudelgate/widget"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, toolset string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the live surface over HTTP and websocket",
		Long: `Serve the live surface state, the error log and widget forms.

Clients connect to /ws for a stream of view and widget updates; /api takes
pattern edits, playback control and streamed widget props. Agents reach the
gateway tools over MCP at /mcp, on the same surface the clients see.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := a.newSurface()
			if err != nil {
				return err
			}
			defer svc.Close()

			br := bridge.New(svc, a.logger)
			if err := br.Mount(ctx); err != nil {
				return err
			}
			defer br.Unmount()
			go br.Run(ctx)

			gateway, err := a.newMCPServer(svc, toolset)
			if err != nil {
				return err
			}
			srv := server.New(svc, br, widget.NewRegistry(), a.cfg.Server, a.logger,
				server.WithMCP(gateway.Handler()))
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVarP(&toolset, "toolset", "t", "default", "toolset exposed at /mcp")
	return cmd
}
