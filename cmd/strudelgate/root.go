package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/m4xw311/strudelgate/config"
	"github.com/m4xw311/strudelgate/pattern"
	"github.com/m4xw311/strudelgate/surface"
	"github.com/m4xw311/strudelgate/tools"
	"github.com/m4xw311/strudelgate/tools/mcp"
)

// app holds what every subcommand shares once flags are parsed.
type app struct {
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "strudelgate",
		Short: "Gateway between coding agents and a Strudel live surface",
		Long: `strudelgate validates agent-written Strudel patterns before they reach the
live surface, and streams surface state and widget forms to clients.

Configuration is read from ~/.strudelgate/config.yaml and then
./.strudelgate/config.yaml, or from the file given with --config.

Examples:
  strudelgate serve
  strudelgate chat -m auto "a slow house groove"
  strudelgate check 's("bd sd").fast(2)'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (overrides the default search)")

	root.AddCommand(
		newServeCmd(a),
		newMCPCmd(a),
		newChatCmd(a),
		newCheckCmd(a),
		newACPCmd(a),
	)
	return root
}

// init loads the configuration and installs the logger. Logs always go to
// stderr; stdout belongs to the terminal session or the MCP transport.
func (a *app) init(logOut io.Writer) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.LoadConfig()
	}
	return err
}

func (a *app) newEvaluator() (*pattern.Evaluator, error) {
	return pattern.NewEvaluator(
		pattern.WithFunctions(a.cfg.Surface.ExtraFunctions...),
		pattern.WithSignals(a.cfg.Surface.ExtraSignals...),
	)
}

func (a *app) newSurface() (*surface.Service, error) {
	ev, err := a.newEvaluator()
	if err != nil {
		return nil, err
	}
	return surface.New(ev,
		surface.WithLogger(a.logger),
		surface.WithInitSteps(a.cfg.Surface.InitSteps...),
	), nil
}

// newMCPServer publishes the tools of the named toolset, validating patterns
// against svc.
func (a *app) newMCPServer(svc *surface.Service, toolset string) (*mcp.Server, error) {
	ts, err := a.cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}
	registry := tools.NewToolRegistry(a.cfg, svc, tools.WithGatewayLogger(a.logger))
	active, err := registry.GetActiveTools(ts)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(active))
	for _, t := range active {
		names = append(names, t.Name())
	}
	return mcp.NewServer(registry, a.logger, names...)
}
