// Package mcp exposes the tool registry to an agent runtime over the Model
// Context Protocol.
package mcp

import (
	"context"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/tools"
)

const (
	serverName    = "strudelgate"
	serverVersion = "v0.1.0"
)

// Server publishes registry tools as MCP tools.
type Server struct {
	server   *mcpsdk.Server
	registry *tools.ToolRegistry
	logger   *slog.Logger
}

// NewServer registers the named tools, or every registered tool when names is
// empty.
func NewServer(registry *tools.ToolRegistry, logger *slog.Logger, names ...string) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(names) == 0 {
		names = registry.Names()
	}
	s := &Server{
		server:   mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: serverVersion}, nil),
		registry: registry,
		logger:   logger,
	}
	for _, name := range names {
		t, ok := registry.GetTool(name)
		if !ok {
			return nil, errors.New("tool '%s' is not registered", name)
		}
		mcpsdk.AddTool(s.server, &mcpsdk.Tool{Name: t.Name(), Description: t.Description()}, s.handler(t.Name()))
	}
	return s, nil
}

func (s *Server) handler(name string) mcpsdk.ToolHandlerFor[map[string]any, any] {
	return func(ctx context.Context, _ *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[map[string]any]) (*mcpsdk.CallToolResultFor[any], error) {
		out, err := s.registry.Call(ctx, name, params.Arguments)
		if err != nil {
			s.logger.Debug("tool call failed", "tool", name, "error", err)
			return &mcpsdk.CallToolResultFor[any]{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: errorText(err)}},
			}, nil
		}
		return &mcpsdk.CallToolResultFor[any]{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
		}, nil
	}
}

// errorText keeps rejection messages free of the file:line prefix so the agent
// sees exactly the diagnostic and its rejected code.
func errorText(err error) string {
	var rej *tools.RejectionError
	if errors.As(err, &rej) {
		return rej.Error()
	}
	return err.Error()
}

// Connect serves a single session over the given transport.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.server.Connect(ctx, t)
}

// ServeStdio serves the tools on stdin/stdout until the client disconnects or
// ctx is done. Nothing else may write to stdout while it runs.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "tools", s.registry.Names())
	if err := s.server.Run(ctx, mcpsdk.NewStdioTransport()); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrapf(err, "MCP server stopped")
	}
	return nil
}

// Handler serves the tools over streamable HTTP. Every client session shares
// the registry, and with it the surface the registry validates against.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.server }, nil)
}
