package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/m4xw311/strudelgate/config"
	"github.com/m4xw311/strudelgate/errors"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	// Schema describes the arguments accepted by Execute.
	Schema() *jsonschema.Schema
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolRegistry holds all available tools.
type ToolRegistry struct {
	tools    map[string]Tool
	resolved map[string]*jsonschema.Resolved
}

// NewToolRegistry registers the default tools against the given surface.
func NewToolRegistry(cfg *config.Config, surface Surface, opts ...GatewayOption) *ToolRegistry {
	r := &ToolRegistry{
		tools:    make(map[string]Tool),
		resolved: make(map[string]*jsonschema.Resolved),
	}
	r.Register(NewUpdateReplTool(surface, opts...))
	r.Register(&ListSamplesTool{banks: cfg.Samples.Banks})
	return r
}

func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Name()] = t
	delete(r.resolved, t.Name())
}

func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetActiveTools returns the tool instances for a given toolset.
func (r *ToolRegistry) GetActiveTools(ts *config.Toolset) ([]Tool, error) {
	var activeTools []Tool
	for _, toolName := range ts.Tools {
		t, ok := r.GetTool(toolName)
		if !ok {
			return nil, fmt.Errorf("tool '%s' from toolset '%s' is not registered", toolName, ts.Name)
		}
		activeTools = append(activeTools, t)
	}
	return activeTools, nil
}

// Call validates args against the tool's schema and executes it.
func (r *ToolRegistry) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	t, ok := r.GetTool(name)
	if !ok {
		return "", errors.New("tool '%s' is not registered", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	res, err := r.resolve(t)
	if err != nil {
		return "", err
	}
	if res != nil {
		if err := res.Validate(args); err != nil {
			return "", errors.Wrapf(err, "invalid arguments for tool '%s'", name)
		}
	}
	return t.Execute(ctx, args)
}

func (r *ToolRegistry) resolve(t Tool) (*jsonschema.Resolved, error) {
	if res, ok := r.resolved[t.Name()]; ok {
		return res, nil
	}
	schema := t.Schema()
	if schema == nil {
		return nil, nil
	}
	res, err := schema.Resolve(nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schema for tool '%s'", t.Name())
	}
	r.resolved[t.Name()] = res
	return res, nil
}

// SchemaMap renders a tool's argument schema as a plain JSON object, the form
// LLM provider SDKs accept.
func SchemaMap(t Tool) map[string]any {
	out := map[string]any{"type": "object", "properties": map[string]any{}}
	schema := t.Schema()
	if schema == nil {
		return out
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return out
	}
	return m
}

// schemaFor derives an argument schema from a Go struct.
func schemaFor[T any]() *jsonschema.Schema {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("tools: cannot derive schema: %v", err))
	}
	return s
}

// matchesAny checks if a name matches any of the glob patterns.
func matchesAny(name string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
