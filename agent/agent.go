package agent

import (
	"context"
	"log/slog"

	"github.com/m4xw311/strudelgate/config"
	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/llm"
	"github.com/m4xw311/strudelgate/session"
	"github.com/m4xw311/strudelgate/tools"
)

// DefaultSystemPrompt steers the model towards the REPL tools.
const DefaultSystemPrompt = `You are a Strudel live coding assistant. Write complete, musical patterns.
Always change the music by calling the updateRepl tool with the full pattern code; never paste code into your reply instead.
If updateRepl fails, read the error and the rejected code it returns, fix the problem and call updateRepl again.
Use list_samples to check which sample banks exist before relying on one.`

// ErrToolRoundLimit is returned when the model keeps calling tools past the
// configured number of rounds in one turn.
var ErrToolRoundLimit = errors.Sentinel("tool round limit reached")

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// ProcessCallbacks lets an interaction mode observe and steer a turn.
type ProcessCallbacks struct {
	OnAssistantMessage func(message string)
	OnToolCall         func(toolCall session.ToolCall)
	OnToolResult       func(toolCall session.ToolCall, result string)
	// ShouldExecuteTool is consulted before each call; nil means always.
	ShouldExecuteTool func(toolCall session.ToolCall) bool
	OnWarning         func(warning string)
}

type Agent struct {
	Config         *config.Config
	Session        *session.Session
	LLMClient      llm.LLMClient
	Registry       *tools.ToolRegistry
	AvailableTools []tools.Tool
	Mode           Mode
	Verbosity      ToolVerbosity
	Logger         *slog.Logger
}

func New(cfg *config.Config, sess *session.Session, registry *tools.ToolRegistry, toolset string, mode Mode, client llm.LLMClient, verbosity ToolVerbosity) (*Agent, error) {
	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}

	activeTools, err := registry.GetActiveTools(ts)
	if err != nil {
		return nil, err
	}

	return &Agent{
		Config:         cfg,
		Session:        sess,
		LLMClient:      client,
		Registry:       registry,
		AvailableTools: activeTools,
		Mode:           mode,
		Verbosity:      verbosity,
		Logger:         slog.Default(),
	}, nil
}

func (a *Agent) systemPrompt() string {
	if a.Config.Agent.SystemPrompt != "" {
		return a.Config.Agent.SystemPrompt
	}
	return DefaultSystemPrompt
}

// ProcessUserInput runs one user turn: the model is called, any tools it asks
// for are executed and their results fed back, until it answers without tool
// calls. Tool failures, including rejected patterns, are returned to the model
// as the tool result so it can correct itself.
func (a *Agent) ProcessUserInput(ctx context.Context, userInput string, cb ProcessCallbacks) error {
	if len(a.Session.Messages) == 0 {
		a.Session.AddMessage(session.Message{Role: "system", Content: a.systemPrompt()})
	}
	a.Session.AddMessage(session.Message{Role: "user", Content: userInput})

	maxRounds := a.Config.Agent.MaxToolRounds
	for round := 0; ; round++ {
		if round > maxRounds {
			return errors.Wrapf(ErrToolRoundLimit, "stopped after %d tool rounds", maxRounds)
		}

		assistantResponse, err := a.LLMClient.Chat(ctx, a.Session.Messages, a.AvailableTools)
		if err != nil {
			return errors.Wrapf(err, "LLM chat failed")
		}
		assistantResponse.Role = "assistant"
		a.Session.AddMessage(*assistantResponse)
		if assistantResponse.Content != "" && cb.OnAssistantMessage != nil {
			cb.OnAssistantMessage(assistantResponse.Content)
		}
		a.save(cb)

		if len(assistantResponse.ToolCalls) == 0 {
			return nil
		}
		for _, tc := range assistantResponse.ToolCalls {
			result := a.executeTool(ctx, tc, cb)
			a.Session.AddMessage(session.Message{
				Role:      "tool",
				Content:   result,
				ToolCalls: []session.ToolCall{tc},
			})
		}
		a.save(cb)
	}
}

func (a *Agent) executeTool(ctx context.Context, tc session.ToolCall, cb ProcessCallbacks) string {
	if cb.OnToolCall != nil {
		cb.OnToolCall(tc)
	}
	if cb.ShouldExecuteTool != nil && !cb.ShouldExecuteTool(tc) {
		result := "User denied execution of this tool call."
		if cb.OnToolResult != nil {
			cb.OnToolResult(tc, result)
		}
		return result
	}

	result, err := a.Registry.Call(ctx, tc.Name, tc.Args)
	if err != nil {
		a.Logger.Debug("tool call failed", "tool", tc.Name, "error", err)
		result = err.Error()
	} else if tc.Name == tools.UpdateReplToolName {
		if code, ok := tc.Args["code"].(string); ok {
			a.Session.Code = code
		}
	}
	if cb.OnToolResult != nil {
		cb.OnToolResult(tc, result)
	}
	return result
}

func (a *Agent) save(cb ProcessCallbacks) {
	if err := a.Session.Save(); err != nil {
		a.Logger.Warn("failed to save session", "session", a.Session.Name, "error", err)
		if cb.OnWarning != nil {
			cb.OnWarning("failed to save session: " + err.Error())
		}
	}
}
