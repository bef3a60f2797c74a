package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m4xw311/strudelgate/session"
	"github.com/m4xw311/strudelgate/tools"
)

// LLMClient is the interface for interacting with a Large Language Model.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// MockLLMClient works offline. It treats every user message as pattern code
// and submits it through updateRepl when that tool is available, then reports
// the tool's answer back.
type MockLLMClient struct{}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	if len(messages) == 0 {
		return &session.Message{Role: "assistant"}, nil
	}
	last := messages[len(messages)-1]
	slog.Debug("mock llm", "messages", len(messages), "last_role", last.Role)

	switch last.Role {
	case "tool":
		if strings.HasPrefix(last.Content, tools.Acknowledgement) {
			return &session.Message{Role: "assistant", Content: "Pattern updated."}, nil
		}
		return &session.Message{Role: "assistant", Content: fmt.Sprintf("The pattern was not accepted.\n%s", last.Content)}, nil
	case "user":
		if hasTool(availableTools, tools.UpdateReplToolName) {
			return &session.Message{
				Role: "assistant",
				ToolCalls: []session.ToolCall{{
					ToolCallID: fmt.Sprintf("call_%d_%s", len(messages), tools.UpdateReplToolName),
					Name:       tools.UpdateReplToolName,
					Args:       map[string]interface{}{"code": last.Content},
				}},
			}, nil
		}
	}
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("I am a mock LLM. You said: '%s'.", last.Content),
	}, nil
}

func hasTool(ts []tools.Tool, name string) bool {
	for _, t := range ts {
		if t.Name() == name {
			return true
		}
	}
	return false
}

// New returns the client configured by name. Unknown names fall back to the
// mock client.
func New(ctx context.Context, name, model string) (LLMClient, error) {
	var (
		client LLMClient
		err    error
	)
	switch name {
	case "gemini":
		client, err = nonNil(NewGeminiLLMClient(ctx, model))
	case "openai":
		client, err = nonNil(NewOpenAILLMClient(ctx, model))
	case "bedrock":
		client, err = nonNil(NewBedrockLLMClient(ctx, model))
	case "anthropic":
		client, err = nonNil(NewAnthropicLLMClient(ctx, model))
	default:
		client = &MockLLMClient{}
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// nonNil keeps a typed nil client from becoming a non-nil interface.
func nonNil[C LLMClient](c C, err error) (LLMClient, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

// systemPrompt returns the content of the last system message.
func systemPrompt(messages []session.Message) string {
	var prompt string
	for _, msg := range messages {
		if msg.Role == "system" {
			prompt = msg.Content
		}
	}
	return prompt
}
