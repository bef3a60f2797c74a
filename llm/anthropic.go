package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/session"
	"github.com/m4xw311/strudelgate/tools"
)

const anthropicMaxTokens = 4096

// AnthropicLLMClient talks to the Messages API. ANTHROPIC_API_KEY is required;
// ANTHROPIC_BASE_URL overrides the endpoint.
type AnthropicLLMClient struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicLLMClient(ctx context.Context, modelName string) (*AnthropicLLMClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := os.Getenv("ANTHROPIC_BASE_URL"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := anthropic.NewClient(opts...)
	return &AnthropicLLMClient{client: &c, model: modelName}, nil
}

func (a *AnthropicLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	msgs, system := toAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if ts := toAnthropicTools(availableTools); len(ts) > 0 {
		for i := range ts {
			params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &ts[i]})
		}
		// A rejected candidate must reach the model before it writes another.
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{DisableParallelToolUse: anthropic.Bool(true)},
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Anthropic")
	}
	return fromAnthropicResponse(resp), nil
}

// toAnthropicMessages converts the history and extracts the system prompt.
// Tool results answering one assistant turn share a single user message.
func toAnthropicMessages(messages []session.Message) ([]anthropic.MessageParam, string) {
	var (
		out    []anthropic.MessageParam
		system string
	)
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.Content
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case "assistant":
			if blocks := anthropicAssistantBlocks(msg); len(blocks) > 0 {
				out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})
			}
		case "tool":
			if len(msg.ToolCalls) == 0 {
				continue
			}
			result := anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: msg.ToolCalls[0].ToolCallID,
					Content: []anthropic.ToolResultBlockParamContentUnion{{
						OfText: &anthropic.TextBlockParam{Text: msg.Content},
					}},
				},
			}
			if n := len(out); n > 0 && isAnthropicToolResults(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, result)
				continue
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{result},
			})
		}
	}
	return out, system
}

func anthropicAssistantBlocks(msg session.Message) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	if msg.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		input, err := json.Marshal(argsOrEmpty(tc.Args))
		if err != nil {
			slog.Warn("could not marshal tool call arguments, skipping", "tool", tc.Name, "error", err)
			continue
		}
		blocks = append(blocks, anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    tc.ToolCallID,
				Name:  tc.Name,
				Input: json.RawMessage(input),
			},
		})
	}
	return blocks
}

func isAnthropicToolResults(m anthropic.MessageParam) bool {
	return m.Role == anthropic.MessageParamRoleUser && len(m.Content) > 0 && m.Content[0].OfToolResult != nil
}

func toAnthropicTools(ts []tools.Tool) []anthropic.ToolParam {
	var out []anthropic.ToolParam
	for _, t := range ts {
		schema := tools.SchemaMap(t)
		input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				if name, ok := r.(string); ok {
					input.Required = append(input.Required, name)
				}
			}
		}
		out = append(out, anthropic.ToolParam{
			Name:        t.Name(),
			Description: anthropic.String(t.Description()),
			InputSchema: input,
		})
	}
	return out
}

// fromAnthropicResponse joins text blocks and collects tool_use blocks. Input
// that is not a JSON object is passed on empty so the registry reports it.
func fromAnthropicResponse(resp *anthropic.Message) *session.Message {
	msg := &session.Message{Role: "assistant"}
	var text strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal(b.Input, &args); err != nil {
				slog.Debug("anthropic returned malformed tool input", "tool", b.Name, "error", err)
			}
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{ToolCallID: b.ID, Name: b.Name, Args: args})
		}
	}
	msg.Content = text.String()
	return msg
}
