package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/session"
	"github.com/m4xw311/strudelgate/tools"
)

// OpenAILLMClient talks to the Chat Completions API. OPENAI_API_KEY is
// required; OPENAI_BASE_URL points it at a compatible endpoint.
type OpenAILLMClient struct {
	client *openai.Client
	model  string
}

func NewOpenAILLMClient(ctx context.Context, modelName string) (*OpenAILLMClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	return &OpenAILLMClient{client: &c, model: modelName}, nil
}

func (o *OpenAILLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: toOpenAIMessages(messages),
	}
	if ts := toOpenAITools(availableTools); len(ts) > 0 {
		params.Tools = ts
		// One candidate at a time: the model must see a rejection before
		// writing the next pattern.
		params.ParallelToolCalls = openai.Bool(false)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}
	return fromOpenAIResponse(resp), nil
}

// fromOpenAIResponse reads the first choice. Arguments that are not a JSON
// object are passed on empty so the registry's schema check reports them to
// the model instead of failing the turn.
func fromOpenAIResponse(resp *openai.ChatCompletion) *session.Message {
	msg := &session.Message{Role: "assistant"}
	if len(resp.Choices) == 0 {
		return msg
	}
	choice := resp.Choices[0].Message
	msg.Content = choice.Content
	for _, tc := range choice.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			slog.Debug("openai returned malformed tool arguments", "tool", tc.Function.Name, "error", err)
		}
		msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
			Args:       args,
		})
	}
	return msg
}

func toOpenAIMessages(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))
		case "assistant":
			out = append(out, toOpenAIAssistant(msg))
		case "tool":
			if len(msg.ToolCalls) != 1 {
				slog.Warn("tool message is malformed, skipping", "tool_calls", len(msg.ToolCalls))
				continue
			}
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCalls[0].ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func toOpenAIAssistant(msg session.Message) openai.ChatCompletionMessageParamUnion {
	m := openai.ChatCompletionMessage{Role: "assistant", Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		args, err := json.Marshal(tc.Args)
		if err != nil {
			slog.Warn("could not marshal tool call arguments, skipping", "tool", tc.Name, "error", err)
			continue
		}
		m.ToolCalls = append(m.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
			ID:   tc.ToolCallID,
			Type: "function",
			Function: openai.ChatCompletionMessageFunctionToolCallFunction{
				Name:      tc.Name,
				Arguments: string(args),
			},
		})
	}
	return m.ToParam()
}

func toOpenAITools(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	var out []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  openai.FunctionParameters(tools.SchemaMap(t)),
		}))
	}
	return out
}
