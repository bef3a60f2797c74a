package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/session"
	"github.com/m4xw311/strudelgate/tools"
)

const (
	bedrockAnthropicVersion = "bedrock-2023-05-31"
	bedrockMaxTokens        = 4096
	bedrockDefaultRegion    = "us-east-1"
)

// BedrockLLMClient runs Anthropic models on AWS Bedrock. Credentials come
// from the default AWS chain; BEDROCK_ENDPOINT_URL overrides the endpoint.
type BedrockLLMClient struct {
	client  *bedrockruntime.Client
	modelID string
}

func NewBedrockLLMClient(ctx context.Context, modelID string) (*BedrockLLMClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	region := firstNonEmpty(cfg.Region, os.Getenv("AWS_DEFAULT_REGION"), os.Getenv("AWS_REGION"), bedrockDefaultRegion)
	endpoint := os.Getenv("BEDROCK_ENDPOINT_URL")

	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		o.Region = region
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &BedrockLLMClient{client: client, modelID: modelID}, nil
}

func (b *BedrockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	body, err := json.Marshal(newBedrockRequest(messages, availableTools))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode Bedrock request")
	}
	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	return processBedrockResponse(resp.Body)
}

// bedrockBlock is one content block of the Anthropic messages format.
// Which fields are set depends on Type.
type bedrockBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []bedrockBlock `json:"content"`
}

type bedrockTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Tools            []bedrockTool    `json:"tools,omitempty"`
}

type bedrockResponse struct {
	Content []bedrockBlock  `json:"content"`
	Error   json.RawMessage `json:"error,omitempty"`
}

func newBedrockRequest(messages []session.Message, ts []tools.Tool) bedrockRequest {
	msgs, system := toBedrockMessages(messages)
	req := bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        bedrockMaxTokens,
		System:           system,
		Messages:         msgs,
	}
	for _, t := range ts {
		req.Tools = append(req.Tools, bedrockTool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: toolSchema(t),
		})
	}
	return req
}

// toBedrockMessages converts the history and extracts the system prompt.
// Tool results answering one assistant turn share a single user message.
func toBedrockMessages(messages []session.Message) ([]bedrockMessage, string) {
	var (
		out    []bedrockMessage
		system string
	)
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.Content
		case "user":
			out = append(out, bedrockMessage{Role: "user", Content: []bedrockBlock{{Type: "text", Text: msg.Content}}})
		case "assistant":
			var blocks []bedrockBlock
			if msg.Content != "" {
				blocks = append(blocks, bedrockBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input, err := json.Marshal(argsOrEmpty(tc.Args))
				if err != nil {
					slog.Warn("could not marshal tool call arguments, skipping", "tool", tc.Name, "error", err)
					continue
				}
				blocks = append(blocks, bedrockBlock{Type: "tool_use", ID: tc.ToolCallID, Name: tc.Name, Input: input})
			}
			if len(blocks) > 0 {
				out = append(out, bedrockMessage{Role: "assistant", Content: blocks})
			}
		case "tool":
			if len(msg.ToolCalls) == 0 {
				continue
			}
			result := bedrockBlock{Type: "tool_result", ToolUseID: msg.ToolCalls[0].ToolCallID, Content: msg.Content}
			if n := len(out); n > 0 && isBedrockToolResults(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, result)
				continue
			}
			out = append(out, bedrockMessage{Role: "user", Content: []bedrockBlock{result}})
		}
	}
	return out, system
}

func isBedrockToolResults(m bedrockMessage) bool {
	return m.Role == "user" && len(m.Content) > 0 && m.Content[0].Type == "tool_result"
}

// processBedrockResponse decodes an InvokeModel body. Tool input that is not
// a JSON object is passed on empty so the registry reports it to the model.
func processBedrockResponse(body []byte) (*session.Message, error) {
	var resp bedrockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if len(resp.Error) > 0 && string(resp.Error) != "null" {
		return nil, errors.New("Bedrock API error: %s", resp.Error)
	}

	msg := &session.Message{Role: "assistant"}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			var args map[string]interface{}
			if err := json.Unmarshal(block.Input, &args); err != nil {
				slog.Debug("bedrock returned malformed tool input", "tool", block.Name, "error", err)
			}
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{ToolCallID: block.ID, Name: block.Name, Args: args})
		}
	}
	msg.Content = text.String()
	return msg, nil
}

// toolSchema is the tool's argument schema without the draft marker Bedrock
// does not accept.
func toolSchema(t tools.Tool) map[string]interface{} {
	schema := tools.SchemaMap(t)
	delete(schema, "$schema")
	return schema
}

func argsOrEmpty(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
