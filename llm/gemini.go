package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/session"
	"github.com/m4xw311/strudelgate/tools"
)

// GeminiLLMClient talks to the Gemini API. GEMINI_API_KEY is required.
type GeminiLLMClient struct {
	model *genai.GenerativeModel
}

func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Gemini client")
	}
	return &GeminiLLMClient{model: c.GenerativeModel(modelName)}, nil
}

// Chat replays all but the newest turn as history and sends the newest one.
func (g *GeminiLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	contents := toGeminiContents(messages)
	if len(contents) == 0 {
		return nil, errors.New("no messages to send to Gemini")
	}

	g.model.Tools = toGeminiTools(availableTools)
	g.model.SystemInstruction = nil
	if prompt := systemPrompt(messages); prompt != "" {
		g.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt)}}
	}

	cs := g.model.StartChat()
	last := len(contents) - 1
	cs.History = contents[:last]
	resp, err := cs.SendMessage(ctx, contents[last].Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}
	return fromGeminiResponse(resp)
}

// toGeminiContents builds the chat history. Tool calls become function call
// parts on the model turn; their results share the following user turn.
func toGeminiContents(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue
		case "assistant":
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case "tool":
			if len(msg.ToolCalls) == 0 {
				continue
			}
			part := genai.FunctionResponse{
				Name:     msg.ToolCalls[0].Name,
				Response: map[string]any{"result": msg.Content},
			}
			if n := len(contents); n > 0 && isFunctionResponseTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	return contents
}

func isFunctionResponseTurn(c *genai.Content) bool {
	if c.Role != "user" || len(c.Parts) == 0 {
		return false
	}
	_, ok := c.Parts[len(c.Parts)-1].(genai.FunctionResponse)
	return ok
}

func toGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(ts))
	for _, t := range ts {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  geminiSchema(tools.SchemaMap(t)),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// geminiSchema converts a JSON schema object into genai's schema type. Only the
// keywords our tool arguments use are carried over.
func geminiSchema(m map[string]any) *genai.Schema {
	s := &genai.Schema{Type: geminiType(m["type"])}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = geminiSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = geminiSchema(items)
	}
	if required, ok := m["required"].([]any); ok {
		for _, r := range required {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	return s
}

func geminiType(v any) genai.Type {
	name, _ := v.(string)
	if list, ok := v.([]any); ok {
		// ["null", "string"] style unions: use the first non-null type.
		for _, t := range list {
			if ts, ok := t.(string); ok && ts != "null" {
				name = ts
				break
			}
		}
	}
	switch name {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}

// fromGeminiResponse reads the first candidate. Gemini does not assign call
// ids, so each function call gets a fresh one. Parts other than text and
// function calls are skipped.
func fromGeminiResponse(resp *genai.GenerateContentResponse) (*session.Message, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("received an empty response from Gemini")
	}
	msg := &session.Message{Role: "assistant"}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				ToolCallID: "call_" + uuid.NewString(),
				Name:       p.Name,
				Args:       p.Args,
			})
		default:
			slog.Debug("skipping gemini response part", "type", fmt.Sprintf("%T", p))
		}
	}
	msg.Content = text.String()
	return msg, nil
}
