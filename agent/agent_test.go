package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/strudelgate/config"
	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/pattern"
	"github.com/m4xw311/strudelgate/session"
	"github.com/m4xw311/strudelgate/surface"
	"github.com/m4xw311/strudelgate/tools"
)

// scriptedClient replays canned responses and records what it was sent.
type scriptedClient struct {
	responses []session.Message
	seen      [][]session.Message
}

func (c *scriptedClient) Chat(ctx context.Context, messages []session.Message, _ []tools.Tool) (*session.Message, error) {
	c.seen = append(c.seen, append([]session.Message(nil), messages...))
	if len(c.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return &resp, nil
}

func updateRepl(id, code string) session.Message {
	return session.Message{Role: "assistant", ToolCalls: []session.ToolCall{{
		ToolCallID: id,
		Name:       tools.UpdateReplToolName,
		Args:       map[string]interface{}{"code": code},
	}}}
}

func newAgent(t *testing.T, client *scriptedClient) (*Agent, *surface.Service) {
	t.Helper()
	ev, err := pattern.NewEvaluator()
	require.NoError(t, err)
	svc := surface.New(ev)
	t.Cleanup(svc.Close)

	cfg := config.Default()
	sess, err := session.NewIn(t.TempDir(), "test")
	require.NoError(t, err)

	a, err := New(cfg, sess, tools.NewToolRegistry(cfg, svc), "default", ModeAuto, client, ToolVerbosityNone)
	require.NoError(t, err)
	return a, svc
}

func TestSelfCorrectionAfterRejection(t *testing.T) {
	client := &scriptedClient{responses: []session.Message{
		updateRepl("call_1", `s(undefinedFn())`),
		updateRepl("call_2", `s("bd sd")`),
		{Role: "assistant", Content: "Playing a basic beat."},
	}}
	a, svc := newAgent(t, client)

	var results []string
	var said []string
	err := a.ProcessUserInput(context.Background(), "make a beat", ProcessCallbacks{
		OnAssistantMessage: func(m string) { said = append(said, m) },
		OnToolResult:       func(_ session.ToolCall, r string) { results = append(results, r) },
	})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.True(t, strings.HasPrefix(results[0], "Invalid Strudel pattern."))
	assert.Contains(t, results[0], "undefinedFn")
	assert.Contains(t, results[0], "Code: s(undefinedFn())")
	assert.Equal(t, tools.Acknowledgement, results[1])
	assert.Equal(t, []string{"Playing a basic beat."}, said)

	// The rejection was visible to the model in the second call.
	second := client.seen[1]
	last := second[len(second)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "call_1", last.ToolCalls[0].ToolCallID)
	assert.Contains(t, last.Content, "undefinedFn")

	assert.Equal(t, `s("bd sd")`, svc.State().Code)
	assert.Equal(t, `s("bd sd")`, a.Session.Code)
	assert.Equal(t, "system", a.Session.Messages[0].Role)
}

func TestToolRoundLimit(t *testing.T) {
	var script []session.Message
	for i := 0; i < 20; i++ {
		script = append(script, updateRepl("call", `s(nope())`))
	}
	client := &scriptedClient{responses: script}
	a, svc := newAgent(t, client)
	a.Config.Agent.MaxToolRounds = 3

	err := a.ProcessUserInput(context.Background(), "loop forever", ProcessCallbacks{})
	assert.True(t, errors.Is(err, ErrToolRoundLimit))
	assert.Len(t, client.seen, 4)
	assert.Empty(t, svc.State().Code)
}

func TestPromptModeDenial(t *testing.T) {
	client := &scriptedClient{responses: []session.Message{
		updateRepl("call_1", `s("bd")`),
		{Role: "assistant", Content: "Okay, leaving it alone."},
	}}
	a, svc := newAgent(t, client)
	a.Mode = ModePrompt

	var calls int
	err := a.ProcessUserInput(context.Background(), "change it", ProcessCallbacks{
		OnToolCall:        func(session.ToolCall) { calls++ },
		ShouldExecuteTool: func(session.ToolCall) bool { return false },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, svc.IsReady(), "denied calls never reach the surface")

	msgs := a.Session.Messages
	assert.Contains(t, msgs[len(msgs)-2].Content, "denied")
}

func TestCustomSystemPrompt(t *testing.T) {
	client := &scriptedClient{responses: []session.Message{{Role: "assistant", Content: "hi"}}}
	a, _ := newAgent(t, client)
	a.Config.Agent.SystemPrompt = "only techno"

	require.NoError(t, a.ProcessUserInput(context.Background(), "hello", ProcessCallbacks{}))
	assert.Equal(t, "only techno", client.seen[0][0].Content)
}

func TestChatError(t *testing.T) {
	a, _ := newAgent(t, &scriptedClient{})
	err := a.ProcessUserInput(context.Background(), "hello", ProcessCallbacks{})
	assert.Error(t, err)
}

func TestUnknownToolset(t *testing.T) {
	cfg := &config.Config{Toolsets: []config.Toolset{{Name: "other"}}}
	sess, err := session.NewIn(t.TempDir(), "x")
	require.NoError(t, err)
	_, err = New(cfg, sess, tools.NewToolRegistry(config.Default(), nil), "", ModeAuto, &scriptedClient{}, ToolVerbosityNone)
	assert.Error(t, err)
}
