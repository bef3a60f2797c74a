package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/strudelgate/bridge"
	"github.com/m4xw311/strudelgate/config"
	"github.com/m4xw311/strudelgate/pattern"
	"github.com/m4xw311/strudelgate/surface"
	"github.com/m4xw311/strudelgate/tools"
	"github.com/m4xw311/strudelgate/tools/mcp"
	"github.com/m4xw311/strudelgate/widget"
)

type fixture struct {
	svc    *surface.Service
	bridge *bridge.Bridge
	srv    *httptest.Server
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ev, err := pattern.NewEvaluator()
	require.NoError(t, err)
	svc := surface.New(ev)

	br := bridge.New(svc, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, br.Mount(ctx))
	go br.Run(ctx)

	gateway, err := mcp.NewServer(tools.NewToolRegistry(config.Default(), svc), nil)
	require.NoError(t, err)

	s := New(svc, br, widget.NewRegistry(), config.Default().Server, nil, WithMCP(gateway.Handler()))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.hub.closeAll()
		cancel()
		br.Unmount()
		svc.Close()
	})
	require.Eventually(t, func() bool { return br.Snapshot().Ready }, time.Second, 5*time.Millisecond)
	return &fixture{svc: svc, bridge: br, srv: srv, server: s}
}

func (f *fixture) post(t *testing.T, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", r)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (f *fixture) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestSetCode(t *testing.T) {
	f := newFixture(t)

	status, body := f.post(t, "/api/code", `{"code":"s(\"bd sd\")","evaluate":true}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `s("bd sd")`, body["code"])

	status, body = f.post(t, "/api/code", `{"code":"s(undefinedFn())","evaluate":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "s(undefinedFn())", details["rejectedCandidate"])
	assert.Contains(t, details["diagnostic"], "undefinedFn")
	assert.Equal(t, `s("bd sd")`, f.svc.State().Code)

	require.Eventually(t, func() bool {
		_, st := f.get(t, "/api/state")
		errs := st["view"].(map[string]any)["errors"].([]any)
		return len(errs) == 1
	}, time.Second, 10*time.Millisecond)

	status, _ = f.post(t, "/api/code", `{"code":"note(\"c e\")","evaluate":false}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `note("c e")`, f.svc.State().Draft)
	assert.Equal(t, `s("bd sd")`, f.svc.State().Code)

	status, _ = f.post(t, "/api/code", `{`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPlayback(t *testing.T) {
	f := newFixture(t)

	status, _ := f.post(t, "/api/play", "")
	assert.Equal(t, http.StatusConflict, status, "nothing committed yet")

	f.post(t, "/api/code", `{"code":"s(\"hh*8\")","evaluate":true}`)
	_, body := f.post(t, "/api/stop", "")
	assert.Equal(t, false, body["started"])

	status, body = f.post(t, "/api/play", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["started"])

	_, body = f.post(t, "/api/reset", "")
	assert.Equal(t, "", body["code"])
}

func (f *fixture) errorLog(t *testing.T) []any {
	t.Helper()
	_, st := f.get(t, "/api/state")
	return st["view"].(map[string]any)["errors"].([]any)
}

func TestAgentGatewaySharesSurface(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-agent", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, mcpsdk.NewStreamableClientTransport(f.srv.URL+"/mcp", nil))
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tools.UpdateReplToolName,
		Arguments: map[string]any{"code": `s(undefinedFn())`},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	require.Eventually(t, func() bool {
		errs := f.errorLog(t)
		return len(errs) == 1 && strings.Contains(errs[0].(string), "undefinedFn")
	}, time.Second, 10*time.Millisecond, "rejection reaches the error log")

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tools.UpdateReplToolName,
		Arguments: map[string]any{"code": `s("bd sd")`},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Eventually(t, func() bool {
		_, st := f.get(t, "/api/state")
		view := st["view"].(map[string]any)
		return len(view["errors"].([]any)) == 0 && view["state"].(map[string]any)["code"] == `s("bd sd")`
	}, time.Second, 10*time.Millisecond, "commit clears the error log")
}

func TestErrorLogRoutes(t *testing.T) {
	f := newFixture(t)

	_, body := f.post(t, "/api/errors", `{"message":"audio device lost"}`)
	assert.Equal(t, []any{"audio device lost"}, body["errors"])

	_, body = f.post(t, "/api/errors/clear", "")
	assert.Empty(t, body["errors"])
}

func TestWidgetRoutes(t *testing.T) {
	f := newFixture(t)

	status, _ := f.get(t, "/api/widgets/sounds")
	assert.Equal(t, http.StatusNotFound, status)

	status, body := f.post(t, "/api/widgets/sounds/props", `{"title":"Pick","groups":[{"label":"Drums","options":["bd","sd"`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["complete"])
	assert.Equal(t, true, body["merged"])

	status, _ = f.post(t, "/api/widgets/sounds/toggle", `{"group":0,"option":"bd"}`)
	assert.Equal(t, http.StatusOK, status)

	_, body = f.post(t, "/api/widgets/sounds/props", `{"title":"Pick","groups":[{"label":"Drums","options":["bd","sd","hh"]}]}`)
	assert.Equal(t, true, body["complete"])
	assert.Equal(t, "Drums: bd", body["summary"])

	_, body = f.post(t, "/api/widgets/sounds/clear", `{"group":0}`)
	assert.Equal(t, false, body["hasSelections"])

	status, _ = f.post(t, "/api/widgets/sounds/props", `{"title":7}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.post(t, "/api/widgets/missing/toggle", `{"group":0,"option":"bd"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWebsocketStream(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first wsMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "view", first.Type)
	require.NotNil(t, first.View)
	assert.True(t, first.View.Ready)

	require.Eventually(t, func() bool { return f.server.hub.count() == 1 }, time.Second, 5*time.Millisecond)
	f.post(t, "/api/code", `{"code":"s(\"bd\")","evaluate":true}`)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "view" && msg.View.State.Code == `s("bd")` {
			break
		}
	}
}

func TestOriginCheck(t *testing.T) {
	s := &Server{cfg: config.Server{AllowedOrigins: []string{"http://localhost:3000"}}}

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, s.originAllowed(r), "no origin header")

	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, s.originAllowed(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, s.originAllowed(r))
}
