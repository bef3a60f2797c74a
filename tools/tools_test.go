package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/strudelgate/config"
	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/pattern"
	"github.com/m4xw311/strudelgate/surface"
)

func newSurface(t *testing.T) *surface.Service {
	t.Helper()
	ev, err := pattern.NewEvaluator()
	require.NoError(t, err)
	s := surface.New(ev)
	t.Cleanup(s.Close)
	return s
}

// countingSurface records calls without validating anything.
type countingSurface struct {
	inits, evals int
	initErr      error
}

func (s *countingSurface) Init(context.Context) error { s.inits++; return s.initErr }
func (s *countingSurface) Evaluate(context.Context, string) error {
	s.evals++
	return nil
}

func TestValidateAndCommitSuccess(t *testing.T) {
	svc := newSurface(t)
	errs := svc.SubscribeErrors()
	gw := NewUpdateReplTool(svc)

	ack, err := gw.ValidateAndCommit(context.Background(), `s("bd sd")`)
	require.NoError(t, err)
	assert.Equal(t, Acknowledgement, ack)
	assert.NotContains(t, ack, "bd sd", "content is not echoed on success")

	assert.True(t, svc.IsReady(), "gateway initializes the surface lazily")
	assert.Equal(t, `s("bd sd")`, svc.State().Code)
	assert.Empty(t, svc.State().EvalError)
	select {
	case e := <-errs.C():
		t.Fatalf("unexpected error event %+v", e)
	default:
	}
}

func TestValidateAndCommitRejection(t *testing.T) {
	svc := newSurface(t)
	gw := NewUpdateReplTool(svc)

	_, err := gw.ValidateAndCommit(context.Background(), `s("bd sd")`)
	require.NoError(t, err)
	before := svc.State()

	candidate := `s(undefinedFn())`
	_, err = gw.ValidateAndCommit(context.Background(), candidate)
	require.Error(t, err)

	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, candidate, rej.Candidate)
	assert.Contains(t, rej.Diagnostic, "undefinedFn")
	assert.Contains(t, err.Error(), "Code: "+candidate)
	assert.True(t, strings.HasPrefix(err.Error(), "Invalid Strudel pattern."))

	var diag *pattern.Diagnostic
	require.True(t, errors.As(err, &diag))
	assert.Equal(t, "undefinedFn", diag.Symbol)

	after := svc.State()
	assert.Equal(t, before.Code, after.Code)
	assert.Equal(t, before.Started, after.Started)
}

func TestValidateAndCommitRejectsEmpty(t *testing.T) {
	s := &countingSurface{}
	gw := NewUpdateReplTool(s)

	_, err := gw.ValidateAndCommit(context.Background(), "  \n")
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "  \n", rej.Candidate)
	assert.Zero(t, s.inits)
	assert.Zero(t, s.evals)
}

func TestValidateAndCommitInitFailure(t *testing.T) {
	s := &countingSurface{initErr: errors.Sentinel("no audio")}
	gw := NewUpdateReplTool(s)

	_, err := gw.ValidateAndCommit(context.Background(), `s("bd")`)
	require.Error(t, err)
	var rej *RejectionError
	assert.False(t, errors.As(err, &rej), "init failures are not rejections")
	assert.Zero(t, s.evals)
}

func TestValidateAndCommitInitsEveryCall(t *testing.T) {
	s := &countingSurface{}
	gw := NewUpdateReplTool(s)
	for i := 0; i < 3; i++ {
		_, err := gw.ValidateAndCommit(context.Background(), `s("bd")`)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.inits)
	assert.Equal(t, 3, s.evals)
}

func TestRegistryCall(t *testing.T) {
	cfg := config.Default()
	r := NewToolRegistry(cfg, newSurface(t))
	assert.Equal(t, []string{"list_samples", "updateRepl"}, r.Names())

	out, err := r.Call(context.Background(), "updateRepl", map[string]interface{}{"code": `note("c e g")`})
	require.NoError(t, err)
	assert.Equal(t, Acknowledgement, out)

	_, err = r.Call(context.Background(), "updateRepl", map[string]interface{}{"code": 42})
	assert.Error(t, err, "schema rejects non-string code")

	_, err = r.Call(context.Background(), "missing", nil)
	assert.Error(t, err)
}

func TestGetActiveTools(t *testing.T) {
	cfg := config.Default()
	r := NewToolRegistry(cfg, newSurface(t))

	ts, err := cfg.GetToolset("default")
	require.NoError(t, err)
	active, err := r.GetActiveTools(ts)
	require.NoError(t, err)
	require.Len(t, active, 2)

	_, err = r.GetActiveTools(&config.Toolset{Name: "broken", Tools: []string{"write_file"}})
	assert.Error(t, err)
}

func TestListSamples(t *testing.T) {
	tool := NewListSamplesTool([]string{"gm_piano", "bd", "RolandTR808", "gm_acoustic_bass"})

	tests := []struct {
		pattern string
		want    string
	}{
		{"", "RolandTR808\nbd\ngm_acoustic_bass\ngm_piano"},
		{"gm_*", "gm_acoustic_bass\ngm_piano"},
		{"*808*", "RolandTR808"},
		{"zz*", "No samples match 'zz*'."},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			out, err := tool.Execute(context.Background(), map[string]interface{}{"pattern": tt.pattern})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	_, err := tool.Execute(context.Background(), map[string]interface{}{"pattern": "[a-"})
	assert.Error(t, err)
}

func TestSchemaMap(t *testing.T) {
	m := SchemaMap(NewUpdateReplTool(&countingSurface{}))
	assert.Equal(t, "object", m["type"])
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "code")
}
