package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/strudelgate/errors"
)

func newEvaluator(t *testing.T, opts ...Option) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(opts...)
	require.NoError(t, err)
	return e
}

func TestCheckAcceptsPatterns(t *testing.T) {
	e := newEvaluator(t)

	tests := []struct {
		name string
		code string
	}{
		{"simple", `s("bd sd")`},
		{"chained", `note("c3 e3 g3").s("sawtooth").lpf(800).room(0.3)`},
		{"stack", `stack(s("bd*2 sd"), s("hh*8").gain(0.4), note("<c2 g1>").s("gm_acoustic_bass"))`},
		{"signal", `s("hh*8").lpf(sine.range(400, 4000).slow(4))`},
		{"multi statement", "setcpm(120/4)\n\ns(\"bd sd\").bank(\"RolandTR909\")"},
		{"chain across lines", "note(\"c e g\")\n  .fast(2)\n  .gain(0.5)"},
		{"label", `$: s("bd*4")`},
		{"comment", "// drums\ns(\"bd sd\") // kick and snare"},
		{"template literal", "note(`<c e g\n b>`)"},
		{"semicolons", `setcps(0.5); s("bd")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, e.Check(tt.code))
		})
	}
}

func TestCheckRejectsUndefinedFunction(t *testing.T) {
	e := newEvaluator(t)

	err := e.Check(`s(undefinedFn())`)
	require.Error(t, err)

	var d *Diagnostic
	require.True(t, errors.As(err, &d))
	assert.Equal(t, "undefinedFn", d.Symbol)
	assert.Contains(t, d.Error(), "undefinedFn")
	assert.Equal(t, 1, d.Line)
}

func TestCheckRejectsUndefinedMethod(t *testing.T) {
	e := newEvaluator(t)

	err := e.Check("s(\"bd\")\nnote(\"c\").wobble(3)")
	var d *Diagnostic
	require.True(t, errors.As(err, &d))
	assert.Contains(t, d.Message, "wobble")
	assert.Equal(t, 2, d.Line)
}

func TestCheckRejectsSyntaxErrors(t *testing.T) {
	e := newEvaluator(t)

	for _, code := range []string{`s("bd sd"`, `s("bd") +`, `note("c e g").`} {
		t.Run(code, func(t *testing.T) {
			err := e.Check(code)
			var d *Diagnostic
			require.True(t, errors.As(err, &d), "expected diagnostic for %q", code)
			assert.NotEmpty(t, d.Message)
		})
	}
}

func TestCheckRejectsUnbalancedMiniNotation(t *testing.T) {
	e := newEvaluator(t)

	err := e.Check(`s("bd [sd hh")`)
	var d *Diagnostic
	require.True(t, errors.As(err, &d))
	assert.Contains(t, d.Message, "mini-notation")
}

func TestCheckRejectsEmpty(t *testing.T) {
	e := newEvaluator(t)
	assert.Error(t, e.Check("   \n // only a comment\n"))
}

func TestExtraVocabulary(t *testing.T) {
	e := newEvaluator(t, WithFunctions("wobble"), WithSignals("lfo"))
	assert.NoError(t, e.Check(`note("c").wobble(lfo)`))
	assert.Contains(t, e.Functions(), "wobble")
	assert.NotContains(t, e.Functions(), "size")
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("setcps(1)\n\n$: s(\"bd\")\n  .fast(2)\nnote(\"c;d\")")
	require.Len(t, stmts, 3)
	assert.Equal(t, "setcps(1)", stmts[0].text)
	assert.Equal(t, 1, stmts[0].line)
	assert.Equal(t, "s(\"bd\")\n  .fast(2)", stmts[1].text)
	assert.Equal(t, 3, stmts[1].line)
	assert.Equal(t, `note("c;d")`, stmts[2].text)
	assert.Equal(t, 5, stmts[2].line)
}
