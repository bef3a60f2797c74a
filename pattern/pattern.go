// Package pattern checks candidate pattern code before it reaches the live
// surface. Code is parsed as a sequence of expressions and every function or
// signal it references must be part of the known vocabulary, so syntax errors
// and undefined functions are both reported as a Diagnostic.
package pattern

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/m4xw311/strudelgate/errors"
)

// maxArity bounds the number of arguments accepted by any vocabulary function.
const maxArity = 8

// Diagnostic describes why candidate code was rejected.
type Diagnostic struct {
	Message string `json:"message"`
	// Symbol is the undefined identifier or function, when there is one.
	Symbol string `json:"symbol,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (d *Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
	}
	return d.Message
}

var undeclared = regexp.MustCompile(`undeclared reference to '([^']+)'`)

type options struct {
	functions []string
	signals   []string
}

type Option func(*options)

// WithFunctions extends the vocabulary with additional function names.
func WithFunctions(names ...string) Option {
	return func(o *options) { o.functions = append(o.functions, names...) }
}

// WithSignals extends the vocabulary with additional signal identifiers.
func WithSignals(names ...string) Option {
	return func(o *options) { o.signals = append(o.signals, names...) }
}

// Evaluator validates pattern code. It is safe for concurrent use.
type Evaluator struct {
	env       *cel.Env
	functions []string
}

func NewEvaluator(opts ...Option) (*Evaluator, error) {
	o := &options{
		functions: append([]string(nil), Functions...),
		signals:   append([]string(nil), Signals...),
	}
	for _, opt := range opts {
		opt(o)
	}

	functions := dedupe(o.functions)
	signals := dedupe(o.signals)

	envOpts := make([]cel.EnvOption, 0, len(functions)+len(signals))
	for _, name := range signals {
		envOpts = append(envOpts, cel.Variable(name, cel.DynType))
	}
	for _, name := range functions {
		envOpts = append(envOpts, cel.Function(name, overloads(name)...))
	}

	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build pattern environment")
	}
	return &Evaluator{env: env, functions: functions}, nil
}

// overloads declares name as callable with 0..maxArity dynamic arguments,
// both as a free function and as a method on a pattern.
func overloads(name string) []cel.FunctionOpt {
	var out []cel.FunctionOpt
	for n := 0; n <= maxArity; n++ {
		args := make([]*cel.Type, n)
		for i := range args {
			args[i] = cel.DynType
		}
		out = append(out,
			cel.Overload(fmt.Sprintf("%s_%d", name, n), args, cel.DynType),
			cel.MemberOverload(fmt.Sprintf("pattern_%s_%d", name, n),
				append([]*cel.Type{cel.DynType}, args...), cel.DynType),
		)
	}
	return out
}

// Functions returns the sorted vocabulary this evaluator accepts.
func (e *Evaluator) Functions() []string {
	return append([]string(nil), e.functions...)
}

// Check validates code. It returns nil when every statement parses and only
// references known functions and signals, otherwise a *Diagnostic.
func (e *Evaluator) Check(code string) error {
	stmts := splitStatements(code)
	if len(stmts) == 0 {
		return &Diagnostic{Message: "empty pattern"}
	}
	for _, stmt := range stmts {
		if err := e.checkStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) checkStatement(stmt statement) error {
	parsed, iss := e.env.Parse(stmt.text)
	if iss != nil && iss.Err() != nil {
		return diagnosticFrom(iss.Errors(), stmt.line, "syntax error")
	}
	if d := checkMiniNotation(parsed.Expr()); d != nil { //nolint:staticcheck // exprpb is still the only traversable form
		d.Line += stmt.line - 1
		return d
	}
	_, iss = e.env.Check(parsed)
	if iss != nil && iss.Err() != nil {
		return diagnosticFrom(iss.Errors(), stmt.line, "reference error")
	}
	return nil
}

func diagnosticFrom(errs []*common.Error, lineOffset int, kind string) *Diagnostic {
	if len(errs) == 0 {
		return &Diagnostic{Message: kind}
	}
	first := errs[0]
	d := &Diagnostic{Message: first.Message}
	if m := undeclared.FindStringSubmatch(first.Message); m != nil {
		d.Symbol = m[1]
		d.Message = fmt.Sprintf("%s: %s is not defined", kind, m[1])
	} else {
		d.Message = fmt.Sprintf("%s: %s", kind, first.Message)
	}
	if loc := first.Location; loc != nil && loc.Line() > 0 {
		d.Line = loc.Line() + lineOffset - 1
		d.Column = loc.Column() + 1
	}
	return d
}

// checkMiniNotation verifies that brackets inside string literals balance,
// since mini-notation strings are parsed again at play time.
func checkMiniNotation(e *exprpb.Expr) *Diagnostic {
	if e == nil {
		return nil
	}
	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		if s, ok := k.ConstExpr.ConstantKind.(*exprpb.Constant_StringValue); ok {
			if msg := unbalanced(s.StringValue); msg != "" {
				return &Diagnostic{Message: fmt.Sprintf("mini-notation error in %q: %s", s.StringValue, msg), Line: 1}
			}
		}
	case *exprpb.Expr_CallExpr:
		if d := checkMiniNotation(k.CallExpr.Target); d != nil {
			return d
		}
		for _, arg := range k.CallExpr.Args {
			if d := checkMiniNotation(arg); d != nil {
				return d
			}
		}
	case *exprpb.Expr_SelectExpr:
		return checkMiniNotation(k.SelectExpr.Operand)
	case *exprpb.Expr_ListExpr:
		for _, el := range k.ListExpr.Elements {
			if d := checkMiniNotation(el); d != nil {
				return d
			}
		}
	case *exprpb.Expr_StructExpr:
		for _, entry := range k.StructExpr.Entries {
			if d := checkMiniNotation(entry.Value); d != nil {
				return d
			}
		}
	}
	return nil
}

var closing = map[rune]rune{']': '[', '>': '<', '}': '{', ')': '('}

func unbalanced(s string) string {
	var stack []rune
	for _, r := range s {
		switch r {
		case '[', '<', '{', '(':
			stack = append(stack, r)
		case ']', '>', '}', ')':
			if len(stack) == 0 || stack[len(stack)-1] != closing[r] {
				return fmt.Sprintf("unexpected %q", r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Sprintf("unclosed %q", stack[len(stack)-1])
	}
	return ""
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, builtin := celBuiltins[n]; builtin {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
