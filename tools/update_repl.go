package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/m4xw311/strudelgate/errors"
)

// UpdateReplToolName is the name the agent calls the gateway by.
const UpdateReplToolName = "updateRepl"

// Acknowledgement is returned to the agent when a candidate is committed.
const Acknowledgement = "Message updated"

// Surface is the part of the live surface the gateway drives.
type Surface interface {
	Init(ctx context.Context) error
	Evaluate(ctx context.Context, code string) error
}

// RejectionError is returned when the surface rejects a candidate. It carries
// everything the agent needs to retry: the diagnostic and the rejected code
// exactly as it was submitted.
type RejectionError struct {
	Diagnostic string `json:"diagnostic"`
	Candidate  string `json:"rejectedCandidate"`
	Err        error  `json:"-"`
}

func (e *RejectionError) Error() string {
	return strings.Join([]string{
		"Invalid Strudel pattern. The code below contains syntax errors or undefined functions.",
		"Error: " + e.Diagnostic,
		"Code: " + e.Candidate,
	}, "\n\n")
}

func (e *RejectionError) Unwrap() error { return e.Err }

type GatewayOption func(*UpdateReplTool)

func WithGatewayLogger(l *slog.Logger) GatewayOption {
	return func(t *UpdateReplTool) { t.logger = l }
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) GatewayOption {
	return func(t *UpdateReplTool) { t.meterProvider = mp }
}

type updateReplArgs struct {
	Code string `json:"code" jsonschema:"The Strudel pattern code to evaluate and play, e.g. s('bd sd') for drums, note('c3 e3 g3') for melodies, stack() for layering patterns."`
}

// UpdateReplTool validates a candidate pattern on the live surface and commits
// it when valid. It never retries; the agent decides what to do with a
// rejection.
type UpdateReplTool struct {
	surface       Surface
	logger        *slog.Logger
	meterProvider metric.MeterProvider
	candidates    metric.Int64Counter
	schema        *jsonschema.Schema
}

func NewUpdateReplTool(surface Surface, opts ...GatewayOption) *UpdateReplTool {
	t := &UpdateReplTool{
		surface:       surface,
		logger:        slog.Default(),
		meterProvider: otel.GetMeterProvider(),
		schema:        schemaFor[updateReplArgs](),
	}
	for _, opt := range opts {
		opt(t)
	}
	counter, err := t.meterProvider.Meter("github.com/m4xw311/strudelgate/tools").Int64Counter(
		"strudelgate.gateway.candidates",
		metric.WithDescription("Candidate patterns submitted through updateRepl, by outcome."),
	)
	if err != nil {
		t.logger.Warn("gateway metrics disabled", "error", err)
	}
	t.candidates = counter
	return t
}

func (t *UpdateReplTool) Name() string { return UpdateReplToolName }
func (t *UpdateReplTool) Description() string {
	return "Update the Strudel REPL with new pattern code. The code is validated by running it through the evaluator first. " +
		"If the code is invalid (contains undefined functions, syntax errors, etc.), the tool fails with an error message " +
		"that repeats the rejected code so you can fix it and call the tool again. Always use this tool to update the REPL. " +
		"Args: code (string)."
}
func (t *UpdateReplTool) Schema() *jsonschema.Schema { return t.schema }

func (t *UpdateReplTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	code, ok := args["code"].(string)
	if !ok {
		return "", errors.New("missing or invalid 'code' argument")
	}
	return t.ValidateAndCommit(ctx, code)
}

// ValidateAndCommit initializes the surface if needed, then evaluates the
// candidate. It returns Acknowledgement on success and a *RejectionError when
// the candidate is invalid. Other errors mean the surface could not be used.
func (t *UpdateReplTool) ValidateAndCommit(ctx context.Context, candidate string) (string, error) {
	if strings.TrimSpace(candidate) == "" {
		t.record(ctx, "rejected")
		return "", &RejectionError{Diagnostic: "empty pattern", Candidate: candidate}
	}
	if err := t.surface.Init(ctx); err != nil {
		return "", errors.Wrapf(err, "surface initialization failed")
	}
	if err := t.surface.Evaluate(ctx, candidate); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", errors.Wrapf(err, "evaluation was not started")
		}
		t.record(ctx, "rejected")
		t.logger.Info("candidate rejected", "diagnostic", err.Error())
		return "", &RejectionError{Diagnostic: err.Error(), Candidate: candidate, Err: err}
	}
	t.record(ctx, "accepted")
	return Acknowledgement, nil
}

func (t *UpdateReplTool) record(ctx context.Context, outcome string) {
	if t.candidates == nil {
		return
	}
	t.candidates.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
