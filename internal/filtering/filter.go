// Package filtering decides which inbound radio payloads are commands the
// router should see.
package filtering

import (
	"context"
	"fmt"
	"strings"

	"meshbridge/internal/constants"
	"meshbridge/internal/logger"
	"meshbridge/pkg/cel"
	"meshbridge/pkg/metrics"
)

// IsCommand reports whether payload starts with one of the compiled-in
// command prefixes. A nil or empty payload is never a command.
func IsCommand(payload *string) bool {
	if payload == nil || *payload == "" {
		return false
	}
	return MatchesPrefix(*payload, constants.CommandWhitelist)
}

func MatchesPrefix(text string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// Filter is the command whitelist plus an optional CEL expression that can
// only narrow it further.
type Filter struct {
	program *cel.Program
	logger  logger.Logger
}

// NewFilter compiles expression once. An empty expression disables the
// CEL stage.
func NewFilter(expression string, log logger.Logger) (*Filter, error) {
	f := &Filter{logger: log}

	expression = strings.TrimSpace(expression)
	if expression == "" {
		return f, nil
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	program, err := evaluator.CompileFilter(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	f.program = program

	return f, nil
}

// Eligible applies the whitelist only. It needs no addressing and runs
// before the sender is normalized.
func (f *Filter) Eligible(payload *string) bool {
	return IsCommand(payload)
}

// Narrow applies the CEL stage to a payload that already passed Eligible.
// Evaluation errors drop the packet.
func (f *Filter) Narrow(ctx context.Context, in cel.Input) bool {
	if f.program == nil {
		return true
	}

	ok, err := f.program.Eval(ctx, in)
	if err != nil {
		f.logger.WarnwCtx(ctx, "Filter expression evaluation failed, dropping packet",
			"expression", f.program.String(),
			"error", err,
		)
		metrics.FallbackUsageTotal.WithLabelValues(constants.ServiceName, "deny", "filter_eval_error").Inc()
		return false
	}
	return ok
}

func (f *Filter) HasExpression() bool {
	return f.program != nil
}
