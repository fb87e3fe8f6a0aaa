package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Input is the set of packet fields visible to a filter expression.
type Input struct {
	Message   string
	From      uint32
	To        uint32
	Channel   uint32
	Broadcast bool
}

func (in Input) vars() map[string]interface{} {
	return map[string]interface{}{
		"message":   in.Message,
		"from":      int64(in.From),
		"to":        int64(in.To),
		"channel":   int64(in.Channel),
		"broadcast": in.Broadcast,
	}
}

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("message", cel.StringType),
		cel.Variable("from", cel.IntType),
		cel.Variable("to", cel.IntType),
		cel.Variable("channel", cel.IntType),
		cel.Variable("broadcast", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compileFilter(expression)
	return err
}

// Program is a compiled filter expression, safe for concurrent use.
type Program struct {
	expression string
	program    cel.Program
}

func (p *Program) String() string {
	return p.expression
}

func (p *Program) Eval(ctx context.Context, in Input) (bool, error) {
	result, _, err := p.program.ContextEval(ctx, in.vars())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// CompileFilter compiles a boolean filter expression once so it can be
// evaluated per packet without re-parsing.
func (e *Evaluator) CompileFilter(expression string) (*Program, error) {
	return e.compileFilter(expression)
}

func (e *Evaluator) compileFilter(expression string) (*Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Program{expression: expression, program: program}, nil
}

func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, in Input) (bool, error) {
	program, err := e.compileFilter(expression)
	if err != nil {
		return false, err
	}
	return program.Eval(ctx, in)
}
