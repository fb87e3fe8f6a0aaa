package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid simple expression",
			expr:      `message == "!ping"`,
			wantError: false,
		},
		{
			name:      "valid numeric comparison",
			expr:      `from > 100`,
			wantError: false,
		},
		{
			name:      "invalid expression",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `payload == "test"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid bool expression",
			expr:      `channel == 0`,
			wantError: false,
		},
		{
			name:      "non-bool expression",
			expr:      `from + 1`,
			wantError: true,
		},
		{
			name:      "string expression",
			expr:      `message`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluateFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	direct := Input{Message: "!ping", From: 123, To: 456}
	broadcast := Input{Message: "!help", From: 2882400001, To: 0xFFFFFFFF, Broadcast: true, Channel: 1}

	tests := []struct {
		name  string
		expr  string
		input Input
		want  bool
	}{
		{name: "sender match", expr: `from == 123`, input: direct, want: true},
		{name: "sender mismatch", expr: `from == 124`, input: direct, want: false},
		{name: "high node number", expr: `from == 2882400001`, input: broadcast, want: true},
		{name: "broadcast rejected", expr: `!broadcast`, input: broadcast, want: false},
		{name: "direct accepted", expr: `!broadcast`, input: direct, want: true},
		{name: "message prefix", expr: `message.startsWith("!ping")`, input: direct, want: true},
		{name: "channel", expr: `channel == 0`, input: broadcast, want: false},
		{name: "recipient", expr: `to == 456`, input: direct, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.EvaluateFilter(context.Background(), tt.expr, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileFilterReuse(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	program, err := eval.CompileFilter(`size(message) <= 5`)
	require.NoError(t, err)
	assert.Equal(t, `size(message) <= 5`, program.String())

	ok, err := program.Eval(context.Background(), Input{Message: "!ping"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = program.Eval(context.Background(), Input{Message: "!ping now"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilterExpressionExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range FilterExpressionExamples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, eval.ValidateFilterExpression(expr))
		})
	}
}
