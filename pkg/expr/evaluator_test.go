package expr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_Evaluate(t *testing.T) {
	e := NewEvaluator()
	vars := map[string]any{
		"amount":   1500,
		"region":   "eu",
		"approved": true,
		"roles":    []string{"clerk", "manager"},
		"order":    map[string]any{"total": 20.5, "items": []any{"a", "b"}},
		"nothing":  nil,
	}

	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"comparison", "amount > 1000", true},
		{"conjunction", `amount > 1000 && region == "us"`, false},
		{"bool var", "approved", true},
		{"negation", "!approved", false},
		{"nested attribute", "order.total < 30", true},
		{"contains", `contains(roles, "manager")`, true},
		{"length", "length(order.items) == 2", true},
		{"nil var equals null", "nothing == null", true},
		{"missing var alone", "missing", false},
		{"missing var comparison", "missing > 3", false},
		{"missing var negated", "!missing", false},
		{"missing var equality", `missing == "eu"`, false},
		{"missing nested attribute", "missing.total < 30", false},
		{"string bool", `"true"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(context.Background(), tt.cond, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	e := NewEvaluator()

	_, err := e.Evaluate(context.Background(), "amount >", nil)
	assert.Error(t, err, "syntax error")

	_, err = e.Evaluate(context.Background(), "amount + 1", map[string]any{"amount": 1})
	assert.Error(t, err, "non-bool result")

	assert.NoError(t, e.Check(`a == "b"`))
	assert.Error(t, e.Check(`a ==`))
}

func TestEvaluator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEvaluator().Evaluate(ctx, "true", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromValue_RoundTrip(t *testing.T) {
	in := map[string]any{"n": 2, "s": "x", "l": []any{true, "y"}}
	v, err := ToValue(in)
	require.NoError(t, err)

	out, err := FromValue(v)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(2), "s": "x", "l": []any{true, "y"}}, out)
}
