package expr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Evaluator parses and evaluates guard conditions. Parsed expressions are
// cached by source text. It is safe for concurrent use.
type Evaluator struct {
	cache     sync.Map // string -> hclsyntax.Expression
	functions map[string]function.Function
}

// NewEvaluator creates an Evaluator exposing a small function library:
// length, contains, coalesce, upper and lower.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		functions: map[string]function.Function{
			"length":   stdlib.LengthFunc,
			"contains": stdlib.ContainsFunc,
			"coalesce": stdlib.CoalesceFunc,
			"upper":    stdlib.UpperFunc,
			"lower":    stdlib.LowerFunc,
		},
	}
}

// Evaluate reports whether the condition holds for vars. Variables absent
// from vars are unknown, so any condition depending on them is false. A null
// result is false; any other non-boolean result is an error.
func (e *Evaluator) Evaluate(ctx context.Context, condition string, vars map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ex, err := e.parse(condition)
	if err != nil {
		return false, err
	}

	evalCtx, err := e.evalContext(ex, vars)
	if err != nil {
		return false, err
	}

	val, diags := ex.Value(evalCtx)
	if diags.HasErrors() {
		return false, diagsError(diags)
	}
	if !val.IsKnown() || val.IsNull() {
		return false, nil
	}

	b, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition must be a bool, got %s", val.Type().FriendlyName())
	}
	if b.IsNull() {
		return false, nil
	}
	return b.True(), nil
}

// Check parses the condition without evaluating it.
func (e *Evaluator) Check(condition string) error {
	_, err := e.parse(condition)
	return err
}

func (e *Evaluator) parse(condition string) (hclsyntax.Expression, error) {
	if cached, ok := e.cache.Load(condition); ok {
		return cached.(hclsyntax.Expression), nil
	}
	ex, diags := hclsyntax.ParseExpression([]byte(condition), "condition", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, diagsError(diags)
	}
	e.cache.Store(condition, ex)
	return ex, nil
}

func (e *Evaluator) evalContext(ex hclsyntax.Expression, vars map[string]any) (*hcl.EvalContext, error) {
	values := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		if !hclsyntax.ValidIdentifier(k) {
			continue
		}
		cv, err := ToValue(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", k, err)
		}
		values[k] = cv
	}
	for _, tr := range ex.Variables() {
		name := tr.RootName()
		if _, ok := values[name]; !ok {
			values[name] = cty.DynamicVal
		}
	}
	return &hcl.EvalContext{Variables: values, Functions: e.functions}, nil
}

func diagsError(diags hcl.Diagnostics) error {
	errs := make([]error, 0, len(diags))
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %s", d.Summary, d.Detail))
	}
	return errors.Join(errs...)
}
