package flow

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type iterator struct {
	items []any
	pos   int
}

func (it *iterator) hasNext() bool {
	return it.pos < len(it.items)
}

func (it *iterator) next() any {
	v := it.items[it.pos]
	it.pos++
	return v
}

// ParseStepper expands a stepper expression into its values.
// Two forms are accepted: "start:end:step" and "start...end" (step 1).
// The end bound is exclusive.
func ParseStepper(expr string) ([]int, error) {
	var start, end, step int
	var err error

	if idx := strings.Index(expr, "..."); idx > 0 {
		if start, err = strconv.Atoi(strings.TrimSpace(expr[:idx])); err != nil {
			return nil, fmt.Errorf("invalid stepper %q: %w", expr, err)
		}
		if end, err = strconv.Atoi(strings.TrimSpace(expr[idx+3:])); err != nil {
			return nil, fmt.Errorf("invalid stepper %q: %w", expr, err)
		}
		step = 1
	} else {
		terms := strings.SplitN(expr, ":", 3)
		if len(terms) != 3 {
			return nil, fmt.Errorf("invalid stepper %q: expected 'start:end:step'", expr)
		}
		vals := make([]int, 3)
		for i, term := range terms {
			if vals[i], err = strconv.Atoi(strings.TrimSpace(term)); err != nil {
				return nil, fmt.Errorf("invalid stepper %q: %w", expr, err)
			}
		}
		start, end, step = vals[0], vals[1], vals[2]
	}

	if step <= 0 {
		return nil, fmt.Errorf("invalid stepper %q: step must be positive", expr)
	}

	var out []int
	for v := start; v < end; v += step {
		out = append(out, v)
	}
	return out, nil
}

// loopItems resolves the "$in" attribute of a loop node into the items to
// iterate: a literal list, the name of a context variable holding a list, or
// a stepper expression.
func loopItems(in any, fc *Context) ([]any, error) {
	switch v := in.(type) {
	case nil:
		return nil, fmt.Errorf("the '$in' attribute is required")
	case string:
		if strings.Contains(v, ":") || strings.Contains(v, "...") {
			steps, err := ParseStepper(v)
			if err != nil {
				return nil, err
			}
			items := make([]any, len(steps))
			for i, s := range steps {
				items[i] = s
			}
			return items, nil
		}
		val, ok := fc.Get(v)
		if !ok {
			return nil, fmt.Errorf("loop variable %q not found in context", v)
		}
		return toSlice(val)
	default:
		return toSlice(v)
	}
}

func toSlice(v any) ([]any, error) {
	if items, ok := v.([]any); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%v is not a collection", v)
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}
