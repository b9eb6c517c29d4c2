package expr

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ToValue converts a native Go value into a cty.Value. Maps and slices of
// mixed element types become objects and tuples.
func ToValue(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return t, nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int32:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case uint:
		return cty.NumberUIntVal(uint64(t)), nil
	case uint64:
		return cty.NumberUIntVal(t), nil
	case float32:
		return cty.NumberFloatVal(float64(t)), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case *big.Float:
		return cty.NumberVal(t), nil
	case []any:
		return tupleOf(len(t), func(i int) any { return t[i] })
	case map[string]any:
		return objectOf(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return tupleOf(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return objectOf(m)
	case reflect.Pointer:
		if rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		return ToValue(rv.Elem().Interface())
	}

	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type for %T: %w", v, err)
	}
	return gocty.ToCtyValue(v, ty)
}

func tupleOf(n int, at func(int) any) (cty.Value, error) {
	if n == 0 {
		return cty.EmptyTupleVal, nil
	}
	elems := make([]cty.Value, n)
	for i := 0; i < n; i++ {
		ev, err := ToValue(at(i))
		if err != nil {
			return cty.NilVal, fmt.Errorf("index %d: %w", i, err)
		}
		elems[i] = ev
	}
	return cty.TupleVal(elems), nil
}

func objectOf(m map[string]any) (cty.Value, error) {
	if len(m) == 0 {
		return cty.EmptyObjectVal, nil
	}
	attrs := make(map[string]cty.Value, len(m))
	for k, v := range m {
		av, err := ToValue(v)
		if err != nil {
			return cty.NilVal, fmt.Errorf("attribute %q: %w", k, err)
		}
		attrs[k] = av
	}
	return cty.ObjectVal(attrs), nil
}

// FromValue converts a cty.Value back to its natural Go counterpart. Numbers
// become float64, lists and tuples []any, maps and objects map[string]any.
func FromValue(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number to float64: %w", err)
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, ev := it.Element()
			nv, err := FromValue(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			k, ev := it.Element()
			nv, err := FromValue(ev)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", k.AsString(), err)
			}
			out[k.AsString()] = nv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported cty type: %s", ty.FriendlyName())
	}
}
