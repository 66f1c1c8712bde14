package config

import (
	"fmt"
	"math/big"

	"github.com/zclconf/go-cty/cty"
	"go.starlark.net/starlark"
)

// DefaultMaxSteps bounds a single expression evaluation. Definition
// expressions are short formulas; anything hitting this limit is runaway.
const DefaultMaxSteps = 100_000

// ExprEvaluator evaluates Starlark expressions from definition documents.
// Evaluation is synchronous and bounded by an execution step limit rather
// than a timeout: expressions run inside the engine's evaluation
// transaction, which must never block.
type ExprEvaluator struct {
	maxSteps uint64
}

// NewExprEvaluator creates an evaluator with the given step limit.
// A zero limit selects DefaultMaxSteps.
func NewExprEvaluator(maxSteps uint64) *ExprEvaluator {
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	return &ExprEvaluator{maxSteps: maxSteps}
}

// Eval evaluates a single expression. Each entry of env is visible as a
// variable named after its key; ext is visible as `ext`. The name is used
// in error messages only.
func (ee *ExprEvaluator) Eval(name, expr string, env map[string]cty.Value, ext interface{}) (cty.Value, error) {
	thread := &starlark.Thread{
		Name: "formgraph",
		Print: func(_ *starlark.Thread, _ string) {
			// Definition expressions have no output channel.
		},
	}
	thread.SetMaxExecutionSteps(ee.maxSteps)

	predeclared := make(starlark.StringDict, len(env)+1)
	for key, v := range env {
		sv, err := ctyToStarlark(v)
		if err != nil {
			return cty.NilVal, fmt.Errorf("%s: failed to convert %q: %w", name, key, err)
		}
		predeclared[key] = sv
	}
	extVal, err := goToStarlark(ext)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%s: failed to convert external context: %w", name, err)
	}
	predeclared["ext"] = extVal

	result, err := starlark.Eval(thread, name+".star", expr, predeclared)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%s: %w", name, err)
	}
	return starlarkToCty(result)
}

// ctyToStarlark converts a cty value to its Starlark equivalent.
func ctyToStarlark(v cty.Value) (starlark.Value, error) {
	if v.IsNull() {
		return starlark.None, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.Bool:
		return starlark.Bool(v.True()), nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return starlark.MakeInt64(i), nil
			}
		}
		f, _ := bf.Float64()
		return starlark.Float(f), nil
	case ty == cty.String:
		return starlark.String(v.AsString()), nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		var elems []starlark.Value
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			sv, err := ctyToStarlark(ev)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case ty.IsObjectType() || ty.IsMapType():
		dict := starlark.NewDict(v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			sv, err := ctyToStarlark(ev)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(kv.AsString()), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

// starlarkToCty converts an expression result back to a cty value. The
// engine's schema coercion settles the final type.
func starlarkToCty(v starlark.Value) (cty.Value, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case starlark.Bool:
		return cty.BoolVal(bool(val)), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return cty.NumberIntVal(i), nil
		}
		return cty.NumberVal(new(big.Float).SetInt(val.BigInt())), nil
	case starlark.Float:
		return cty.NumberFloatVal(float64(val)), nil
	case starlark.String:
		return cty.StringVal(string(val)), nil
	case *starlark.List:
		elems := make([]cty.Value, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			ev, err := starlarkToCty(val.Index(i))
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, ev)
		}
		if len(elems) == 0 {
			return cty.EmptyTupleVal, nil
		}
		return cty.TupleVal(elems), nil
	case starlark.Tuple:
		elems := make([]cty.Value, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			ev, err := starlarkToCty(val.Index(i))
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, ev)
		}
		if len(elems) == 0 {
			return cty.EmptyTupleVal, nil
		}
		return cty.TupleVal(elems), nil
	case *starlark.Dict:
		attrs := make(map[string]cty.Value, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return cty.NilVal, fmt.Errorf("dict key %s is not a string", item[0])
			}
			ev, err := starlarkToCty(item[1])
			if err != nil {
				return cty.NilVal, err
			}
			attrs[string(key)] = ev
		}
		if len(attrs) == 0 {
			return cty.EmptyObjectVal, nil
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported result type %s", v.Type())
	}
}

// goToStarlark converts plain Go data (the external context) to Starlark.
func goToStarlark(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		elems := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := goToStarlark(item)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := goToStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case cty.Value:
		return ctyToStarlark(val)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
