package schema

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ToJSON serializes a value for persistence or CLI output. Dynamic values
// are serialized with their type embedded so they round-trip losslessly.
func ToJSON(v cty.Value) ([]byte, error) {
	ty := v.Type()
	buf, err := ctyjson.Marshal(v, ty)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return buf, nil
}

// FromJSON deserializes a value previously produced by ToJSON, interpreting
// it as the given type. Pass cty.DynamicPseudoType to infer the type from
// the JSON structure.
func FromJSON(buf []byte, ty cty.Type) (cty.Value, error) {
	if ty == cty.NilType {
		ty = cty.DynamicPseudoType
	}
	v, err := ctyjson.Unmarshal(buf, ty)
	if err != nil {
		// Values of unknown provenance (e.g. hand-edited session rows)
		// fall back to structural inference.
		ity, ierr := ctyjson.ImpliedType(buf)
		if ierr != nil {
			return cty.NilVal, fmt.Errorf("failed to unmarshal value: %w", err)
		}
		v, err = ctyjson.Unmarshal(buf, ity)
		if err != nil {
			return cty.NilVal, fmt.Errorf("failed to unmarshal value: %w", err)
		}
	}
	return v, nil
}

// FromGo converts plain Go data (as produced by encoding/json or yaml
// decoding into interface{}) to a cty value.
func FromGo(v interface{}) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case bool:
		return cty.BoolVal(val), nil
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case string:
		return cty.StringVal(val), nil
	case []interface{}:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(val))
		for i, item := range val {
			ev, err := FromGo(item)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case map[string]interface{}:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(val))
		for k, item := range val {
			ev, err := FromGo(item)
			if err != nil {
				return cty.NilVal, fmt.Errorf("attribute %q: %w", k, err)
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported Go type %T", v)
	}
}

// ToGo converts a cty value back to plain Go data suitable for yaml/json
// encoding. Null values become nil.
func ToGo(v cty.Value) (interface{}, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		if f == float64(int64(f)) {
			return int64(f), nil
		}
		return f, nil
	case ty == cty.String:
		return v.AsString(), nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]interface{}, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			gv, err := ToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]interface{}, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			gv, err := ToGo(ev)
			if err != nil {
				return nil, err
			}
			out[kv.AsString()] = gv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
	}
}
