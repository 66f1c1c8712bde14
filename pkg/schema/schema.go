package schema

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Schema describes the shape a node value must have.
type Schema struct {
	// Type is the required cty type. cty.DynamicPseudoType accepts any
	// value and disables type checking for this schema.
	Type cty.Type

	// Required rejects null values when true.
	Required bool

	// AllowedValues, when non-empty, restricts the value to one of the
	// listed values. Values are compared after coercion to Type.
	AllowedValues []cty.Value

	// Min and Max bound number-typed values (inclusive). Ignored for
	// non-number types.
	Min *cty.Value
	Max *cty.Value

	// Pattern constrains string-typed values. Ignored for non-string types.
	Pattern *regexp.Regexp
}

// Any returns a schema that accepts any non-null value.
func Any() Schema {
	return Schema{Type: cty.DynamicPseudoType, Required: true}
}

// String returns a schema for a required string value.
func String() Schema {
	return Schema{Type: cty.String, Required: true}
}

// Number returns a schema for a required number value.
func Number() Schema {
	return Schema{Type: cty.Number, Required: true}
}

// Bool returns a schema for a required boolean value.
func Bool() Schema {
	return Schema{Type: cty.Bool, Required: true}
}

// Enum returns a string schema restricted to the given values.
func Enum(values ...string) Schema {
	allowed := make([]cty.Value, len(values))
	for i, v := range values {
		allowed[i] = cty.StringVal(v)
	}
	return Schema{Type: cty.String, Required: true, AllowedValues: allowed}
}

// NumberRange returns a number schema bounded to [min, max].
func NumberRange(min, max float64) Schema {
	lo := cty.NumberFloatVal(min)
	hi := cty.NumberFloatVal(max)
	return Schema{Type: cty.Number, Required: true, Min: &lo, Max: &hi}
}

// List returns a schema for a list of the given element type.
func List(elem cty.Type) Schema {
	return Schema{Type: cty.List(elem), Required: true}
}

// Object returns a schema for an object with the given attribute types.
func Object(attrs map[string]cty.Type) Schema {
	return Schema{Type: cty.Object(attrs), Required: true}
}

// Optional returns a copy of s that also accepts null values.
func (s Schema) Optional() Schema {
	s.Required = false
	return s
}

// WithPattern returns a copy of s whose string values must match the given
// regular expression. Panics if the expression does not compile, mirroring
// regexp.MustCompile; schemas are built at program start.
func (s Schema) WithPattern(expr string) Schema {
	s.Pattern = regexp.MustCompile(expr)
	return s
}

// Coerce converts v to the schema's type and validates the result. This is
// the single entry point the runtime uses before admitting a value.
func (s Schema) Coerce(v cty.Value) (cty.Value, error) {
	if v.IsNull() {
		if s.Required {
			return cty.NilVal, fmt.Errorf("value is required but was null")
		}
		return cty.NullVal(s.Type), nil
	}

	converted := v
	if s.Type != cty.DynamicPseudoType {
		var err error
		converted, err = convert.Convert(v, s.Type)
		if err != nil {
			return cty.NilVal, fmt.Errorf("cannot convert %s to %s: %w",
				v.Type().FriendlyName(), s.Type.FriendlyName(), err)
		}
	}

	if err := s.validate(converted); err != nil {
		return cty.NilVal, err
	}
	return converted, nil
}

// Validate checks an already-typed value against the schema's constraints
// without attempting conversion.
func (s Schema) Validate(v cty.Value) error {
	if v.IsNull() {
		if s.Required {
			return fmt.Errorf("value is required but was null")
		}
		return nil
	}
	if s.Type != cty.DynamicPseudoType && !v.Type().Equals(s.Type) {
		return fmt.Errorf("expected %s, got %s",
			s.Type.FriendlyName(), v.Type().FriendlyName())
	}
	return s.validate(v)
}

func (s Schema) validate(v cty.Value) error {
	if len(s.AllowedValues) > 0 {
		ok := false
		for _, allowed := range s.AllowedValues {
			if v.RawEquals(allowed) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("value %s is not one of the allowed values", friendly(v))
		}
	}

	if v.Type() == cty.Number {
		bf := v.AsBigFloat()
		if s.Min != nil && bf.Cmp(s.Min.AsBigFloat()) < 0 {
			return fmt.Errorf("value %s is below minimum %s", friendly(v), friendly(*s.Min))
		}
		if s.Max != nil && bf.Cmp(s.Max.AsBigFloat()) > 0 {
			return fmt.Errorf("value %s is above maximum %s", friendly(v), friendly(*s.Max))
		}
	}

	if v.Type() == cty.String && s.Pattern != nil {
		if !s.Pattern.MatchString(v.AsString()) {
			return fmt.Errorf("value %q does not match pattern %s", v.AsString(), s.Pattern)
		}
	}

	return nil
}

// friendly renders a value for error messages without the cty GoString noise.
func friendly(v cty.Value) string {
	if v.IsNull() {
		return "null"
	}
	switch v.Type() {
	case cty.String:
		return fmt.Sprintf("%q", v.AsString())
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return big.NewFloat(f).Text('g', -1)
	case cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	default:
		return v.Type().FriendlyName() + " value"
	}
}
