package engine

import (
	"github.com/formgraph/formgraph/pkg/schema"
	"github.com/zclconf/go-cty/cty"
)

// ComputeFunc computes a node's default value from the current values of
// its declared dependencies.
type ComputeFunc func(ctx *Context) (cty.Value, error)

// TransformFunc normalizes a caller-written value before schema validation.
type TransformFunc func(v cty.Value, ctx *Context) (cty.Value, error)

// SetFunc is the write callback handed to effects. Writes are collected and
// fed back into the resolver as a new evaluation pass after the effect
// returns; they are not applied immediately.
type SetFunc func(key string, v cty.Value)

// EffectFunc is the body of an effect. It may read its declared
// dependencies through ctx and write other nodes through set.
type EffectFunc func(ctx *Context, set SetFunc) error

// NodeDefinition declares a single named field of a graph.
type NodeDefinition struct {
	// Key is the node's unique name within its active composition.
	Key string

	// Schema is the output contract. A value enters the snapshot only
	// after passing it.
	Schema schema.Schema

	// InputSchema, when set, is applied to caller-written raw values
	// before Transform and output coercion. Leave nil to accept anything
	// the output schema can coerce.
	InputSchema *schema.Schema

	// Dependencies lists the keys this node's default computation reads.
	// Reads of undeclared keys are not visible through the Context.
	Dependencies []string

	// Default computes the node's value when it has no caller-supplied
	// value or when a dependency changed. A nil Default yields a null
	// value of the schema type.
	Default ComputeFunc

	// Transform, when set, normalizes caller-written values (e.g.
	// clamping, trimming) before output validation. It does not run on
	// computed defaults.
	Transform TransformFunc

	// Meta carries descriptive metadata for the owning caller, e.g. which
	// external datasets a field needs fetched out-of-band. The engine
	// never interprets it.
	Meta map[string]string
}

// EffectDefinition declares a side effect that runs after an evaluation
// settles when one of its dependencies changed. Effects produce no node
// value of their own; they only write other nodes through the provided
// SetFunc.
type EffectDefinition struct {
	// Name identifies the effect in errors and observer callbacks.
	Name string

	// Dependencies lists the keys whose changes trigger this effect.
	Dependencies []string

	// Run is the effect body.
	Run EffectFunc
}

// Context gives compute functions, transforms, and effects read access to
// their declared dependencies and the caller-supplied external context.
// Reads are restricted to the declared dependency set so that the static
// DAG remains the single source of truth for invalidation.
type Context struct {
	values  map[string]cty.Value
	allowed map[string]struct{}
	ext     interface{}
}

// Get returns the current value of a declared dependency. The second
// return is false if the key is not declared as a dependency or its node
// is not currently mounted.
func (c *Context) Get(key string) (cty.Value, bool) {
	if _, ok := c.allowed[key]; !ok {
		return cty.NilVal, false
	}
	v, ok := c.values[key]
	return v, ok
}

// GetString returns a declared string dependency, or the empty string if
// it is absent or null.
func (c *Context) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok || v.IsNull() || v.Type() != cty.String {
		return ""
	}
	return v.AsString()
}

// External returns the opaque external context supplied by the caller.
// It may be nil.
func (c *Context) External() interface{} {
	return c.ext
}

func newContext(values map[string]cty.Value, deps []string, ext interface{}) *Context {
	allowed := make(map[string]struct{}, len(deps))
	for _, d := range deps {
		allowed[d] = struct{}{}
	}
	return &Context{values: values, allowed: allowed, ext: ext}
}
