package config

import (
	"time"
)

// Definition is a parsed graph-definition document. Documents are authored
// in CUE, validated against the built-in definition schema, then decoded
// into this struct and cross-checked with struct validation before a graph
// is built from them.
type Definition struct {
	// Name identifies the graph, e.g. "sd-image-form".
	Name string `json:"name" validate:"required"`

	// EffectCap overrides the engine's effect cascade pass cap.
	EffectCap int `json:"effect_cap,omitempty" validate:"omitempty,gt=0"`

	// Nodes are the base node declarations, in declaration order.
	Nodes []NodeSpec `json:"nodes" validate:"required,min=1,dive"`

	// Branches are discriminator branch declarations.
	Branches []BranchSpec `json:"branches,omitempty" validate:"omitempty,dive"`

	// Effects are base effect declarations.
	Effects []EffectSpec `json:"effects,omitempty" validate:"omitempty,dive"`
}

// NodeSpec declares one node of the graph.
type NodeSpec struct {
	// Key is the node's unique name.
	Key string `json:"key" validate:"required"`

	// Type is the value type: "string", "number", "bool", or "any".
	Type string `json:"type" validate:"required,oneof=string number bool any"`

	// Optional accepts null values when true.
	Optional bool `json:"optional,omitempty"`

	// Enum restricts string values to the listed ones.
	Enum []string `json:"enum,omitempty"`

	// Min and Max bound number values (inclusive).
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// Pattern constrains string values with a regular expression.
	Pattern string `json:"pattern,omitempty"`

	// DependsOn lists the keys the default/transform expressions read.
	DependsOn []string `json:"depends_on,omitempty"`

	// Default is a Starlark expression computing the default value. The
	// expression sees each dependency as a variable named after its key,
	// plus `ext` for the external context.
	Default string `json:"default,omitempty"`

	// Transform is a Starlark expression normalizing written values. It
	// additionally sees the incoming value as `value`.
	Transform string `json:"transform,omitempty"`

	// Meta is descriptive metadata passed through to the engine untouched.
	Meta map[string]string `json:"meta,omitempty"`
}

// BranchSpec declares a discriminator branch.
type BranchSpec struct {
	// Discriminant names the node whose value selects the variant.
	Discriminant string `json:"discriminant" validate:"required"`

	// Variants maps a variant tag to its sub-graph.
	Variants map[string]SubGraphSpec `json:"variants" validate:"required,min=1"`

	// Groups maps individual discriminant values to a shared variant tag.
	Groups map[string]string `json:"groups,omitempty"`
}

// SubGraphSpec is a branch variant's sub-graph: nodes and effects only,
// no nested branches.
type SubGraphSpec struct {
	Nodes   []NodeSpec   `json:"nodes" validate:"required,min=1,dive"`
	Effects []EffectSpec `json:"effects,omitempty" validate:"omitempty,dive"`
}

// EffectSpec declares an effect as a map of target keys to Starlark
// expressions. When a dependency changes, every expression is evaluated
// and its result written to its target key.
type EffectSpec struct {
	// Name identifies the effect in errors and metrics.
	Name string `json:"name" validate:"required"`

	// DependsOn lists the keys whose changes trigger the effect.
	DependsOn []string `json:"depends_on" validate:"required,min=1"`

	// Set maps target node keys to Starlark expressions. An expression
	// evaluating to None writes nothing for that key.
	Set map[string]string `json:"set" validate:"required,min=1"`
}

// ParseResult carries a parsed definition along with parse diagnostics.
type ParseResult struct {
	// Definition is the decoded document, nil when Errors is non-empty.
	Definition *Definition

	// Source is the file the definition was read from, if any.
	Source string

	// Errors are validation errors collected during parsing.
	Errors []string

	// ParsedAt is when parsing completed.
	ParsedAt time.Time
}
