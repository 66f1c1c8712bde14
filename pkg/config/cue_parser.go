package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"github.com/go-playground/validator/v10"
	"github.com/zclconf/go-cty/cty"

	"github.com/formgraph/formgraph/pkg/engine"
	"github.com/formgraph/formgraph/pkg/schema"
)

// Parser parses CUE graph-definition documents and builds engine graphs
// from them.
type Parser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
	exprEvaluator  *ExprEvaluator
	validator      *validator.Validate
}

// NewParser creates a new definition parser. The parser compiles
// documents in its schema registry's CUE context so they can be unified
// with the registered schemas.
func NewParser() *Parser {
	registry := NewSchemaRegistry()
	return &Parser{
		ctx:            registry.Context(),
		schemaRegistry: registry,
		exprEvaluator:  NewExprEvaluator(0),
		validator:      validator.New(),
	}
}

// ParseFile reads and parses a definition document from disk.
func (p *Parser) ParseFile(ctx context.Context, path string) (*ParseResult, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}
	result, err := p.Parse(ctx, path, src)
	if err != nil {
		return nil, err
	}
	result.Source = path
	return result, nil
}

// Parse compiles and validates a definition document. Schema and struct
// validation issues are collected into the result's Errors; compile
// failures are returned as errors.
func (p *Parser) Parse(ctx context.Context, source string, src []byte) (*ParseResult, error) {
	result := &ParseResult{Source: source, ParsedAt: time.Now()}

	val := p.ctx.CompileBytes(src, cue.Filename(source))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", source, err)
	}

	if err := p.schemaRegistry.ValidateAgainstSchema(ctx, "definition", val); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	graphVal := val.LookupPath(cue.ParsePath("graph"))
	if !graphVal.Exists() {
		result.Errors = append(result.Errors, "document has no top-level 'graph' field")
		return result, nil
	}

	var def Definition
	if err := graphVal.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", source, err)
	}

	if err := p.validator.Struct(def); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("definition validation failed: %v", err))
		return result, nil
	}

	result.Definition = &def
	return result, nil
}

// LoadGraph parses a definition file and builds the graph in one step.
func (p *Parser) LoadGraph(ctx context.Context, path string) (*engine.Graph, *Definition, error) {
	result, err := p.ParseFile(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if len(result.Errors) > 0 {
		return nil, nil, fmt.Errorf("invalid definition %s: %s", path, result.Errors[0])
	}
	g, err := p.BuildGraph(result.Definition)
	if err != nil {
		return nil, nil, err
	}
	return g, result.Definition, nil
}

// BuildGraph compiles a validated definition into an engine graph. The
// returned graph keeps a reference to the parser's expression evaluator,
// which is safe for concurrent instances.
func (p *Parser) BuildGraph(def *Definition) (*engine.Graph, error) {
	builder := engine.NewGraphBuilder()
	if def.EffectCap > 0 {
		builder.WithEffectCap(def.EffectCap)
	}

	for _, spec := range def.Nodes {
		nd, err := p.buildNode(spec)
		if err != nil {
			return nil, err
		}
		builder.AddNode(nd)
	}
	for _, spec := range def.Effects {
		builder.AddEffect(p.buildEffect(spec))
	}

	for _, br := range def.Branches {
		variants := make(map[string]*engine.Graph, len(br.Variants))
		for tag, sub := range br.Variants {
			vb := engine.NewGraphBuilder()
			for _, spec := range sub.Nodes {
				nd, err := p.buildNode(spec)
				if err != nil {
					return nil, fmt.Errorf("variant %q: %w", tag, err)
				}
				vb.AddNode(nd)
			}
			for _, spec := range sub.Effects {
				vb.AddEffect(p.buildEffect(spec))
			}
			vg, err := vb.Build()
			if err != nil {
				return nil, fmt.Errorf("variant %q: %w", tag, err)
			}
			variants[tag] = vg
		}
		builder.AddBranch(engine.DiscriminatorBranch{
			DiscriminantKey: br.Discriminant,
			Variants:        variants,
			Groups:          br.Groups,
		})
	}

	g, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("graph %q: %w", def.Name, err)
	}
	return g, nil
}

// buildNode compiles one node spec: value schema plus Starlark closures
// for default and transform.
func (p *Parser) buildNode(spec NodeSpec) (engine.NodeDefinition, error) {
	s, err := buildValueSchema(spec)
	if err != nil {
		return engine.NodeDefinition{}, fmt.Errorf("node %q: %w", spec.Key, err)
	}

	nd := engine.NodeDefinition{
		Key:          spec.Key,
		Schema:       s,
		Dependencies: spec.DependsOn,
		Meta:         spec.Meta,
	}

	if spec.Default != "" {
		expr := spec.Default
		deps := spec.DependsOn
		name := spec.Key + ".default"
		nd.Default = func(ctx *engine.Context) (cty.Value, error) {
			return p.exprEvaluator.Eval(name, expr, depEnv(ctx, deps), ctx.External())
		}
	}

	if spec.Transform != "" {
		expr := spec.Transform
		deps := spec.DependsOn
		name := spec.Key + ".transform"
		nd.Transform = func(v cty.Value, ctx *engine.Context) (cty.Value, error) {
			env := depEnv(ctx, deps)
			env["value"] = v
			return p.exprEvaluator.Eval(name, expr, env, ctx.External())
		}
	}

	return nd, nil
}

// buildEffect compiles one effect spec. Target keys are written in sorted
// order so evaluation stays deterministic.
func (p *Parser) buildEffect(spec EffectSpec) engine.EffectDefinition {
	targets := make([]string, 0, len(spec.Set))
	for key := range spec.Set {
		targets = append(targets, key)
	}
	sort.Strings(targets)

	deps := spec.DependsOn
	name := spec.Name
	exprs := spec.Set

	return engine.EffectDefinition{
		Name:         name,
		Dependencies: deps,
		Run: func(ctx *engine.Context, set engine.SetFunc) error {
			env := depEnv(ctx, deps)
			for _, key := range targets {
				v, err := p.exprEvaluator.Eval(name+"."+key, exprs[key], env, ctx.External())
				if err != nil {
					return err
				}
				if v.IsNull() {
					continue
				}
				set(key, v)
			}
			return nil
		},
	}
}

// buildValueSchema maps a node spec's type and constraints to a value
// schema.
func buildValueSchema(spec NodeSpec) (schema.Schema, error) {
	var s schema.Schema
	switch spec.Type {
	case "string":
		s = schema.String()
	case "number":
		s = schema.Number()
	case "bool":
		s = schema.Bool()
	case "any":
		s = schema.Any()
	default:
		return schema.Schema{}, fmt.Errorf("unsupported type %q", spec.Type)
	}

	if len(spec.Enum) > 0 {
		if spec.Type != "string" {
			return schema.Schema{}, fmt.Errorf("enum requires type string, got %q", spec.Type)
		}
		s = schema.Enum(spec.Enum...)
	}
	if spec.Min != nil || spec.Max != nil {
		if spec.Type != "number" {
			return schema.Schema{}, fmt.Errorf("min/max require type number, got %q", spec.Type)
		}
		if spec.Min != nil {
			lo := cty.NumberFloatVal(*spec.Min)
			s.Min = &lo
		}
		if spec.Max != nil {
			hi := cty.NumberFloatVal(*spec.Max)
			s.Max = &hi
		}
	}
	if spec.Pattern != "" {
		if spec.Type != "string" {
			return schema.Schema{}, fmt.Errorf("pattern requires type string, got %q", spec.Type)
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return schema.Schema{}, fmt.Errorf("invalid pattern: %w", err)
		}
		s.Pattern = re
	}
	if spec.Optional {
		s = s.Optional()
	}

	return s, nil
}

// depEnv collects the declared dependency values visible to an expression.
// Absent dependencies are simply omitted, surfacing as undefined variables
// in the expression, which is the clearest failure mode.
func depEnv(ctx *engine.Context, deps []string) map[string]cty.Value {
	env := make(map[string]cty.Value, len(deps))
	for _, dep := range deps {
		if v, ok := ctx.Get(dep); ok {
			env[dep] = v
		}
	}
	return env
}
