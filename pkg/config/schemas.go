package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas used to validate definition documents.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}
	sr.RegisterSchema("definition", builtinDefinitionSchema)
	return sr
}

// Context returns the registry's CUE context. Documents must be compiled
// in the same context as the schemas they are validated against.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates a CUE value against a named schema by
// unification.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data cue.Value) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// builtinDefinitionSchema constrains graph-definition documents. The
// decoded Go structs are additionally checked with struct validation; this
// schema catches shape errors with CUE's richer diagnostics first.
const builtinDefinitionSchema = `
#Effect: {
	name:       string & !=""
	depends_on: [...string] & [_, ...]
	set: {[string]: string}
}

#Node: {
	key:  string & !=""
	type: "string" | "number" | "bool" | "any"
	optional?:   bool
	enum?:       [...string]
	min?:        number
	max?:        number
	pattern?:    string
	depends_on?: [...string]
	default?:    string
	transform?:  string
	meta?: {[string]: string}
}

#SubGraph: {
	nodes: [...#Node] & [_, ...]
	effects?: [...#Effect]
}

#Branch: {
	discriminant: string & !=""
	variants: {[string]: #SubGraph}
	groups?: {[string]: string}
}

graph: {
	name:        string & !=""
	effect_cap?: int & >0
	nodes:       [...#Node] & [_, ...]
	branches?:   [...#Branch]
	effects?:    [...#Effect]
}
`
