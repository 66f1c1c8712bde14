package engine

import (
	"fmt"
)

// DefaultEffectCap is the default number of effect cascade passes allowed
// per evaluation before the runtime aborts with a cycle error.
const DefaultEffectCap = 10

// Graph is an immutable template: an ordered collection of node
// definitions plus zero or more discriminator branches and effects.
// A Graph is safe for concurrent use; all mutable state lives in the
// Instances it produces.
type Graph struct {
	nodes     []*NodeDefinition
	nodeIndex map[string]*NodeDefinition
	branches  []*DiscriminatorBranch
	effects   []*EffectDefinition
	effectCap int

	// allKeys holds every key declared anywhere in the graph, including
	// nodes owned by currently relevant branch variants. Used to tell an
	// inactive-but-declared key apart from a typo.
	allKeys map[string]struct{}
}

// Node returns the base definition for the given key, or nil if the key is
// not a base node.
func (g *Graph) Node(key string) *NodeDefinition {
	return g.nodeIndex[key]
}

// Nodes returns the base node definitions in declaration order.
func (g *Graph) Nodes() []*NodeDefinition {
	return g.nodes
}

// Branches returns the discriminator branches in declaration order.
func (g *Graph) Branches() []*DiscriminatorBranch {
	return g.branches
}

// Effects returns the base effect definitions in declaration order.
func (g *Graph) Effects() []*EffectDefinition {
	return g.effects
}

// EffectCap returns the configured effect cascade pass cap.
func (g *Graph) EffectCap() int {
	return g.effectCap
}

// Declares reports whether key is declared anywhere in the graph,
// including inside branch variants that may not be mounted.
func (g *Graph) Declares(key string) bool {
	_, ok := g.allKeys[key]
	return ok
}

// GraphBuilder assembles a Graph. Builder methods record errors instead of
// returning them so declarations can be chained; Build surfaces the first
// recorded error.
type GraphBuilder struct {
	nodes     []*NodeDefinition
	branches  []*DiscriminatorBranch
	effects   []*EffectDefinition
	effectCap int
	errs      []error
}

// NewGraphBuilder creates an empty graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{effectCap: DefaultEffectCap}
}

// AddNode declares a node. Keys must be unique within the composition.
func (b *GraphBuilder) AddNode(def NodeDefinition) *GraphBuilder {
	if def.Key == "" {
		b.errs = append(b.errs, NewUnknownNodeError("", "node declared with empty key"))
		return b
	}
	d := def
	b.nodes = append(b.nodes, &d)
	return b
}

// AddEffect declares an effect. Effects run in declaration order.
func (b *GraphBuilder) AddEffect(def EffectDefinition) *GraphBuilder {
	d := def
	if d.Name == "" {
		d.Name = fmt.Sprintf("effect-%d", len(b.effects))
	}
	b.effects = append(b.effects, &d)
	return b
}

// AddBranch declares a discriminator branch. The discriminant key must
// name a node declared in the same builder.
func (b *GraphBuilder) AddBranch(br DiscriminatorBranch) *GraphBuilder {
	d := br
	b.branches = append(b.branches, &d)
	return b
}

// WithEffectCap overrides the effect cascade pass cap.
func (b *GraphBuilder) WithEffectCap(n int) *GraphBuilder {
	if n > 0 {
		b.effectCap = n
	}
	return b
}

// Merge imports another graph's nodes, effects, and branches into this
// builder. Key collisions are build-time errors, surfaced by Build.
func (b *GraphBuilder) Merge(child *Graph) *GraphBuilder {
	if child == nil {
		b.errs = append(b.errs, NewUnknownNodeError("", "merge of nil graph"))
		return b
	}
	for _, def := range child.nodes {
		b.nodes = append(b.nodes, def)
	}
	for _, eff := range child.effects {
		b.effects = append(b.effects, eff)
	}
	for _, br := range child.branches {
		b.branches = append(b.branches, br)
	}
	return b
}

// Build validates the composition and returns the immutable Graph.
//
// Build enforces: unique keys across the base graph and all branch
// variants (two variants of the same branch may reuse a key, since they
// are never mounted together); dependencies resolvable within the
// declaring scope (base nodes see base keys, variant nodes additionally
// see their own variant); an acyclic dependency DAG for the base and for
// every base+variant composition; and discriminant keys that name
// declared base nodes.
func (b *GraphBuilder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	g := &Graph{
		nodes:     b.nodes,
		nodeIndex: make(map[string]*NodeDefinition, len(b.nodes)),
		branches:  b.branches,
		effects:   b.effects,
		effectCap: b.effectCap,
		allKeys:   make(map[string]struct{}),
	}

	for _, def := range b.nodes {
		if _, exists := g.nodeIndex[def.Key]; exists {
			return nil, NewUnknownNodeError(def.Key, "duplicate node key")
		}
		g.nodeIndex[def.Key] = def
		g.allKeys[def.Key] = struct{}{}
	}

	// Base DAG must stand on its own.
	if _, err := buildDepGraph(b.nodes); err != nil {
		return nil, err
	}

	for _, eff := range b.effects {
		for _, dep := range eff.Dependencies {
			if _, ok := g.nodeIndex[dep]; !ok {
				return nil, NewUnknownNodeError(dep,
					fmt.Sprintf("effect %q depends on undeclared key", eff.Name))
			}
		}
		if eff.Run == nil {
			return nil, NewUnknownNodeError("", fmt.Sprintf("effect %q has no body", eff.Name))
		}
	}

	for _, br := range b.branches {
		if err := b.validateBranch(g, br); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// validateBranch checks one discriminator branch: the discriminant node
// exists, variants carry no nested branches, variant keys collide with
// nothing outside their own branch, and each base+variant composition is
// a valid DAG.
func (b *GraphBuilder) validateBranch(g *Graph, br *DiscriminatorBranch) error {
	if _, ok := g.nodeIndex[br.DiscriminantKey]; !ok {
		return NewUnknownNodeError(br.DiscriminantKey,
			"discriminant key does not name a declared node")
	}
	if len(br.Variants) == 0 {
		return NewUnknownNodeError(br.DiscriminantKey, "branch declares no variants")
	}

	for tag, variant := range br.Variants {
		if variant == nil {
			return NewUnknownNodeError(br.DiscriminantKey,
				fmt.Sprintf("variant %q is nil", tag))
		}
		if len(variant.branches) > 0 {
			return NewUnknownNodeError(br.DiscriminantKey,
				fmt.Sprintf("variant %q declares a nested discriminator, which is not supported", tag))
		}

		// Base + variant must form a valid, collision-free composition.
		composed := make([]*NodeDefinition, 0, len(g.nodes)+len(variant.nodes))
		composed = append(composed, g.nodes...)
		for _, def := range variant.nodes {
			if _, exists := g.nodeIndex[def.Key]; exists {
				return NewUnknownNodeError(def.Key,
					fmt.Sprintf("variant %q redeclares a base node key", tag))
			}
			if owner, exists := g.variantKeyOwner(def.Key, br); exists {
				return NewUnknownNodeError(def.Key,
					fmt.Sprintf("variant %q redeclares a key owned by branch on %q", tag, owner))
			}
			composed = append(composed, def)
			g.allKeys[def.Key] = struct{}{}
		}
		if _, err := buildDepGraph(composed); err != nil {
			return err
		}

		for _, eff := range variant.effects {
			for _, dep := range eff.Dependencies {
				if !containsKey(composed, dep) {
					return NewUnknownNodeError(dep,
						fmt.Sprintf("effect %q in variant %q depends on undeclared key", eff.Name, tag))
				}
			}
		}
	}

	for value, tag := range br.Groups {
		if _, ok := br.Variants[tag]; !ok {
			return NewUnknownNodeError(br.DiscriminantKey,
				fmt.Sprintf("group maps discriminant value %q to unknown variant %q", value, tag))
		}
	}

	return nil
}

// variantKeyOwner reports whether key is already owned by a variant of a
// different branch than current.
func (g *Graph) variantKeyOwner(key string, current *DiscriminatorBranch) (string, bool) {
	for _, br := range g.branches {
		if br == current {
			continue
		}
		for _, variant := range br.Variants {
			for _, def := range variant.nodes {
				if def.Key == key {
					return br.DiscriminantKey, true
				}
			}
		}
	}
	return "", false
}

func containsKey(defs []*NodeDefinition, key string) bool {
	for _, def := range defs {
		if def.Key == key {
			return true
		}
	}
	return false
}
