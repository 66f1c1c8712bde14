package engine

// composition is the set of node definitions and effects active for a
// particular branch mounting, with the dependency DAG derived for it.
// Compositions are rebuilt whenever branch membership changes and are
// never mutated.
type composition struct {
	defs    []*NodeDefinition
	index   map[string]*NodeDefinition
	dag     *depGraph
	effects []*EffectDefinition
}

// compose assembles the active composition for the given branch mounting:
// base nodes and effects first, then each mounted variant's in branch
// declaration order. Build-time validation guarantees the union is
// collision-free and acyclic.
func (g *Graph) compose(mounted map[int]string) (*composition, error) {
	defs := make([]*NodeDefinition, 0, len(g.nodes))
	defs = append(defs, g.nodes...)
	effects := make([]*EffectDefinition, 0, len(g.effects))
	effects = append(effects, g.effects...)

	for i, br := range g.branches {
		tag := mounted[i]
		if tag == "" {
			continue
		}
		variant, ok := br.Variants[tag]
		if !ok {
			continue
		}
		defs = append(defs, variant.nodes...)
		effects = append(effects, variant.effects...)
	}

	dag, err := buildDepGraph(defs)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*NodeDefinition, len(defs))
	for _, def := range defs {
		index[def.Key] = def
	}

	return &composition{
		defs:    defs,
		index:   index,
		dag:     dag,
		effects: effects,
	}, nil
}
