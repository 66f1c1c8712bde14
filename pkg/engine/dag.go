package engine

import (
	"fmt"
	"sort"
	"strings"
)

// depGraph is the static dependency DAG for one active composition of node
// definitions. It is rebuilt whenever branch membership changes.
type depGraph struct {
	// declared preserves declaration order for deterministic tie-breaking.
	declared []string

	// adjacency maps a key to its direct dependents.
	adjacency map[string][]string

	// reverse maps a key to its direct dependencies.
	reverse map[string][]string

	// inDegree tracks the number of incoming edges for each key.
	inDegree map[string]int

	// order is the topological evaluation order.
	order []string
}

// buildDepGraph constructs and validates the dependency DAG for the given
// ordered definitions. It fails with an unknown-node error if a dependency
// names an undeclared key, and with a cycle error if the declarations are
// not acyclic.
func buildDepGraph(defs []*NodeDefinition) (*depGraph, error) {
	g := &depGraph{
		adjacency: make(map[string][]string, len(defs)),
		reverse:   make(map[string][]string, len(defs)),
		inDegree:  make(map[string]int, len(defs)),
	}

	index := make(map[string]int, len(defs))
	for i, def := range defs {
		g.declared = append(g.declared, def.Key)
		g.adjacency[def.Key] = nil
		g.reverse[def.Key] = nil
		g.inDegree[def.Key] = 0
		index[def.Key] = i
	}

	for _, def := range defs {
		for _, dep := range def.Dependencies {
			if dep == def.Key {
				return nil, NewCycleError(
					fmt.Sprintf("node %q declares itself as a dependency", def.Key), nil)
			}
			if _, ok := index[dep]; !ok {
				return nil, NewUnknownNodeError(dep,
					fmt.Sprintf("node %q depends on undeclared key", def.Key))
			}
			g.adjacency[dep] = append(g.adjacency[dep], def.Key)
			g.reverse[def.Key] = append(g.reverse[def.Key], dep)
			g.inDegree[def.Key]++
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	g.computeOrder(index)

	return g, nil
}

// detectCycles uses depth-first search with a recursion stack, reporting
// the cycle path when one is found.
func (g *depGraph) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	var path []string

	var visit func(key string) error
	visit = func(key string) error {
		visited[key] = true
		recStack[key] = true
		path = append(path, key)

		for _, dependent := range g.adjacency[key] {
			if !visited[dependent] {
				if err := visit(dependent); err != nil {
					return err
				}
			} else if recStack[dependent] {
				// Trim the path to the cycle itself for readability.
				start := 0
				for i, k := range path {
					if k == dependent {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), dependent)
				return NewCycleError(
					fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")), nil)
			}
		}

		path = path[:len(path)-1]
		recStack[key] = false
		return nil
	}

	for _, key := range g.declared {
		if !visited[key] {
			if err := visit(key); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeOrder runs Kahn's algorithm, breaking ties by declaration order so
// evaluation is deterministic.
func (g *depGraph) computeOrder(index map[string]int) {
	inDegree := make(map[string]int, len(g.inDegree))
	for k, v := range g.inDegree {
		inDegree[k] = v
	}

	var ready []string
	for _, key := range g.declared {
		if inDegree[key] == 0 {
			ready = append(ready, key)
		}
	}

	order := make([]string, 0, len(g.declared))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return index[ready[i]] < index[ready[j]]
		})
		key := ready[0]
		ready = ready[1:]
		order = append(order, key)

		for _, dependent := range g.adjacency[key] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	g.order = order
}

// dependentsClosure returns the transitive dependents of the seed keys,
// excluding the seeds themselves unless they are also dependents of another
// seed.
func (g *depGraph) dependentsClosure(seeds map[string]bool) map[string]bool {
	closure := make(map[string]bool)
	var queue []string
	for key := range seeds {
		queue = append(queue, key)
	}

	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		for _, dependent := range g.adjacency[key] {
			if !closure[dependent] {
				closure[dependent] = true
				queue = append(queue, dependent)
			}
		}
	}
	return closure
}
