package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Instance is a mutable evaluation of a Graph. It is created by
// (*Graph).NewInstance, seeded by Init, mutated only through Set and
// Reset, and observed through Snapshot and Subscribe.
//
// An Instance provides no internal locking; it has a single logical owner.
type Instance struct {
	graph    *Graph
	ext      interface{}
	observer Observer

	values      Snapshot
	mounted     map[int]string // branch index -> mounted variant tag ("" = none)
	comp        *composition
	initialized bool

	subs      []subscription
	subSeq    int
	notifying bool
}

// InstanceOption configures an Instance at creation.
type InstanceOption func(*Instance)

// WithExternal supplies the opaque external context made available to
// compute functions and effects. It can be replaced later with SetExternal.
func WithExternal(ext interface{}) InstanceOption {
	return func(in *Instance) { in.ext = ext }
}

// WithObserver attaches an evaluation observer.
func WithObserver(obs Observer) InstanceOption {
	return func(in *Instance) {
		if obs != nil {
			in.observer = obs
		}
	}
}

// NewInstance creates an uninitialized instance of the graph. Call Init
// before Set or Reset.
func (g *Graph) NewInstance(opts ...InstanceOption) *Instance {
	in := &Instance{
		graph:    g,
		observer: nopObserver{},
		mounted:  make(map[int]string),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// SetExternal replaces the external context for subsequent evaluations.
// It does not trigger an evaluation; callers that want dependents of the
// environment refreshed follow up with a Set or Reset.
func (in *Instance) SetExternal(ext interface{}) {
	in.ext = ext
}

// Snapshot returns a copy of the current settled state.
func (in *Instance) Snapshot() Snapshot {
	return in.values.Clone()
}

// Init seeds the instance and runs the first evaluation. Keys absent from
// seed receive their computed defaults. Seed values for nodes of a branch
// that ends up mounted in this same evaluation are applied after the
// branch mounts.
func (in *Instance) Init(seed map[string]cty.Value) (Snapshot, error) {
	return in.evaluate(seed, true, "Init")
}

// Set applies a partial update and returns the settled snapshot. On any
// error the instance is left exactly as it was.
func (in *Instance) Set(partial map[string]cty.Value) (Snapshot, error) {
	if !in.initialized {
		return nil, NewValidationError("", "Set called before Init", nil)
	}
	return in.evaluate(partial, false, "Set")
}

// ResetOptions controls Reset.
type ResetOptions struct {
	// Exclude lists keys whose current values are retained instead of
	// being reset to computed defaults. When excluding nodes owned by a
	// branch variant, exclude the discriminant as well so the variant is
	// remounted and the retained values have a home.
	Exclude []string
}

// Reset reinitializes all non-excluded nodes to their computed defaults.
func (in *Instance) Reset(opts *ResetOptions) (Snapshot, error) {
	if !in.initialized {
		return nil, NewValidationError("", "Reset called before Init", nil)
	}
	seed := make(map[string]cty.Value)
	if opts != nil {
		for _, key := range opts.Exclude {
			if v, ok := in.values[key]; ok {
				seed[key] = v
			}
		}
	}
	return in.evaluate(seed, true, "Reset")
}

// unmountEvent records a deferred OnUnmount notification, fired only after
// the evaluation commits.
type unmountEvent struct {
	key  string
	last cty.Value
	fn   UnmountFunc
}

// remountEvent records a branch transition for the observer.
type remountEvent struct {
	discriminant string
	from, to     string
}

// evaluate is the single evaluation path behind Init, Set, and Reset.
//
// It works on a scratch copy of the state and commits only on full
// success: partial progress is never visible to snapshots, subscribers,
// or unmount callbacks.
func (in *Instance) evaluate(writes map[string]cty.Value, full bool, op string) (Snapshot, error) {
	if in.notifying {
		return nil, NewReentrancyError(op)
	}
	start := time.Now()

	snap, mounted, comp, report, err := in.run(writes, full)
	if err != nil {
		in.observer.EvaluationFailed(err)
		return nil, err
	}

	changed := diffKeys(in.values, snap)

	in.values = snap
	in.mounted = mounted
	in.comp = comp
	in.initialized = true

	for _, ev := range report.remounts {
		in.observer.BranchRemounted(ev.discriminant, ev.from, ev.to)
	}
	for _, name := range report.effectRuns {
		in.observer.EffectRan(name)
	}
	in.observer.EvaluationSettled(report.passes, len(changed), time.Since(start))

	for _, ev := range report.unmounts {
		ev.fn(ev.key, ev.last)
	}

	in.notify(snap, changed)

	return snap.Clone(), nil
}

// evalReport collects side observations of a successful run.
type evalReport struct {
	passes     int
	effectRuns []string
	remounts   []remountEvent
	unmounts   []unmountEvent
}

// run executes evaluation passes until the state settles or the pass cap
// is exceeded. It never mutates the instance.
func (in *Instance) run(writes map[string]cty.Value, full bool) (Snapshot, map[int]string, *composition, *evalReport, error) {
	var next Snapshot
	mounted := make(map[int]string)
	var comp *composition
	var err error

	if full {
		next = make(Snapshot)
		comp, err = in.graph.compose(mounted)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	} else {
		next = in.values.Clone()
		for i, tag := range in.mounted {
			mounted[i] = tag
		}
		comp = in.comp
	}

	report := &evalReport{}
	pending := make(map[string]cty.Value, len(writes))
	for k, v := range writes {
		pending[k] = v
	}
	deferred := make(map[string]cty.Value)

	// carryDirty forwards changes from a pass interrupted by a remount, so
	// effects depending on them still see the change in the next pass.
	carryDirty := make(map[string]bool)

	for {
		report.passes++
		if report.passes > in.graph.effectCap {
			return nil, nil, nil, nil, NewCycleError(
				fmt.Sprintf("evaluation did not settle within %d passes; an effect is likely writing its own dependencies", in.graph.effectCap), nil)
		}

		dirty := carryDirty
		carryDirty = make(map[string]bool)
		explicit := make(map[string]bool)

		// Route this pass's writes.
		for _, key := range sortedKeys(pending) {
			raw := pending[key]
			def, active := comp.index[key]
			if !active {
				if in.graph.Declares(key) {
					deferred[key] = raw
					continue
				}
				return nil, nil, nil, nil, NewValidationError(key, "write to undeclared key", nil)
			}
			v, werr := in.applyWrite(def, raw, next)
			if werr != nil {
				return nil, nil, nil, nil, werr
			}
			prev, had := next[key]
			if !had || !v.RawEquals(prev) {
				next[key] = v
				dirty[key] = true
			}
			explicit[key] = true
		}
		pending = make(map[string]cty.Value)

		// Recompute, in topological order, every node missing a value
		// (fresh init or newly mounted) or depending on a dirty key.
		// Keys explicitly written in this pass keep their written value.
		for _, key := range comp.dag.order {
			if explicit[key] {
				continue
			}
			def := comp.index[key]
			_, has := next[key]
			needs := !has
			if !needs {
				for _, dep := range def.Dependencies {
					if dirty[dep] {
						needs = true
						break
					}
				}
			}
			if !needs {
				continue
			}
			v, cerr := in.computeDefault(def, next)
			if cerr != nil {
				return nil, nil, nil, nil, cerr
			}
			prev, had := next[key]
			if !had || !v.RawEquals(prev) {
				next[key] = v
				dirty[key] = true
			}
		}

		// Reconcile branch membership against settled discriminants.
		remounted := false
		for i, br := range in.graph.branches {
			want := ""
			if v, has := next[br.DiscriminantKey]; has {
				if tag, ok := br.TagFor(v); ok {
					want = tag
				}
			}
			cur := mounted[i]
			if want == cur {
				continue
			}
			if cur != "" {
				variant := br.Variants[cur]
				for _, def := range variant.nodes {
					if v, has := next[def.Key]; has {
						delete(next, def.Key)
						dirty[def.Key] = true
						if br.OnUnmount != nil {
							report.unmounts = append(report.unmounts, unmountEvent{key: def.Key, last: v, fn: br.OnUnmount})
						}
					}
				}
			}
			mounted[i] = want
			report.remounts = append(report.remounts, remountEvent{discriminant: br.DiscriminantKey, from: cur, to: want})
			remounted = true
		}
		if remounted {
			comp, err = in.graph.compose(mounted)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			// Seeds held back for now-active nodes get applied in the
			// next pass; newly mounted nodes without seeds pick up their
			// defaults there as well.
			for key, v := range deferred {
				if _, ok := comp.index[key]; ok {
					pending[key] = v
					delete(deferred, key)
				}
			}
			carryDirty = dirty
			continue
		}

		// Run effects whose dependencies changed in this pass; their
		// writes feed the next pass.
		effectWrites := make(map[string]cty.Value)
		for _, eff := range comp.effects {
			triggered := false
			for _, dep := range eff.Dependencies {
				if dirty[dep] {
					triggered = true
					break
				}
			}
			if !triggered {
				continue
			}
			ctx := newContext(next, eff.Dependencies, in.ext)
			if eerr := eff.Run(ctx, func(key string, v cty.Value) {
				effectWrites[key] = v
			}); eerr != nil {
				return nil, nil, nil, nil, fmt.Errorf("effect %q failed: %w", eff.Name, eerr)
			}
			report.effectRuns = append(report.effectRuns, eff.Name)
		}
		if len(effectWrites) == 0 {
			break
		}
		pending = effectWrites
	}

	if len(deferred) > 0 {
		keys := sortedKeys(deferred)
		return nil, nil, nil, nil, NewValidationError(keys[0],
			"write to a node whose branch is not mounted", nil)
	}

	return next, mounted, comp, report, nil
}

// applyWrite validates and normalizes a caller- or effect-written value:
// input schema, then transform, then output coercion. Any failure is a
// validation error carrying the node key.
func (in *Instance) applyWrite(def *NodeDefinition, raw cty.Value, state Snapshot) (cty.Value, error) {
	v := raw
	if def.InputSchema != nil {
		coerced, err := def.InputSchema.Coerce(v)
		if err != nil {
			return cty.NilVal, NewValidationError(def.Key, "input rejected", err)
		}
		v = coerced
	}
	if def.Transform != nil {
		ctx := newContext(state, def.Dependencies, in.ext)
		transformed, err := def.Transform(v, ctx)
		if err != nil {
			return cty.NilVal, NewValidationError(def.Key, "transform failed", err)
		}
		v = transformed
	}
	final, err := def.Schema.Coerce(v)
	if err != nil {
		return cty.NilVal, NewValidationError(def.Key, "value failed output schema", err)
	}
	return final, nil
}

// computeDefault evaluates a node's default and coerces it through the
// output schema. A nil Default yields the schema-typed null, which only
// passes for optional schemas.
func (in *Instance) computeDefault(def *NodeDefinition, state Snapshot) (cty.Value, error) {
	var v cty.Value
	if def.Default != nil {
		ctx := newContext(state, def.Dependencies, in.ext)
		computed, err := def.Default(ctx)
		if err != nil {
			return cty.NilVal, NewValidationError(def.Key, "default computation failed", err)
		}
		v = computed
	} else {
		v = cty.NullVal(def.Schema.Type)
	}
	final, err := def.Schema.Coerce(v)
	if err != nil {
		return cty.NilVal, NewValidationError(def.Key, "computed default failed output schema", err)
	}
	return final, nil
}

// diffKeys returns the sorted keys whose values differ between two
// snapshots, including keys present in only one of them.
func diffKeys(before, after Snapshot) []string {
	var changed []string
	for key, v := range after {
		prev, had := before[key]
		if !had || !v.RawEquals(prev) {
			changed = append(changed, key)
		}
	}
	for key := range before {
		if _, has := after[key]; !has {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

func sortedKeys(m map[string]cty.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
