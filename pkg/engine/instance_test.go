package engine

import (
	"fmt"
	"testing"

	"github.com/formgraph/formgraph/pkg/schema"
	"github.com/zclconf/go-cty/cty"
)

// ecosystemGraph is the recurring test fixture: an enum selector and a
// workflow whose valid values follow it.
func ecosystemGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraphBuilder().
		AddNode(NodeDefinition{
			Key:     "ecosystem",
			Schema:  schema.Enum("A", "B"),
			Default: staticDefault(cty.StringVal("A")),
		}).
		AddNode(NodeDefinition{
			Key:          "workflow",
			Schema:       schema.String(),
			Dependencies: []string{"ecosystem"},
			Default: func(ctx *Context) (cty.Value, error) {
				return cty.StringVal("txt2img-" + ctx.GetString("ecosystem")), nil
			},
		}).
		AddNode(NodeDefinition{
			Key:     "steps",
			Schema:  schema.NumberRange(1, 100),
			Default: staticDefault(cty.NumberIntVal(30)),
		}).
		Build()
	if err != nil {
		t.Fatalf("Building fixture graph failed: %v", err)
	}
	return g
}

func TestInit_ComputesDefaults(t *testing.T) {
	snap, err := ecosystemGraph(t).NewInstance().Init(nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if got := snap["ecosystem"].AsString(); got != "A" {
		t.Errorf("Expected ecosystem 'A', got %q", got)
	}
	if got := snap["workflow"].AsString(); got != "txt2img-A" {
		t.Errorf("Expected workflow 'txt2img-A', got %q", got)
	}
	if !snap["steps"].RawEquals(cty.NumberIntVal(30)) {
		t.Errorf("Expected steps=30, got %#v", snap["steps"])
	}
}

func TestInit_SeedOverridesDefaults(t *testing.T) {
	snap, err := ecosystemGraph(t).NewInstance().Init(map[string]cty.Value{
		"ecosystem": cty.StringVal("B"),
		"steps":     cty.NumberIntVal(50),
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if got := snap["ecosystem"].AsString(); got != "B" {
		t.Errorf("Expected seeded ecosystem 'B', got %q", got)
	}
	// Unseeded dependents compute from the seeded value, never a default.
	if got := snap["workflow"].AsString(); got != "txt2img-B" {
		t.Errorf("Expected workflow 'txt2img-B', got %q", got)
	}
	if !snap["steps"].RawEquals(cty.NumberIntVal(50)) {
		t.Errorf("Expected seeded steps=50, got %#v", snap["steps"])
	}
}

func TestSet_RecomputesTransitiveDependents(t *testing.T) {
	in := ecosystemGraph(t).NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	snap, err := in.Set(map[string]cty.Value{"ecosystem": cty.StringVal("B")})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if got := snap["workflow"].AsString(); got != "txt2img-B" {
		t.Errorf("Workflow retained a value only valid under A: %q", got)
	}
	// An unrelated node is untouched.
	if !snap["steps"].RawEquals(cty.NumberIntVal(30)) {
		t.Errorf("Expected steps unchanged, got %#v", snap["steps"])
	}
}

func TestSet_ValidationFailureRollsBackEverything(t *testing.T) {
	in := ecosystemGraph(t).NewInstance()
	before, err := in.Init(nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, err = in.Set(map[string]cty.Value{
		"steps":     cty.NumberIntVal(10), // valid on its own
		"ecosystem": cty.StringVal("C"),   // not in the enum
	})
	if !IsValidation(err) {
		t.Fatalf("Expected validation error, got: %v", err)
	}

	after := in.Snapshot()
	for _, key := range before.Keys() {
		if !after[key].RawEquals(before[key]) {
			t.Errorf("Node %q changed despite rollback: %#v -> %#v", key, before[key], after[key])
		}
	}
}

func TestSet_UndeclaredKey(t *testing.T) {
	in := ecosystemGraph(t).NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if _, err := in.Set(map[string]cty.Value{"nope": cty.True}); !IsValidation(err) {
		t.Fatalf("Expected validation error for undeclared key, got: %v", err)
	}
}

func TestSet_BeforeInit(t *testing.T) {
	in := ecosystemGraph(t).NewInstance()
	if _, err := in.Set(map[string]cty.Value{"steps": cty.NumberIntVal(1)}); err == nil {
		t.Fatal("Expected error for Set before Init, got nil")
	}
}

func TestSet_Idempotence(t *testing.T) {
	in := ecosystemGraph(t).NewInstance()
	snap, err := in.Init(nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	fired := 0
	in.Subscribe(Wildcard, func(Snapshot, []string) { fired++ })

	again, err := in.Set(snap)
	if err != nil {
		t.Fatalf("Set of current snapshot failed: %v", err)
	}

	if len(again) != len(snap) {
		t.Errorf("Snapshot size changed: %d -> %d", len(snap), len(again))
	}
	for _, key := range snap.Keys() {
		if !again[key].RawEquals(snap[key]) {
			t.Errorf("Node %q changed: %#v -> %#v", key, snap[key], again[key])
		}
	}
	if fired != 0 {
		t.Errorf("Expected no subscriber callbacks, got %d", fired)
	}
}

func TestReset_RestoresDefaults(t *testing.T) {
	in := ecosystemGraph(t).NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := in.Set(map[string]cty.Value{
		"ecosystem": cty.StringVal("B"),
		"steps":     cty.NumberIntVal(77),
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	snap, err := in.Reset(nil)
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if got := snap["ecosystem"].AsString(); got != "A" {
		t.Errorf("Expected ecosystem reset to 'A', got %q", got)
	}
	if !snap["steps"].RawEquals(cty.NumberIntVal(30)) {
		t.Errorf("Expected steps reset to 30, got %#v", snap["steps"])
	}
}

func TestReset_Exclude(t *testing.T) {
	in := ecosystemGraph(t).NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := in.Set(map[string]cty.Value{
		"ecosystem": cty.StringVal("B"),
		"steps":     cty.NumberIntVal(77),
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	snap, err := in.Reset(&ResetOptions{Exclude: []string{"steps"}})
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if !snap["steps"].RawEquals(cty.NumberIntVal(77)) {
		t.Errorf("Expected excluded steps=77, got %#v", snap["steps"])
	}
	if got := snap["ecosystem"].AsString(); got != "A" {
		t.Errorf("Expected non-excluded ecosystem reset to 'A', got %q", got)
	}
}

func TestTransform_NormalizesWrites(t *testing.T) {
	g, err := NewGraphBuilder().
		AddNode(NodeDefinition{
			Key:     "steps",
			Schema:  schema.NumberRange(1, 100),
			Default: staticDefault(cty.NumberIntVal(30)),
			Transform: func(v cty.Value, _ *Context) (cty.Value, error) {
				// Clamp instead of rejecting.
				f, _ := v.AsBigFloat().Float64()
				if f > 100 {
					return cty.NumberIntVal(100), nil
				}
				if f < 1 {
					return cty.NumberIntVal(1), nil
				}
				return v, nil
			},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	in := g.NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	snap, err := in.Set(map[string]cty.Value{"steps": cty.NumberIntVal(500)})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !snap["steps"].RawEquals(cty.NumberIntVal(100)) {
		t.Errorf("Expected clamped value 100, got %#v", snap["steps"])
	}
}

func TestSubscribe_PerKeyAndWildcard(t *testing.T) {
	in := ecosystemGraph(t).NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var order []string
	in.Subscribe("workflow", func(_ Snapshot, changed []string) {
		order = append(order, "workflow")
		if len(changed) == 0 {
			t.Error("Listener received empty changed set")
		}
	})
	in.Subscribe("steps", func(Snapshot, []string) {
		order = append(order, "steps")
	})
	in.Subscribe(Wildcard, func(Snapshot, []string) {
		order = append(order, "*")
	})

	if _, err := in.Set(map[string]cty.Value{"ecosystem": cty.StringVal("B")}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// ecosystem and workflow changed; steps did not. Registration order
	// is preserved.
	want := []string{"workflow", "*"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("Expected listener order %v, got %v", want, order)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	in := ecosystemGraph(t).NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	fired := 0
	cancel := in.Subscribe(Wildcard, func(Snapshot, []string) { fired++ })
	cancel()

	if _, err := in.Set(map[string]cty.Value{"ecosystem": cty.StringVal("B")}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if fired != 0 {
		t.Errorf("Expected no callbacks after unsubscribe, got %d", fired)
	}
}

func TestSubscribe_ReentrantSetFails(t *testing.T) {
	in := ecosystemGraph(t).NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var reentrant error
	in.Subscribe(Wildcard, func(Snapshot, []string) {
		_, reentrant = in.Set(map[string]cty.Value{"steps": cty.NumberIntVal(10)})
	})

	if _, err := in.Set(map[string]cty.Value{"ecosystem": cty.StringVal("B")}); err != nil {
		t.Fatalf("Outer Set failed: %v", err)
	}
	if !IsReentrancy(reentrant) {
		t.Fatalf("Expected reentrancy error from inner Set, got: %v", reentrant)
	}
}

func TestExternalContext_VisibleToDefaults(t *testing.T) {
	type quota struct{ MaxSteps int64 }

	g, err := NewGraphBuilder().
		AddNode(NodeDefinition{
			Key:    "steps",
			Schema: schema.NumberRange(1, 1000),
			Default: func(ctx *Context) (cty.Value, error) {
				q, ok := ctx.External().(quota)
				if !ok {
					return cty.NumberIntVal(30), nil
				}
				return cty.NumberIntVal(q.MaxSteps), nil
			},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	in := g.NewInstance(WithExternal(quota{MaxSteps: 12}))
	snap, err := in.Init(nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !snap["steps"].RawEquals(cty.NumberIntVal(12)) {
		t.Errorf("Expected quota-derived default 12, got %#v", snap["steps"])
	}

	// Changed environment applies on the next reset.
	in.SetExternal(quota{MaxSteps: 40})
	snap, err = in.Reset(nil)
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if !snap["steps"].RawEquals(cty.NumberIntVal(40)) {
		t.Errorf("Expected refreshed default 40, got %#v", snap["steps"])
	}
}

func TestContext_UndeclaredReadIsInvisible(t *testing.T) {
	g, err := NewGraphBuilder().
		AddNode(NodeDefinition{Key: "hidden", Schema: schema.Number(), Default: staticDefault(cty.NumberIntVal(9))}).
		AddNode(NodeDefinition{
			Key:    "probe",
			Schema: schema.Bool(),
			Default: func(ctx *Context) (cty.Value, error) {
				_, visible := ctx.Get("hidden")
				return cty.BoolVal(visible), nil
			},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	snap, err := g.NewInstance().Init(nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if snap["probe"].True() {
		t.Error("Expected undeclared dependency to be invisible through Context")
	}
}
