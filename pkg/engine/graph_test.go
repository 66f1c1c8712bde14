package engine

import (
	"testing"

	"github.com/formgraph/formgraph/pkg/schema"
	"github.com/zclconf/go-cty/cty"
)

func staticDefault(v cty.Value) ComputeFunc {
	return func(*Context) (cty.Value, error) { return v, nil }
}

func TestGraphBuilder_DuplicateKey(t *testing.T) {
	_, err := NewGraphBuilder().
		AddNode(NodeDefinition{Key: "seed", Schema: schema.Number(), Default: staticDefault(cty.NumberIntVal(1))}).
		AddNode(NodeDefinition{Key: "seed", Schema: schema.Number(), Default: staticDefault(cty.NumberIntVal(2))}).
		Build()

	if !IsUnknownNode(err) {
		t.Fatalf("Expected unknown-node error for duplicate key, got: %v", err)
	}
}

func TestGraphBuilder_UndeclaredDependency(t *testing.T) {
	_, err := NewGraphBuilder().
		AddNode(NodeDefinition{
			Key:          "workflow",
			Schema:       schema.String(),
			Dependencies: []string{"ecosystem"},
			Default:      staticDefault(cty.StringVal("default")),
		}).
		Build()

	if !IsUnknownNode(err) {
		t.Fatalf("Expected unknown-node error for undeclared dependency, got: %v", err)
	}
}

func TestGraphBuilder_StaticCycle(t *testing.T) {
	_, err := NewGraphBuilder().
		AddNode(NodeDefinition{Key: "a", Schema: schema.Number().Optional(), Dependencies: []string{"b"}}).
		AddNode(NodeDefinition{Key: "b", Schema: schema.Number().Optional(), Dependencies: []string{"a"}}).
		Build()

	if !IsCycle(err) {
		t.Fatalf("Expected cycle error, got: %v", err)
	}
}

func TestGraphBuilder_SelfDependency(t *testing.T) {
	_, err := NewGraphBuilder().
		AddNode(NodeDefinition{Key: "a", Schema: schema.Number().Optional(), Dependencies: []string{"a"}}).
		Build()

	if !IsCycle(err) {
		t.Fatalf("Expected cycle error for self dependency, got: %v", err)
	}
}

func TestGraphBuilder_MergeCollision(t *testing.T) {
	shared, err := NewGraphBuilder().
		AddNode(NodeDefinition{Key: "seed", Schema: schema.Number(), Default: staticDefault(cty.NumberIntVal(0))}).
		Build()
	if err != nil {
		t.Fatalf("Building shared sub-graph failed: %v", err)
	}

	_, err = NewGraphBuilder().
		AddNode(NodeDefinition{Key: "seed", Schema: schema.Number(), Default: staticDefault(cty.NumberIntVal(1))}).
		Merge(shared).
		Build()

	if !IsUnknownNode(err) {
		t.Fatalf("Expected unknown-node error for merge collision, got: %v", err)
	}
}

func TestGraphBuilder_Merge(t *testing.T) {
	selector, err := NewGraphBuilder().
		AddNode(NodeDefinition{Key: "checkpoint", Schema: schema.Enum("base", "refiner"), Default: staticDefault(cty.StringVal("base"))}).
		Build()
	if err != nil {
		t.Fatalf("Building selector failed: %v", err)
	}

	g, err := NewGraphBuilder().
		AddNode(NodeDefinition{
			Key:          "steps",
			Schema:       schema.NumberRange(1, 100),
			Dependencies: []string{"checkpoint"},
			Default: func(ctx *Context) (cty.Value, error) {
				if ctx.GetString("checkpoint") == "refiner" {
					return cty.NumberIntVal(15), nil
				}
				return cty.NumberIntVal(30), nil
			},
		}).
		Merge(selector).
		Build()
	if err != nil {
		t.Fatalf("Expected merge to succeed, got: %v", err)
	}

	snap, err := g.NewInstance().Init(nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if got := snap["checkpoint"].AsString(); got != "base" {
		t.Errorf("Expected merged node default 'base', got %q", got)
	}
	if !snap["steps"].RawEquals(cty.NumberIntVal(30)) {
		t.Errorf("Expected steps=30, got %#v", snap["steps"])
	}
}

func TestGraphBuilder_EffectUndeclaredDependency(t *testing.T) {
	_, err := NewGraphBuilder().
		AddNode(NodeDefinition{Key: "a", Schema: schema.Number().Optional()}).
		AddEffect(EffectDefinition{
			Name:         "sync",
			Dependencies: []string{"missing"},
			Run:          func(*Context, SetFunc) error { return nil },
		}).
		Build()

	if !IsUnknownNode(err) {
		t.Fatalf("Expected unknown-node error, got: %v", err)
	}
}

func TestGraphBuilder_BranchValidation(t *testing.T) {
	variant, err := NewGraphBuilder().
		AddNode(NodeDefinition{Key: "steps", Schema: schema.Number(), Default: staticDefault(cty.NumberIntVal(20))}).
		Build()
	if err != nil {
		t.Fatalf("Building variant failed: %v", err)
	}

	t.Run("unknown discriminant", func(t *testing.T) {
		_, err := NewGraphBuilder().
			AddBranch(DiscriminatorBranch{
				DiscriminantKey: "mode",
				Variants:        map[string]*Graph{"image": variant},
			}).
			Build()
		if !IsUnknownNode(err) {
			t.Errorf("Expected unknown-node error, got: %v", err)
		}
	})

	t.Run("variant redeclares base key", func(t *testing.T) {
		_, err := NewGraphBuilder().
			AddNode(NodeDefinition{Key: "mode", Schema: schema.Enum("image"), Default: staticDefault(cty.StringVal("image"))}).
			AddNode(NodeDefinition{Key: "steps", Schema: schema.Number(), Default: staticDefault(cty.NumberIntVal(1))}).
			AddBranch(DiscriminatorBranch{
				DiscriminantKey: "mode",
				Variants:        map[string]*Graph{"image": variant},
			}).
			Build()
		if !IsUnknownNode(err) {
			t.Errorf("Expected unknown-node error, got: %v", err)
		}
	})

	t.Run("group names unknown variant", func(t *testing.T) {
		_, err := NewGraphBuilder().
			AddNode(NodeDefinition{Key: "mode", Schema: schema.Enum("image"), Default: staticDefault(cty.StringVal("image"))}).
			AddBranch(DiscriminatorBranch{
				DiscriminantKey: "mode",
				Variants:        map[string]*Graph{"image": variant},
				Groups:          map[string]string{"image": "missing"},
			}).
			Build()
		if !IsUnknownNode(err) {
			t.Errorf("Expected unknown-node error, got: %v", err)
		}
	})

	t.Run("same key in sibling variants is allowed", func(t *testing.T) {
		other, err := NewGraphBuilder().
			AddNode(NodeDefinition{Key: "steps", Schema: schema.Number(), Default: staticDefault(cty.NumberIntVal(50))}).
			Build()
		if err != nil {
			t.Fatalf("Building sibling variant failed: %v", err)
		}
		_, err = NewGraphBuilder().
			AddNode(NodeDefinition{Key: "mode", Schema: schema.Enum("fast", "slow"), Default: staticDefault(cty.StringVal("fast"))}).
			AddBranch(DiscriminatorBranch{
				DiscriminantKey: "mode",
				Variants:        map[string]*Graph{"fast": variant, "slow": other},
			}).
			Build()
		if err != nil {
			t.Errorf("Expected sibling variants to share a key, got: %v", err)
		}
	})
}
