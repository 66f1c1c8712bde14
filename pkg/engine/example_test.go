package engine_test

import (
	"fmt"

	"github.com/formgraph/formgraph/pkg/engine"
	"github.com/formgraph/formgraph/pkg/schema"
	"github.com/zclconf/go-cty/cty"
)

// Example_form demonstrates a small generation form: a model family
// selector, a dependent workflow, and a sampler sub-graph mounted only for
// image workflows.
func Example_form() {
	// 1. Author the image-only parameters as their own sub-graph.
	imageParams, _ := engine.NewGraphBuilder().
		AddNode(engine.NodeDefinition{
			Key:    "steps",
			Schema: schema.NumberRange(1, 100),
			Default: func(*engine.Context) (cty.Value, error) {
				return cty.NumberIntVal(30), nil
			},
		}).
		Build()

	// 2. Compose the full form.
	graph, err := engine.NewGraphBuilder().
		AddNode(engine.NodeDefinition{
			Key:    "family",
			Schema: schema.Enum("sd", "video"),
			Default: func(*engine.Context) (cty.Value, error) {
				return cty.StringVal("sd"), nil
			},
		}).
		AddNode(engine.NodeDefinition{
			Key:          "workflow",
			Schema:       schema.String(),
			Dependencies: []string{"family"},
			Default: func(ctx *engine.Context) (cty.Value, error) {
				return cty.StringVal(ctx.GetString("family") + "-default"), nil
			},
		}).
		AddBranch(engine.DiscriminatorBranch{
			DiscriminantKey: "family",
			Variants:        map[string]*engine.Graph{"sd": imageParams},
		}).
		Build()
	if err != nil {
		fmt.Println("build failed:", err)
		return
	}

	// 3. Drive an instance and observe settled snapshots.
	inst := graph.NewInstance()
	inst.Subscribe("workflow", func(s engine.Snapshot, _ []string) {
		fmt.Println("workflow ->", s["workflow"].AsString())
	})

	if _, err := inst.Init(nil); err != nil {
		fmt.Println("init failed:", err)
		return
	}

	snap, _ := inst.Set(map[string]cty.Value{"family": cty.StringVal("video")})
	_, mounted := snap.Get("steps")
	fmt.Println("steps mounted:", mounted)

	// Output:
	// workflow -> sd-default
	// workflow -> video-default
	// steps mounted: false
}
