package config

import (
	"context"
	"testing"

	"github.com/zclconf/go-cty/cty"

	"github.com/formgraph/formgraph/pkg/engine"
)

const renderFormDoc = `
graph: {
	name: "render-form"
	nodes: [
		{key: "family", type: "string", enum: ["sd", "flux", "video"], default: "\"sd\""},
		{key: "quality", type: "number", min: 1, max: 10, default: "5", transform: "min(max(value, 1), 10)"},
	]
	branches: [{
		discriminant: "family"
		groups: {sd: "image", flux: "image"}
		variants: {
			image: {nodes: [
				{key: "steps", type: "number", depends_on: ["quality"], default: "quality * 4"},
			]}
			video: {nodes: [
				{key: "frames", type: "number", default: "16"},
			]}
		}
	}]
	effects: [{
		name: "video-quality-floor"
		depends_on: ["family"]
		set: {quality: "8 if family == \"video\" else None"}
	}]
}
`

func mustNumber(t *testing.T, snap engine.Snapshot, key string) int64 {
	t.Helper()
	v, ok := snap.Get(key)
	if !ok {
		t.Fatalf("key %q missing from snapshot", key)
	}
	n, _ := v.AsBigFloat().Int64()
	return n
}

func TestParseAndBuildRenderForm(t *testing.T) {
	p := NewParser()

	result, err := p.Parse(context.Background(), "render.cue", []byte(renderFormDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", result.Errors)
	}
	if result.Definition.Name != "render-form" {
		t.Errorf("expected name %q, got %q", "render-form", result.Definition.Name)
	}

	g, err := p.BuildGraph(result.Definition)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	in := g.NewInstance()
	snap, err := in.Init(nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if v, _ := snap.Get("family"); v.AsString() != "sd" {
		t.Errorf("expected family sd, got %v", v)
	}
	if got := mustNumber(t, snap, "quality"); got != 5 {
		t.Errorf("expected quality 5, got %d", got)
	}
	if got := mustNumber(t, snap, "steps"); got != 20 {
		t.Errorf("expected steps 20, got %d", got)
	}
	if _, ok := snap.Get("frames"); ok {
		t.Error("frames should not be mounted for the image variant")
	}
}

func TestDefaultsRecomputeThroughStarlark(t *testing.T) {
	p := NewParser()
	g := mustBuild(t, p, renderFormDoc)

	in := g.NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	snap, err := in.Set(map[string]cty.Value{"quality": cty.NumberIntVal(3)})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := mustNumber(t, snap, "steps"); got != 12 {
		t.Errorf("expected steps to follow quality, got %d", got)
	}
}

func TestTransformClampsWrites(t *testing.T) {
	p := NewParser()
	g := mustBuild(t, p, renderFormDoc)

	in := g.NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	snap, err := in.Set(map[string]cty.Value{"quality": cty.NumberIntVal(50)})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := mustNumber(t, snap, "quality"); got != 10 {
		t.Errorf("expected quality clamped to 10, got %d", got)
	}
}

func TestEffectAndRemountFromDefinition(t *testing.T) {
	p := NewParser()
	g := mustBuild(t, p, renderFormDoc)

	in := g.NewInstance()
	if _, err := in.Init(nil); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	snap, err := in.Set(map[string]cty.Value{"family": cty.StringVal("video")})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := mustNumber(t, snap, "frames"); got != 16 {
		t.Errorf("expected frames 16, got %d", got)
	}
	if got := mustNumber(t, snap, "quality"); got != 8 {
		t.Errorf("expected effect to raise quality to 8, got %d", got)
	}
	if _, ok := snap.Get("steps"); ok {
		t.Error("steps should be unmounted for the video variant")
	}
}

func mustBuild(t *testing.T, p *Parser, doc string) *engine.Graph {
	t.Helper()
	result, err := p.Parse(context.Background(), "test.cue", []byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", result.Errors)
	}
	g, err := p.BuildGraph(result.Definition)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	return g
}

func TestParseRejectsMissingGraphField(t *testing.T) {
	p := NewParser()

	result, err := p.Parse(context.Background(), "bad.cue", []byte(`other: {name: "x"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected validation errors for missing graph field")
	}
}

func TestParseRejectsUnknownNodeType(t *testing.T) {
	p := NewParser()

	doc := `graph: {name: "x", nodes: [{key: "a", type: "decimal"}]}`
	result, err := p.Parse(context.Background(), "bad.cue", []byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected schema error for unknown node type")
	}
}

func TestParseRejectsMalformedSource(t *testing.T) {
	p := NewParser()

	if _, err := p.Parse(context.Background(), "bad.cue", []byte(`graph: {`)); err == nil {
		t.Fatal("expected compile error for malformed source")
	}
}

func TestBuildGraphRejectsBadConstraints(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		def  Definition
	}{
		{
			name: "enum on number",
			def: Definition{Name: "x", Nodes: []NodeSpec{
				{Key: "a", Type: "number", Enum: []string{"one"}},
			}},
		},
		{
			name: "min on string",
			def: Definition{Name: "x", Nodes: []NodeSpec{
				{Key: "a", Type: "string", Min: float64Ptr(1)},
			}},
		},
		{
			name: "invalid pattern",
			def: Definition{Name: "x", Nodes: []NodeSpec{
				{Key: "a", Type: "string", Pattern: "["},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.BuildGraph(&tt.def); err == nil {
				t.Error("expected build error")
			}
		})
	}
}

func float64Ptr(f float64) *float64 { return &f }
