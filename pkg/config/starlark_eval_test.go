package config

import (
	"strings"
	"testing"

	"github.com/zclconf/go-cty/cty"
)

func TestEvalSimpleExpression(t *testing.T) {
	ev := NewExprEvaluator(0)

	v, err := ev.Eval("test", `steps * 2`, map[string]cty.Value{
		"steps": cty.NumberIntVal(15),
	}, nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	n, _ := v.AsBigFloat().Int64()
	if n != 30 {
		t.Errorf("expected 30, got %d", n)
	}
}

func TestEvalConditional(t *testing.T) {
	ev := NewExprEvaluator(0)

	v, err := ev.Eval("test", `"high" if quality > 7 else "low"`, map[string]cty.Value{
		"quality": cty.NumberIntVal(9),
	}, nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if v.AsString() != "high" {
		t.Errorf("expected %q, got %q", "high", v.AsString())
	}
}

func TestEvalExternalContext(t *testing.T) {
	ev := NewExprEvaluator(0)

	v, err := ev.Eval("test", `ext["tier"]`, nil, map[string]interface{}{
		"tier": "pro",
	})
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if v.AsString() != "pro" {
		t.Errorf("expected %q, got %q", "pro", v.AsString())
	}
}

func TestEvalNoneBecomesNull(t *testing.T) {
	ev := NewExprEvaluator(0)

	v, err := ev.Eval("test", `None`, nil, nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if !v.IsNull() {
		t.Errorf("expected null result, got %#v", v)
	}
}

func TestEvalUndefinedVariable(t *testing.T) {
	ev := NewExprEvaluator(0)

	_, err := ev.Eval("test", `missing + 1`, nil, nil)
	if err == nil {
		t.Fatal("expected error for undefined variable")
	}
}

func TestEvalStepLimit(t *testing.T) {
	ev := NewExprEvaluator(100)

	_, err := ev.Eval("test", `len([x for x in range(100000)])`, nil, nil)
	if err == nil {
		t.Fatal("expected step limit to abort evaluation")
	}
	if !strings.Contains(err.Error(), "test") {
		t.Errorf("error should name the expression, got: %v", err)
	}
}

func TestEvalListAndDict(t *testing.T) {
	ev := NewExprEvaluator(0)

	v, err := ev.Eval("test", `{"sizes": [512, 768]}`, nil, nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if !v.Type().IsObjectType() {
		t.Fatalf("expected object result, got %v", v.Type().FriendlyName())
	}
	sizes := v.GetAttr("sizes")
	if sizes.LengthInt() != 2 {
		t.Errorf("expected 2 sizes, got %d", sizes.LengthInt())
	}
}
