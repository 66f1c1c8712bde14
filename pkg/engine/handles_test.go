package engine

import "testing"

func TestHandleRegistry_ReleaseOnLastHandle(t *testing.T) {
	var released []string
	r := NewHandleRegistry(func(id string) {
		released = append(released, id)
	})

	h1 := r.Register("checkpoint:sd-xl")
	h2 := r.Register("checkpoint:sd-xl")

	if got := r.Count("checkpoint:sd-xl"); got != 2 {
		t.Fatalf("Expected count 2, got %d", got)
	}

	if err := h1.Release(); err != nil {
		t.Fatalf("First release failed: %v", err)
	}
	if len(released) != 0 {
		t.Fatalf("Release callback fired before last handle: %v", released)
	}

	if err := h2.Release(); err != nil {
		t.Fatalf("Second release failed: %v", err)
	}
	if len(released) != 1 || released[0] != "checkpoint:sd-xl" {
		t.Errorf("Expected one release of 'checkpoint:sd-xl', got %v", released)
	}
}

func TestHandle_DoubleReleaseFails(t *testing.T) {
	r := NewHandleRegistry(nil)
	h := r.Register("lora:detail")

	if err := h.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := h.Release(); err == nil {
		t.Fatal("Expected error on double release, got nil")
	}
}

func TestHandleRegistry_IndependentIDs(t *testing.T) {
	var released []string
	r := NewHandleRegistry(func(id string) {
		released = append(released, id)
	})

	a := r.Register("a")
	b := r.Register("b")

	if err := a.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if len(released) != 1 || released[0] != "a" {
		t.Fatalf("Expected only 'a' released, got %v", released)
	}
	if got := r.Count("b"); got != 1 {
		t.Errorf("Expected count 1 for 'b', got %d", got)
	}
	if err := b.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
}
