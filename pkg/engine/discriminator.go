package engine

import (
	"github.com/zclconf/go-cty/cty"
)

// UnmountFunc is notified once per removed key when a variant is
// unmounted, with the last value the key held. Owning code uses this to
// release external resources tied to a field (see HandleRegistry).
type UnmountFunc func(key string, last cty.Value)

// DiscriminatorBranch selects one of several mutually exclusive sub-graphs
// based on the resolved value of a computed discriminant node. The
// discriminant is an ordinary node of the parent graph, subject to normal
// dependency resolution; the branch only reacts to its settled value.
type DiscriminatorBranch struct {
	// DiscriminantKey names the node whose value selects the variant.
	DiscriminantKey string

	// Variants maps a variant tag to the sub-graph mounted for that tag.
	// A discriminant value with no matching tag (and no group mapping)
	// mounts nothing; the branch's nodes are simply absent from the
	// snapshot, which is a documented non-error condition.
	Variants map[string]*Graph

	// Groups maps individual discriminant values to a shared variant tag,
	// declaring an equivalence class. Moving between two values of the
	// same class does not remount the variant.
	Groups map[string]string

	// OnUnmount, when set, is called after a settled evaluation for every
	// key removed by an unmount, in the variant's declaration order.
	OnUnmount UnmountFunc
}

// TagFor resolves a discriminant value to a variant tag. The second return
// is false when the value selects no variant (null, unknown, non-string
// without a group mapping, or simply unmatched).
func (b *DiscriminatorBranch) TagFor(v cty.Value) (string, bool) {
	if v.IsNull() || !v.IsKnown() {
		return "", false
	}
	if !v.Type().Equals(cty.String) {
		return "", false
	}
	raw := v.AsString()
	if tag, ok := b.Groups[raw]; ok {
		return tag, true
	}
	if _, ok := b.Variants[raw]; ok {
		return raw, true
	}
	return "", false
}
