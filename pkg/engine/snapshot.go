package engine

import (
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// Wildcard subscribes a listener to every key.
const Wildcard = "*"

// Snapshot is the fully resolved, currently valid state: one value per
// node reachable through the currently mounted branches. Snapshots handed
// out by an Instance are copies; mutating one has no effect on the
// instance.
type Snapshot map[string]cty.Value

// Get returns the value for key. The second return is false when the key
// has no value, which includes nodes whose owning branch is not mounted.
func (s Snapshot) Get(key string) (cty.Value, bool) {
	v, ok := s[key]
	return v, ok
}

// Keys returns the snapshot's keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Listener is invoked after an evaluation settles. It receives the settled
// snapshot and the keys that changed, in sorted order. Listeners must not
// synchronously drive the same Instance; doing so raises a reentrancy
// error from the re-entered call.
type Listener func(s Snapshot, changed []string)

type subscription struct {
	id  int
	key string
	fn  Listener
}

// Subscribe registers a listener for a single key, or for any change when
// key is Wildcard. Listeners fire in registration order, once per settled
// evaluation in which their key changed. The returned function removes
// the subscription.
func (in *Instance) Subscribe(key string, fn Listener) func() {
	in.subSeq++
	sub := subscription{id: in.subSeq, key: key, fn: fn}
	in.subs = append(in.subs, sub)
	id := sub.id
	return func() {
		for i, s := range in.subs {
			if s.id == id {
				in.subs = append(in.subs[:i], in.subs[i+1:]...)
				return
			}
		}
	}
}

// notify fires listeners for the given changed keys. The notifying flag is
// held for the duration so re-entrant Set/Init/Reset calls fail fast.
func (in *Instance) notify(snap Snapshot, changed []string) {
	if len(changed) == 0 {
		return
	}
	changedSet := make(map[string]struct{}, len(changed))
	for _, k := range changed {
		changedSet[k] = struct{}{}
	}

	in.notifying = true
	defer func() { in.notifying = false }()

	// Iterate over a copy: a listener may unsubscribe itself or others.
	subs := make([]subscription, len(in.subs))
	copy(subs, in.subs)
	for _, sub := range subs {
		if sub.key == Wildcard {
			sub.fn(snap.Clone(), changed)
			continue
		}
		if _, ok := changedSet[sub.key]; ok {
			sub.fn(snap.Clone(), changed)
		}
	}
}
