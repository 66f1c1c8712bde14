// Package engine implements a reactive parameter-dependency graph runtime
// for dynamic, multi-variant configuration forms.
//
// A Graph is an immutable template: an ordered registry of node definitions,
// discriminator branches, and effects, validated at build time. A Graph
// produces mutable Instances; an Instance is driven through Init, Set, and
// Reset, each of which runs a full synchronous evaluation and returns a
// settled Snapshot.
//
// Evaluation is transactional. Writes are applied to a scratch state,
// transitive dependents are recomputed in topological order, discriminator
// branches are remounted if their discriminant changed, and effects run
// until the state is stable or the cascade cap is exceeded. Any failure
// discards the scratch state; the prior snapshot is never partially
// modified.
//
// The engine performs no I/O and holds no locks. An Instance has a single
// logical owner; concurrent callers must serialize access themselves.
package engine
