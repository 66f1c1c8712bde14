// Package config parses declarative graph definitions written in CUE and
// compiles them into engine graphs.
//
// A definition document describes nodes, effects, and discriminator
// branches under a top-level "graph" field. Documents are validated
// against a CUE schema before decoding, then struct-validated. Default,
// transform, and effect bodies are Starlark expressions evaluated with
// the node's declared dependencies bound as variables, plus "ext" for
// the instance's external context and, for transforms, "value" for the
// incoming write.
package config
