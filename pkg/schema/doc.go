// Package schema defines the typed value model used by the graph runtime.
//
// Node values are cty values (github.com/zclconf/go-cty); a Schema pairs a
// cty type with optional constraints (enumerations, numeric bounds, string
// patterns). Schemas are used in two places: as the output contract a node
// value must satisfy before it enters a snapshot, and optionally as an input
// contract applied to caller-written raw values before coercion.
//
// Coercion follows cty's standard conversion rules, so a caller may write
// "42" into a number-typed node and receive cty.NumberIntVal(42) back from
// the snapshot.
package schema
