// Package stores provides persistence for form sessions.
//
// The Store interface abstracts session records, node values, and a
// session event log behind scoped key-value operations. SQLiteStore is
// the durable implementation (WAL mode, embedded migrations);
// MemoryStore backs tests and the dev command.
//
// Persister connects a Store to a running engine.Instance: it mirrors
// settled snapshots into the store as they happen and rebuilds the seed
// for Init when a session is reopened. Values written under a variant
// are stored under that variant's scope, so switching a discriminator
// away and back across sessions restores what the user had entered.
package stores
