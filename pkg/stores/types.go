package stores

import (
	"context"
	"time"
)

// Scope addresses a slice of persisted node values inside a session.
// Branch is empty for base graph nodes; for variant nodes it is the
// branch label, "<discriminant>/<tag>", so that values written under one
// variant survive while another variant is mounted.
type Scope struct {
	SessionID string
	Branch    string
}

// Session is one persisted form instance.
type Session struct {
	ID        string    `json:"id"`
	GraphName string    `json:"graph_name"`
	Metadata  string    `json:"metadata"` // JSON blob
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValueRecord is one persisted node value.
type ValueRecord struct {
	SessionID string    `json:"session_id"`
	Branch    string    `json:"branch"`
	Key       string    `json:"key"`
	Value     string    `json:"value"` // JSON-encoded node value
	UpdatedAt time.Time `json:"updated_at"`
}

// EventKind classifies a session event.
type EventKind string

const (
	EventKindSettled EventKind = "settled"
	EventKindRemount EventKind = "remount"
	EventKindReset   EventKind = "reset"
)

// Event is one entry of a session's evaluation log.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	Details   string    `json:"details"` // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// Store persists form sessions, their node values, and their event log.
type Store interface {
	// Init initializes the backing storage.
	Init(ctx context.Context) error

	// Migrate brings the storage schema up to date.
	Migrate(ctx context.Context) error

	// Close releases the backing storage.
	Close() error

	// HealthCheck verifies the storage is reachable.
	HealthCheck(ctx context.Context) error

	// CreateSession creates a new session record.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions lists sessions, most recently updated first.
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)

	// DeleteSession deletes a session and all its values and events.
	DeleteSession(ctx context.Context, id string) error

	// PutValues upserts a batch of node values under one scope. The batch
	// is written atomically.
	PutValues(ctx context.Context, scope Scope, values map[string]string) error

	// GetValues retrieves all node values under one scope.
	GetValues(ctx context.Context, scope Scope) (map[string]string, error)

	// ListValues retrieves every value record of a session, across all
	// scopes.
	ListValues(ctx context.Context, sessionID string) ([]*ValueRecord, error)

	// DeleteValues removes all node values under one scope.
	DeleteValues(ctx context.Context, scope Scope) error

	// AppendEvent appends an event to a session's log, filling in the
	// generated ID.
	AppendEvent(ctx context.Context, event *Event) error

	// ListEvents lists a session's events, newest first.
	ListEvents(ctx context.Context, sessionID string, limit, offset int) ([]*Event, error)
}
