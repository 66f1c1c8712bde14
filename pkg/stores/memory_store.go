package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements the Store interface in memory. It is used by
// tests and by the dev command, where persistence across restarts is not
// wanted.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	values   map[Scope]map[string]string
	events   map[string][]*Event
	eventSeq int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*Session{},
		values:   map[Scope]map[string]string{},
		events:   map[string][]*Event{},
	}
}

func (s *MemoryStore) Init(_ context.Context) error    { return nil }
func (s *MemoryStore) Migrate(_ context.Context) error { return nil }
func (s *MemoryStore) Close() error                    { return nil }

func (s *MemoryStore) HealthCheck(_ context.Context) error { return nil }

func (s *MemoryStore) CreateSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session already exists: %s", session.ID)
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, limit, offset int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	if offset >= len(all) {
		return []*Session{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	delete(s.sessions, id)
	for scope := range s.values {
		if scope.SessionID == id {
			delete(s.values, scope)
		}
	}
	delete(s.events, id)
	return nil
}

func (s *MemoryStore) PutValues(_ context.Context, scope Scope, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.values[scope]
	if !ok {
		bucket = map[string]string{}
		s.values[scope] = bucket
	}
	for key, value := range values {
		bucket[key] = value
	}
	if session, ok := s.sessions[scope.SessionID]; ok {
		session.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) GetValues(_ context.Context, scope Scope) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := map[string]string{}
	for key, value := range s.values[scope] {
		out[key] = value
	}
	return out, nil
}

func (s *MemoryStore) ListValues(_ context.Context, sessionID string) ([]*ValueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := []*ValueRecord{}
	for scope, bucket := range s.values {
		if scope.SessionID != sessionID {
			continue
		}
		for key, value := range bucket {
			records = append(records, &ValueRecord{
				SessionID: sessionID,
				Branch:    scope.Branch,
				Key:       key,
				Value:     value,
			})
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Branch != records[j].Branch {
			return records[i].Branch < records[j].Branch
		}
		return records[i].Key < records[j].Key
	})
	return records, nil
}

func (s *MemoryStore) DeleteValues(_ context.Context, scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, scope)
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eventSeq++
	event.ID = s.eventSeq
	copied := *event
	s.events[event.SessionID] = append(s.events[event.SessionID], &copied)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, sessionID string, limit, offset int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.events[sessionID]
	out := make([]*Event, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		copied := *log[i]
		out = append(out, &copied)
	}

	if offset >= len(out) {
		return []*Event{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
