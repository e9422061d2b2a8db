package session

import (
	"context"
	"sync"
	"time"
)

// Session is one realtime connection session as reported by the gateway.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Topics    []string  `json:"topics"`
}

// Store persists the realtime session and its subscribed topics.
type Store interface {
	// SaveSession records a session. Saving a session with an ID that was
	// already recorded overwrites the earlier record.
	SaveSession(ctx context.Context, s Session) error

	// LastSession returns the most recently started session. The bool is
	// false when no session has been recorded.
	LastSession(ctx context.Context) (Session, bool, error)

	// SaveTopics records the current subscribed topic set.
	SaveTopics(ctx context.Context, topics []string) error

	// LoadTopics returns the recorded topic set, or nil when none was saved.
	LoadTopics(ctx context.Context) ([]string, error)
}

// MemoryStore keeps session state in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	last     string
	topics   []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
	}
}

// SaveSession records a session.
func (m *MemoryStore) SaveSession(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = s
	if m.last == "" || !s.StartedAt.Before(m.sessions[m.last].StartedAt) {
		m.last = s.ID
	}
	return nil
}

// LastSession returns the most recently started session.
func (m *MemoryStore) LastSession(ctx context.Context) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last == "" {
		return Session{}, false, nil
	}
	return m.sessions[m.last], true, nil
}

// SaveTopics records the current topic set.
func (m *MemoryStore) SaveTopics(ctx context.Context, topics []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topics = append([]string(nil), topics...)
	return nil
}

// LoadTopics returns the recorded topic set.
func (m *MemoryStore) LoadTopics(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.topics == nil {
		return nil, nil
	}
	return append([]string(nil), m.topics...), nil
}
