package lastfm

import (
	"context"
	"encoding/json"
	"sync"
)

// Credentials is the persisted authentication state of one label.
//
// At most one of Token and SessionID is meaningful at a time: trading the
// token for a session clears the token.
type Credentials struct {
	Token       string `json:"token,omitempty"`
	SessionID   string `json:"sessionID,omitempty"`
	SessionName string `json:"sessionName,omitempty"`
}

// Session is a long-lived credential used to sign scrobble calls.
type Session struct {
	ID   string // Session key
	Name string // User name the session belongs to
}

// DocumentStore is a JSON document scoped to one namespace.
//
// Get on an empty namespace leaves v untouched and returns nil. Update must
// read the document into v, call fn and write v back as one transaction;
// if fn returns an error nothing is written.
type DocumentStore interface {
	Get(ctx context.Context, v any) error
	Set(ctx context.Context, v any) error
	Update(ctx context.Context, v any, fn func() error) error
}

// MemoryStore is an in-process DocumentStore.
//
// Documents are kept JSON-encoded so that callers get the same copy
// semantics as with a persistent store.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get decodes the stored document into v.
func (m *MemoryStore) Get(_ context.Context, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(v)
}

// Set replaces the stored document with v.
func (m *MemoryStore) Set(_ context.Context, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set(v)
}

// Update reads, mutates and writes the document while holding the lock.
func (m *MemoryStore) Update(_ context.Context, v any, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.get(v); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return m.set(v)
}

func (m *MemoryStore) get(v any) error {
	if len(m.data) == 0 {
		return nil
	}
	return json.Unmarshal(m.data, v)
}

func (m *MemoryStore) set(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data = data
	return nil
}
