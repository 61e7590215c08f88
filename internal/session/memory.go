package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps session state in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[sessionID]
	if !ok {
		return State{}, fmt.Errorf("load %s: %w", sessionID, ErrNotFound)
	}
	return st, nil
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.SessionID == "" {
		return fmt.Errorf("save: empty session id")
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.states[st.SessionID] = st
	m.mu.Unlock()
	return nil
}

// Sweep implements Store.
func (m *MemoryStore) Sweep(ctx context.Context, idleBefore time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, st := range m.states {
		if st.UpdatedAt.Before(idleBefore) {
			delete(m.states, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
