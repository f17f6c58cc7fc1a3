package store

import (
	"context"
	"sync"
	"time"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

// MemoryStore keeps state in process. Snapshots are cloned on the way in and out so callers
// never share memory with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*model.ConversationState
	audit  map[string][]model.PolicyLogEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*model.ConversationState),
		audit:  make(map[string][]model.PolicyLogEntry),
	}
}

// LoadState implements Store.
func (s *MemoryStore) LoadState(_ context.Context, conversationID string) (*model.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	out := st.Clone()
	out.AuditLog = append([]model.PolicyLogEntry(nil), s.audit[conversationID]...)
	return out, nil
}

// SaveState implements Store.
func (s *MemoryStore) SaveState(_ context.Context, state *model.ConversationState, audit ...model.PolicyLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if st, ok := s.states[state.ConversationID]; ok {
		current = st.Version
	}
	if current != state.Version {
		return ErrVersionConflict
	}

	state.Version++
	state.UpdatedAt = time.Now().UTC()
	snapshot := state.Clone()
	snapshot.AuditLog = nil
	s.states[state.ConversationID] = snapshot
	if len(audit) > 0 {
		s.audit[state.ConversationID] = append(s.audit[state.ConversationID], audit...)
	}
	return nil
}

// AppendAudit implements Store.
func (s *MemoryStore) AppendAudit(_ context.Context, conversationID string, entries ...model.PolicyLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	s.audit[conversationID] = append(s.audit[conversationID], entries...)
	s.mu.Unlock()
	return nil
}

// AuditLog implements Store.
func (s *MemoryStore) AuditLog(_ context.Context, conversationID string) ([]model.PolicyLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.PolicyLogEntry{}, s.audit[conversationID]...), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
