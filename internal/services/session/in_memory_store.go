package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	workspaceID uuid.UUID
	expiresAt   time.Time
}

// InMemoryStore keeps active workspaces in process memory. Only suitable for a
// single API instance.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]entry
	ttl     time.Duration
	now     func() time.Time
}

func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[uuid.UUID]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *InMemoryStore) GetActiveWorkspace(_ context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, userID)
		s.mu.Unlock()
		return nil, nil
	}

	id := e.workspaceID
	return &id, nil
}

func (s *InMemoryStore) SetActiveWorkspace(_ context.Context, userID, workspaceID uuid.UUID) error {
	e := entry{workspaceID: workspaceID}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[userID] = e
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) ClearActiveWorkspace(_ context.Context, userID uuid.UUID, workspaceID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return nil
	}
	if workspaceID == nil || e.workspaceID == *workspaceID {
		delete(s.entries, userID)
	}
	return nil
}
