package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// SessionStore keeps session records in memory, keyed by session id.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*storage.SessionRecord
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*storage.SessionRecord), now: time.Now}
}

func (s *SessionStore) Ensure(ctx context.Context, tenantID, userID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; ok {
		return false, nil
	}
	now := s.now().UTC()
	s.sessions[sessionID] = &storage.SessionRecord{
		SessionID: sessionID,
		TenantID:  tenantID,
		UserID:    userID,
		State:     map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (s *SessionStore) Upsert(ctx context.Context, record *storage.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.UpdatedAt = s.now().UTC()
	if existing, ok := s.sessions[record.SessionID]; ok && record.CreatedAt.IsZero() {
		record.CreatedAt = existing.CreatedAt
	}
	s.sessions[record.SessionID] = record
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*storage.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.sessions[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return record, nil
}
