package inmem

import (
	"context"
	"sync"
)

type soulDoc struct {
	UserID  string
	Payload map[string]any
}

// SoulRepository stores one persona document per tenant.
type SoulRepository struct {
	mu    sync.RWMutex
	souls map[string]soulDoc
}

func NewSoulRepository() *SoulRepository {
	return &SoulRepository{souls: make(map[string]soulDoc)}
}

func (r *SoulRepository) Upsert(ctx context.Context, tenantID, userID string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.souls[tenantID] = soulDoc{UserID: userID, Payload: payload}
	return nil
}

// Get returns the stored persona payload for tests.
func (r *SoulRepository) Get(tenantID string) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.souls[tenantID]
	return doc.Payload, ok
}
