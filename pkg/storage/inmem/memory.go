// Package inmem provides process-local implementations of the storage ports.
// It backs the default profile and the test suite; no external services are
// required.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/canonical"
	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// MemoryRepository keeps memory records in a map keyed by namespaced key.
// Search is a case-insensitive substring match over label and value; there is
// no vector index, so it does not implement storage.KNNSearcher.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*models.MemoryRecord
	locks   *storage.LockTable
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*models.MemoryRecord),
		locks:   storage.NewLockTable(),
		now:     time.Now,
	}
}

// Write runs the memory write pipeline and returns the namespaced key.
func (r *MemoryRepository) Write(ctx context.Context, req storage.WriteRequest) (string, error) {
	if err := models.ValidateMemoryLabel(req.Label); err != nil {
		return "", storage.ErrInvalidMemoryLabel
	}
	if err := storage.CheckContract(req.Value, req.Shape); err != nil {
		return "", err
	}
	key := models.BuildNamespacedKey(req.TenantID, req.SessionID, req.TaskID, req.Label)
	if err := r.locks.Acquire(ctx, key, req.TaskID); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	if existing, ok := r.records[key]; ok {
		existing.Value = req.Value
		existing.ReturnSpecShape = req.Shape
		existing.UpdatedAt = now
		return key, nil
	}
	r.records[key] = &models.MemoryRecord{
		NamespacedKey:   key,
		TenantID:        req.TenantID,
		SessionID:       req.SessionID,
		TaskID:          req.TaskID,
		Scope:           req.Scope,
		Key:             req.Label,
		Value:           req.Value,
		ReturnSpecShape: req.Shape,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return key, nil
}

// Read returns the stored value for key. With releaseLock it also drops the
// write lock, which is how executor handoffs release a producer's hold.
func (r *MemoryRepository) Read(ctx context.Context, namespacedKey string, releaseLock bool) (map[string]any, error) {
	r.mu.RLock()
	record, ok := r.records[namespacedKey]
	r.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	if releaseLock {
		r.locks.Release(namespacedKey)
	}
	return record.Value, nil
}

// Search matches req.Query as a case-insensitive substring of the record
// label or canonical value, filtered by tenant and scope. Session-scoped
// searches also filter by session id. Results are newest-first, capped at
// TopK.
func (r *MemoryRepository) Search(ctx context.Context, req storage.SearchRequest) ([]*models.MemoryRecord, error) {
	query := strings.ToLower(req.Query)

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.MemoryRecord
	for _, record := range r.records {
		if record.TenantID != req.TenantID || record.Scope != req.Scope {
			continue
		}
		if req.Scope == models.ScopeSession && req.SessionID != "" && record.SessionID != req.SessionID {
			continue
		}
		haystack := strings.ToLower(record.Key + " " + canonical.MustMarshal(record.Value))
		if query != "" && !strings.Contains(haystack, query) {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if req.TopK > 0 && len(out) > req.TopK {
		out = out[:req.TopK]
	}
	return out, nil
}

// Get returns the full record for key, for tests and metadata assembly.
func (r *MemoryRepository) Get(namespacedKey string) (*models.MemoryRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[namespacedKey]
	return record, ok
}

// Locks exposes the lock table so tests can assert hold/release behavior.
func (r *MemoryRepository) Locks() *storage.LockTable {
	return r.locks
}
