// Package storage defines the repository ports behind which the runtime
// persists plans, memory, trace events, souls, and sessions. Two families of
// implementations exist: storage/inmem (process-local, used by tests and the
// default profile) and storage/opensearch (indexed, kNN-capable).
package storage

import (
	"context"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/models"
)

// PlanRepository persists plans keyed by plan id.
type PlanRepository interface {
	Save(ctx context.Context, plan *models.Plan) error
	Get(ctx context.Context, planID string) (*models.Plan, error)
}

// WriteRequest carries one memory write through the validation pipeline.
type WriteRequest struct {
	TenantID  string
	SessionID string
	TaskID    string
	Label     string
	Value     map[string]any
	Shape     map[string]any
	Scope     models.MemoryScope
}

// SearchRequest selects memory records relevant to a query.
type SearchRequest struct {
	TenantID  string
	UserID    string
	SessionID string
	Query     string
	Scope     models.MemoryScope
	TopK      int
}

// MemoryRepository is the memory store port. Write runs the full pipeline:
// label validation, return-spec contract check, lock acquisition, optional
// embedding, upsert. The write lock stays held until Read with releaseLock or
// lock TTL expiry.
type MemoryRepository interface {
	Write(ctx context.Context, req WriteRequest) (string, error)
	Read(ctx context.Context, namespacedKey string, releaseLock bool) (map[string]any, error)
	Search(ctx context.Context, req SearchRequest) ([]*models.MemoryRecord, error)
}

// KNNSearcher is implemented by memory backends that support vector search.
type KNNSearcher interface {
	KNNSearch(ctx context.Context, tenantID string, scope models.MemoryScope, vector []float32, topK int) ([]*models.MemoryRecord, error)
}

// EventRepository is the append-only trace event log.
type EventRepository interface {
	Append(ctx context.Context, event *models.EventRecord) error
	ListByPlan(ctx context.Context, planID string) ([]*models.EventRecord, error)
	// DeleteOlderThan enforces the retention policy and returns the number of
	// events removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// SoulRepository stores per-tenant persona and policy documents.
type SoulRepository interface {
	Upsert(ctx context.Context, tenantID, userID string, payload map[string]any) error
}

// SessionRecord is the cross-request session state.
type SessionRecord struct {
	SessionID string         `json:"session_id"`
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id"`
	State     map[string]any `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SessionStore persists sessions across requests. Ensure creates the session
// when absent and reports whether it did, the first-turn signal used by the
// runtime's memory-precheck policy.
type SessionStore interface {
	Ensure(ctx context.Context, tenantID, userID, sessionID string) (created bool, err error)
	Upsert(ctx context.Context, record *SessionRecord) error
	Get(ctx context.Context, sessionID string) (*SessionRecord, error)
}

// Embedder turns text into a fixed-dimension vector. Implementations live in
// pkg/llm; indexed memory backends depend only on this capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
