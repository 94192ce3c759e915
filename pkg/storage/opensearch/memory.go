package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/canonical"
	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// MemoryRepository stores memory records in the memory index with a knn_vector
// embedding per record. It implements storage.MemoryRepository and
// storage.KNNSearcher.
type MemoryRepository struct {
	client   *Client
	embedder storage.Embedder
	locks    *storage.LockTable
	now      func() time.Time
}

func NewMemoryRepository(client *Client, embedder storage.Embedder) *MemoryRepository {
	return &MemoryRepository{
		client:   client,
		embedder: embedder,
		locks:    storage.NewLockTable(),
		now:      time.Now,
	}
}

// Write runs the full pipeline: label validation, contract check, lock
// acquisition, embedding with dimension check, then upsert keyed by the
// namespaced key.
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

	valueJSON := canonical.MustMarshal(req.Value)
	vector, err := r.embedder.Embed(ctx, valueJSON)
	if err != nil {
		return "", fmt.Errorf("embedding memory value: %w", err)
	}
	if dims := r.client.cfg.EmbeddingDims; dims > 0 && len(vector) != dims {
		return "", &storage.EmbeddingDimensionError{Want: dims, Got: len(vector)}
	}

	now := r.now().UTC().Format(time.RFC3339Nano)
	createdAt := now
	if existing, err := r.client.getDoc(ctx, r.client.MemoryIndex(), key); err == nil {
		if prev := stringField(existing, "created_at"); prev != "" {
			createdAt = prev
		}
	}
	doc := map[string]any{
		"namespaced_key":         key,
		"tenant_id":              req.TenantID,
		"session_id":             req.SessionID,
		"task_id":                req.TaskID,
		"scope":                  string(req.Scope),
		"key":                    req.Label,
		"value_json":             valueJSON,
		"return_spec_shape_json": canonical.MustMarshal(req.Shape),
		"created_at":             createdAt,
		"updated_at":             now,
		"embedding":              vector,
	}
	if err := r.client.indexDoc(ctx, r.client.MemoryIndex(), "memory", key, doc); err != nil {
		return "", err
	}
	return key, nil
}

func (r *MemoryRepository) Read(ctx context.Context, namespacedKey string, releaseLock bool) (map[string]any, error) {
	doc, err := r.client.getDoc(ctx, r.client.MemoryIndex(), namespacedKey)
	if err != nil {
		return nil, err
	}
	if releaseLock {
		r.locks.Release(namespacedKey)
	}
	value := decodeJSONField(doc, "value_json")
	if value == nil {
		value = map[string]any{}
	}
	return value, nil
}

// Search embeds the query text and runs a filtered kNN search.
func (r *MemoryRepository) Search(ctx context.Context, req storage.SearchRequest) ([]*models.MemoryRecord, error) {
	vector, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding search query: %w", err)
	}
	return r.KNNSearch(ctx, req.TenantID, req.Scope, vector, req.TopK)
}

// KNNSearch queries the memory index with a bool filter on tenant and scope
// and a knn clause on the embedding field.
func (r *MemoryRepository) KNNSearch(ctx context.Context, tenantID string, scope models.MemoryScope, vector []float32, topK int) ([]*models.MemoryRecord, error) {
	if topK <= 0 {
		topK = 5
	}
	query := map[string]any{
		"size": topK,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"tenant_id": tenantID}},
					map[string]any{"term": map[string]any{"scope": string(scope)}},
				},
				"must": []any{
					map[string]any{"knn": map[string]any{
						"embedding": map[string]any{"vector": vector, "k": topK},
					}},
				},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	hits, err := r.client.search(ctx, r.client.MemoryIndex(), string(body))
	if err != nil {
		return nil, err
	}
	records := make([]*models.MemoryRecord, 0, len(hits))
	for _, hit := range hits {
		records = append(records, decodeMemoryRecord(hit))
	}
	return records, nil
}

// Locks exposes the lock table for the coordination layer.
func (r *MemoryRepository) Locks() *storage.LockTable {
	return r.locks
}

func decodeMemoryRecord(doc map[string]any) *models.MemoryRecord {
	record := &models.MemoryRecord{
		NamespacedKey:   stringField(doc, "namespaced_key"),
		TenantID:        stringField(doc, "tenant_id"),
		SessionID:       stringField(doc, "session_id"),
		TaskID:          stringField(doc, "task_id"),
		Scope:           models.MemoryScope(stringField(doc, "scope")),
		Key:             stringField(doc, "key"),
		Value:           decodeJSONField(doc, "value_json"),
		ReturnSpecShape: decodeJSONField(doc, "return_spec_shape_json"),
	}
	if t, err := time.Parse(time.RFC3339Nano, stringField(doc, "created_at")); err == nil {
		record.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, stringField(doc, "updated_at")); err == nil {
		record.UpdatedAt = t
	}
	return record
}
