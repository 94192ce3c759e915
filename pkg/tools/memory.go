package tools

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/canonical"
	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// WriteMemory persists structured session-scoped data under a logical key.
// Contract and lock failures propagate as errors so they abort the step and
// feed the replan manager.
func WriteMemory(ctx context.Context, rc *RuntimeContext, key string, data, returnSpec map[string]any) (map[string]any, error) {
	if rc.Memory == nil {
		return notConfiguredResult(key), nil
	}
	namespacedKey, err := rc.Memory.Write(ctx, storage.WriteRequest{
		TenantID:  rc.TenantID,
		SessionID: rc.SessionID,
		TaskID:    rc.NewTaskID(),
		Label:     key,
		Value:     data,
		Shape:     returnSpec,
		Scope:     models.ScopeSession,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":         "ok",
		"namespaced_key": namespacedKey,
		"scope":          string(models.ScopeSession),
		"data":           data,
	}, nil
}

// ReadMemory reads previously stored memory by namespaced key.
func ReadMemory(ctx context.Context, rc *RuntimeContext, namespacedKey string, releaseLock bool) (map[string]any, error) {
	if rc.Memory == nil {
		return notConfiguredResult(namespacedKey), nil
	}
	value, err := rc.Memory.Read(ctx, namespacedKey, releaseLock)
	if err != nil {
		if err == storage.ErrNotFound {
			return map[string]any{
				"status": "not_found",
				"key":    namespacedKey,
				"data":   nil,
			}, nil
		}
		return nil, err
	}
	return map[string]any{
		"status": "ok",
		"key":    namespacedKey,
		"data":   value,
	}, nil
}

// SaveUserMemory saves durable cross-session user memory from JSON text,
// skipping the write when an existing record carries the same canonical
// fingerprint.
func SaveUserMemory(ctx context.Context, rc *RuntimeContext, key, memoryJSON, returnSpecJSON string) (map[string]any, error) {
	return saveDedupedMemory(ctx, rc, key, memoryJSON, returnSpecJSON, models.ScopeUser, "user_memory")
}

// SaveActionMemory saves session-scoped action memory from JSON text with the
// same dedup behavior.
func SaveActionMemory(ctx context.Context, rc *RuntimeContext, key, memoryJSON, returnSpecJSON string) (map[string]any, error) {
	return saveDedupedMemory(ctx, rc, key, memoryJSON, returnSpecJSON, models.ScopeSession, "action_memory")
}

func saveDedupedMemory(ctx context.Context, rc *RuntimeContext, key, memoryJSON, returnSpecJSON string, scope models.MemoryScope, memoryType string) (map[string]any, error) {
	if rc.Memory == nil {
		return notConfiguredResult(key), nil
	}
	payload := parseJSONObject(memoryJSON)
	if payload == nil {
		return map[string]any{
			"status": "failed",
			"reason": "invalid_memory_json",
			"key":    key,
		}, nil
	}
	shape := parseJSONObject(returnSpecJSON)
	if shape == nil {
		shape = deriveReturnSpec(payload)
	}

	if existing := findDuplicate(ctx, rc, payload, scope); existing != "" {
		return map[string]any{
			"status":         "duplicate_skipped",
			"memory_type":    memoryType,
			"scope":          string(scope),
			"namespaced_key": existing,
			"reason":         "similar_memory_exists",
		}, nil
	}

	namespacedKey, err := rc.Memory.Write(ctx, storage.WriteRequest{
		TenantID:  rc.TenantID,
		SessionID: rc.SessionID,
		TaskID:    rc.NewTaskID(),
		Label:     key,
		Value:     payload,
		Shape:     shape,
		Scope:     scope,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":         "ok",
		"memory_type":    memoryType,
		"scope":          string(scope),
		"namespaced_key": namespacedKey,
	}, nil
}

// SearchRelevantMemory returns the top-k memories relevant to the query text.
func SearchRelevantMemory(ctx context.Context, rc *RuntimeContext, query string, scope models.MemoryScope, topK int) (map[string]any, error) {
	if rc.Memory == nil {
		return map[string]any{
			"status":  "not_configured",
			"reason":  "memory_repository_not_configured",
			"query":   query,
			"results": []any{},
		}, nil
	}
	if topK <= 0 {
		topK = 5
	}
	records, err := rc.Memory.Search(ctx, storage.SearchRequest{
		TenantID:  rc.TenantID,
		UserID:    rc.UserID,
		SessionID: rc.SessionID,
		Query:     query,
		Scope:     scope,
		TopK:      topK,
	})
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(records))
	for _, record := range records {
		results = append(results, recordResult(record))
	}
	return map[string]any{
		"status":  "ok",
		"query":   query,
		"scope":   string(scope),
		"results": results,
		"count":   len(results),
	}, nil
}

// findDuplicate searches the same scope for a record whose canonical
// fingerprint matches the proposed payload. Search failures disable dedup
// rather than blocking the save.
func findDuplicate(ctx context.Context, rc *RuntimeContext, payload map[string]any, scope models.MemoryScope) string {
	queryText, _ := payload["memory_text"].(string)
	if strings.TrimSpace(queryText) == "" {
		queryText = canonical.Fingerprint(payload)
	}
	candidates, err := rc.Memory.Search(ctx, storage.SearchRequest{
		TenantID:  rc.TenantID,
		UserID:    rc.UserID,
		SessionID: rc.SessionID,
		Query:     queryText,
		Scope:     scope,
		TopK:      10,
	})
	if err != nil {
		return ""
	}
	target := canonical.Fingerprint(payload)
	for _, candidate := range candidates {
		if candidate.Value == nil {
			continue
		}
		if canonical.Fingerprint(candidate.Value) == target && candidate.NamespacedKey != "" {
			return candidate.NamespacedKey
		}
	}
	return ""
}

func recordResult(record *models.MemoryRecord) map[string]any {
	return map[string]any{
		"namespaced_key": record.NamespacedKey,
		"scope":          string(record.Scope),
		"key":            record.Key,
		"value":          record.Value,
		"created_at":     record.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":     record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func notConfiguredResult(key string) map[string]any {
	return map[string]any{
		"status": "not_configured",
		"reason": "memory_repository_not_configured",
		"key":    key,
	}
}

func parseJSONObject(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	return parsed
}

// deriveReturnSpec infers a type-label shape from the payload itself.
func deriveReturnSpec(payload map[string]any) map[string]any {
	shape := make(map[string]any, len(payload))
	for field, value := range payload {
		shape[field] = inferTypeLabel(value)
	}
	return shape
}

func inferTypeLabel(value any) string {
	switch v := value.(type) {
	case bool:
		return "boolean"
	case float64:
		if v == math.Trunc(v) {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "string"
	}
}
