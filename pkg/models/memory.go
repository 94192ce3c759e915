package models

import (
	"fmt"
	"strings"
	"time"
)

// MemoryScope controls the retrieval domain of a memory record.
type MemoryScope string

const (
	// ScopeSession memories are transient working state for one session.
	ScopeSession MemoryScope = "session"
	// ScopeUser memories are durable cross-session facts and preferences.
	ScopeUser MemoryScope = "user"
)

// IsValid reports whether s is a known memory scope.
func (s MemoryScope) IsValid() bool {
	return s == ScopeSession || s == ScopeUser
}

// MemoryRecord is one stored memory value addressed by its namespaced key.
type MemoryRecord struct {
	NamespacedKey   string         `json:"namespaced_key"`
	TenantID        string         `json:"tenant_id"`
	SessionID       string         `json:"session_id"`
	TaskID          string         `json:"task_id"`
	Scope           MemoryScope    `json:"scope"`
	Key             string         `json:"key"`
	Value           map[string]any `json:"value"`
	ReturnSpecShape map[string]any `json:"return_spec_shape"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Embedding       []float32      `json:"embedding,omitempty"`
}

// BuildNamespacedKey assembles the canonical memory address
// "{tenant}:{session}:{task}:{label}". The label segment must not contain
// ':'; callers validate that before building the key.
func BuildNamespacedKey(tenantID, sessionID, taskID, label string) string {
	return fmt.Sprintf("%s:%s:%s:%s", tenantID, sessionID, taskID, label)
}

// ValidateMemoryLabel rejects labels that would corrupt the namespaced key.
func ValidateMemoryLabel(label string) error {
	if strings.Contains(label, ":") {
		return fmt.Errorf("memory label %q must not contain ':'", label)
	}
	return nil
}
