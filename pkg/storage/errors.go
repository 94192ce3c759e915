package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a plan, record, or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMemoryLockTimeout is returned when a write lock on a namespaced key
	// cannot be acquired within the wait window.
	ErrMemoryLockTimeout = errors.New("memory_lock_timeout")

	// ErrInvalidMemoryLabel is returned for labels containing the namespace
	// separator.
	ErrInvalidMemoryLabel = errors.New("memory label must not contain ':'")
)

// ContractViolationError reports a value that does not satisfy the return-spec
// shape it was written under.
type ContractViolationError struct {
	Field  string
	Reason string
}

func (e *ContractViolationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("return_spec_contract_violation: %s", e.Reason)
	}
	return fmt.Sprintf("return_spec_contract_violation: field %q: %s", e.Field, e.Reason)
}

// EmbeddingDimensionError reports an embedding whose length does not match the
// index's configured dimension.
type EmbeddingDimensionError struct {
	Want int
	Got  int
}

func (e *EmbeddingDimensionError) Error() string {
	return fmt.Sprintf("embedding_dimension_mismatch: want %d, got %d", e.Want, e.Got)
}

// SchemaError reports a document that fails local validation against the
// index mapping before it is sent to the backend.
type SchemaError struct {
	Index  string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("storage_schema_error: index %s field %q: %s", e.Index, e.Field, e.Reason)
}
