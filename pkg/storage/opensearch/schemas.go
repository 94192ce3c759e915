package opensearch

import (
	"fmt"

	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// All mappings are dynamic:strict. Nested volatile maps (step lists, event
// payloads, memory values) are flattened to *_json keyword/text fields before
// indexing so a surprising payload can never mutate the mapping.

func memoryMapping(dims int) string {
	if dims <= 0 {
		dims = 768
	}
	return fmt.Sprintf(`{
  "settings": {"index": {"knn": true}},
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "namespaced_key": {"type": "keyword"},
      "tenant_id": {"type": "keyword"},
      "session_id": {"type": "keyword"},
      "task_id": {"type": "keyword"},
      "scope": {"type": "keyword"},
      "key": {"type": "keyword"},
      "value_json": {"type": "text"},
      "return_spec_shape_json": {"type": "text"},
      "created_at": {"type": "date"},
      "updated_at": {"type": "date"},
      "embedding": {"type": "knn_vector", "dimension": %d}
    }
  }
}`, dims)
}

const eventsMapping = `{
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "event_id": {"type": "keyword"},
      "event_type": {"type": "keyword"},
      "tenant_id": {"type": "keyword"},
      "session_id": {"type": "keyword"},
      "plan_id": {"type": "keyword"},
      "task_id": {"type": "keyword"},
      "payload_json": {"type": "text"},
      "ts": {"type": "date_nanos"}
    }
  }
}`

const plansMapping = `{
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "plan_id": {"type": "keyword"},
      "tenant_id": {"type": "keyword"},
      "user_id": {"type": "keyword"},
      "session_id": {"type": "keyword"},
      "status": {"type": "keyword"},
      "steps_json": {"type": "text"},
      "replan_count": {"type": "integer"},
      "replan_history_json": {"type": "text"},
      "created_at": {"type": "date"},
      "completed_at": {"type": "date"}
    }
  }
}`

const soulsMapping = `{
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "tenant_id": {"type": "keyword"},
      "user_id": {"type": "keyword"},
      "payload_json": {"type": "text"},
      "updated_at": {"type": "date"}
    }
  }
}`

const sessionsMapping = `{
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "session_id": {"type": "keyword"},
      "tenant_id": {"type": "keyword"},
      "user_id": {"type": "keyword"},
      "state_json": {"type": "text"},
      "created_at": {"type": "date"},
      "updated_at": {"type": "date"}
    }
  }
}`

// schemaFields lists the allowed document fields per index suffix, mirroring
// the strict mappings above. Documents are validated locally before indexing
// so a drifted writer fails fast instead of poisoning the mapping.
var schemaFields = map[string]map[string]bool{
	"memory": {
		"namespaced_key": true, "tenant_id": true, "session_id": true,
		"task_id": true, "scope": true, "key": true, "value_json": true,
		"return_spec_shape_json": true, "created_at": true, "updated_at": true,
		"embedding": true,
	},
	"events": {
		"event_id": true, "event_type": true, "tenant_id": true,
		"session_id": true, "plan_id": true, "task_id": true,
		"payload_json": true, "ts": true,
	},
	"plans": {
		"plan_id": true, "tenant_id": true, "user_id": true, "session_id": true,
		"status": true, "steps_json": true, "replan_count": true,
		"replan_history_json": true, "created_at": true, "completed_at": true,
	},
	"souls": {
		"tenant_id": true, "user_id": true, "payload_json": true, "updated_at": true,
	},
	"sessions": {
		"session_id": true, "tenant_id": true, "user_id": true,
		"state_json": true, "created_at": true, "updated_at": true,
	},
}

func validateDocument(index, suffix string, doc map[string]any) error {
	allowed, ok := schemaFields[suffix]
	if !ok {
		return &storage.SchemaError{Index: index, Reason: "unknown index schema"}
	}
	for field, value := range doc {
		if !allowed[field] {
			return &storage.SchemaError{Index: index, Field: field, Reason: "not in mapping"}
		}
		switch value.(type) {
		case map[string]any:
			return &storage.SchemaError{Index: index, Field: field, Reason: "nested object must be flattened to canonical JSON"}
		}
	}
	return nil
}
