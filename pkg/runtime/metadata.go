package runtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/agent"
)

const memoryStalenessDays = 30

// memoryUsageMetadata aggregates memory-search evidence across the streamed
// events of one request. Merging is monotonic: used never flips back, the
// latest timestamp wins, the first summary sticks.
type memoryUsageMetadata struct {
	used            bool
	latestTimestamp string
	summary         string
}

func (m memoryUsageMetadata) merge(other memoryUsageMetadata) memoryUsageMetadata {
	out := memoryUsageMetadata{
		used:            m.used || other.used,
		latestTimestamp: maxISOTimestamp(m.latestTimestamp, other.latestTimestamp),
		summary:         m.summary,
	}
	if out.summary == "" {
		out.summary = other.summary
	}
	return out
}

// extractMemoryUsageMetadata inspects search_relevant_memory tool responses
// only; other tools never influence disclosure state.
func extractMemoryUsageMetadata(responses []agent.FunctionResponse) memoryUsageMetadata {
	var out memoryUsageMetadata
	for _, item := range responses {
		if item.Name != "search_relevant_memory" {
			continue
		}
		payload, ok := item.Response.(map[string]any)
		if !ok {
			continue
		}
		if count, ok := payloadInt(payload, "count"); ok && count > 0 {
			out.used = true
		}
		results, ok := payload["results"].([]any)
		if !ok {
			continue
		}
		for _, raw := range results {
			result, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if createdAt, ok := result["created_at"].(string); ok && createdAt != "" {
				out.latestTimestamp = maxISOTimestamp(out.latestTimestamp, createdAt)
			}
			if out.summary == "" {
				out.summary = extractMemorySummary(result)
			}
		}
	}
	return out
}

func extractMemorySummary(result map[string]any) string {
	value, ok := result["value"].(map[string]any)
	if !ok {
		return ""
	}
	if blob, ok := value["blob_json"].(string); ok {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(blob), &parsed); err != nil {
			return ""
		}
		return summarizeMemoryValue(parsed)
	}
	return summarizeMemoryValue(value)
}

func summarizeMemoryValue(value map[string]any) string {
	if text, ok := value["memory_text"].(string); ok && text != "" {
		return text
	}
	var fields []string
	for _, name := range []string{"domain", "intent"} {
		if field, ok := value[name].(string); ok && field != "" {
			fields = append(fields, fmt.Sprintf("%s: %s", name, field))
		}
	}
	if entities, ok := value["entities"].([]any); ok && len(entities) > 0 {
		if len(entities) > 5 {
			entities = entities[:5]
		}
		names := make([]string, 0, len(entities))
		for _, entity := range entities {
			names = append(names, fmt.Sprint(entity))
		}
		fields = append(fields, "entities: "+strings.Join(names, ", "))
	}
	return strings.Join(fields, "; ")
}

// applyMemoryDisclosure prefixes the response so users know when saved memory
// shaped the answer, or that memory was skipped on request.
func applyMemoryDisclosure(response string, metadata memoryUsageMetadata, memoryDisabled bool) string {
	if memoryDisabled {
		return "Note: I did not use memory for this response because you asked to skip memory.\n\n" + response
	}
	if !metadata.used {
		return response
	}
	timestamp := metadata.latestTimestamp
	if timestamp == "" {
		timestamp = "unknown time"
	}
	summary := metadata.summary
	if summary == "" {
		summary = "a previously saved preference"
	}
	prefix := fmt.Sprintf("Note: I used saved memory from %s to tailor this response. Applied memory: %s.", timestamp, summary)
	if note := memoryStalenessNote(metadata.latestTimestamp); note != "" {
		prefix += " " + note
	}
	return prefix + "\n\n" + response
}

func memoryStalenessNote(timestamp string) string {
	if timestamp == "" {
		return ""
	}
	createdAt, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		if createdAt, err = time.Parse(time.RFC3339, timestamp); err != nil {
			return ""
		}
	}
	ageDays := int(time.Since(createdAt).Hours() / 24)
	if ageDays >= memoryStalenessDays {
		return fmt.Sprintf("Memory may be stale (saved about %d days ago).", ageDays)
	}
	return ""
}

// maxISOTimestamp keeps the lexicographically later RFC 3339 timestamp, which
// for same-offset timestamps is also chronologically later.
func maxISOTimestamp(left, right string) string {
	if left == "" {
		return right
	}
	if right == "" {
		return left
	}
	if right > left {
		return right
	}
	return left
}

func payloadInt(payload map[string]any, key string) (int, bool) {
	switch value := payload[key].(type) {
	case int:
		return value, true
	case float64:
		return int(value), true
	}
	return 0, false
}
