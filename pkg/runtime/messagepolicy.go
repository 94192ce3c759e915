package runtime

import (
	"regexp"
	"strings"
)

// memoryLookupMarkers enable the memory precheck on explicit user intent even
// past the first turn.
var memoryLookupMarkers = []string{
	"check memory",
	"from memory",
	"search memory",
	"what do you remember",
	"based on my preference",
	"my preference",
	"remembered",
	"recall",
}

// memoryDisableMarkers detect the user's opt-out from memory usage.
var memoryDisableMarkers = []string{
	"don't use memory",
	"do not use memory",
	"dont use memory",
	"without memory",
	"ignore memory",
	"skip memory",
	"no memory",
}

func messageRequestsMemoryLookup(message string) bool {
	return containsAnyMarker(message, memoryLookupMarkers)
}

func messageDisablesMemoryUsage(message string) bool {
	return containsAnyMarker(message, memoryDisableMarkers)
}

func containsAnyMarker(message string, markers []string) bool {
	lowered := strings.ToLower(message)
	for _, marker := range markers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

const internalToolConstraintSentence = "The `get_cost_and_usage_comparisons` tool requires both the baseline and comparison periods to be exactly one month long and to start on the first day of the month."

const genericConstraintSentence = "The requested period-over-period comparison is not available for this exact date range."

var backtickedToolPattern = regexp.MustCompile("`get_[a-zA-Z0-9_]+`")

// sanitizeUserResponse hides internal tool names and constraint wording from
// end-user prose.
func sanitizeUserResponse(response string) string {
	sanitized := strings.ReplaceAll(response, internalToolConstraintSentence, genericConstraintSentence)
	return backtickedToolPattern.ReplaceAllString(sanitized, "the requested comparison")
}
