package runtime

import (
	"strings"

	"github.com/Shubhamnegi/agent-core/pkg/agent"
	"github.com/Shubhamnegi/agent-core/pkg/policy"
)

const (
	toolFailureMessage = "I hit a tool error while working on your request and could not finish it. Please try again."
	noFinalTextMessage = "I finished working on your request but could not produce a final summary."
	noOutputMessage    = "No response was produced for this request."
)

// selectResponseText picks the user-facing text from the accumulated event
// stream. The coordinator's last final text wins; planner plan dumps and
// communicator intermediate status are never surfaced in its place.
func selectResponseText(events []agent.StreamEvent) string {
	finalText := ""
	for _, event := range events {
		if event.Author == policy.AgentCoordinator && event.IsFinal && strings.TrimSpace(event.Text) != "" {
			finalText = event.Text
		}
	}
	if finalText != "" {
		return finalText
	}

	activity := false
	toolFailure := false
	lastText := ""
	for _, event := range events {
		if strings.TrimSpace(event.Text) != "" {
			lastText = event.Text
		}
		if len(event.FunctionCalls) > 0 || len(event.FunctionResponses) > 0 {
			activity = true
		}
		if event.Author != policy.AgentPlanner && event.Author != policy.AgentCoordinator {
			activity = true
		}
		for _, response := range event.FunctionResponses {
			dict, ok := response.Response.(map[string]any)
			if !ok {
				continue
			}
			if status, _ := dict["status"].(string); status == "failed" || status == "blocked" {
				toolFailure = true
			}
		}
	}
	if activity {
		if toolFailure {
			return toolFailureMessage
		}
		return noFinalTextMessage
	}
	if lastText != "" {
		return lastText
	}
	return noOutputMessage
}
