package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/tools"
)

// MockExecutorAgent simulates step execution. Messages containing
// "insufficient" or "fail" trigger the corresponding outcome; everything else
// succeeds with a payload shaped by the step's return spec.
type MockExecutorAgent struct{}

func NewMockExecutorAgent() *MockExecutorAgent {
	return &MockExecutorAgent{}
}

func (e *MockExecutorAgent) ExecuteStep(ctx context.Context, rc *tools.RuntimeContext, req *models.AgentRunRequest, p *models.Plan, step *models.PlanStep) (*models.StepExecutionResult, error) {
	lower := strings.ToLower(req.Message)
	if strings.Contains(lower, "insufficient") {
		return &models.StepExecutionResult{
			Status:     "insufficient",
			Reason:     "single step cannot complete",
			Suggestion: "split task",
		}, nil
	}
	if strings.Contains(lower, "fail") {
		return &models.StepExecutionResult{
			Status: "failed",
			Reason: "simulated_failure",
		}, nil
	}

	payload := make(map[string]any, len(step.ReturnSpec.Shape))
	for key := range step.ReturnSpec.Shape {
		payload[key] = fmt.Sprintf("mock_%d", step.StepIndex)
	}
	if _, ok := payload["response_text"]; ok {
		payload["response_text"] = "Mock execution successful"
	}
	return &models.StepExecutionResult{Status: "ok", Data: payload}, nil
}
