package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/plan"
	"github.com/Shubhamnegi/agent-core/pkg/policy"
)

func TestMockPlannerAgent_CreatePlan(t *testing.T) {
	planner := NewMockPlannerAgent()

	output, err := planner.CreatePlan(context.Background(), &models.AgentRunRequest{Message: "hello"}, 10)
	require.NoError(t, err)
	require.Len(t, output.Steps, 2)

	first, second := output.Steps[0], output.Steps[1]
	assert.Equal(t, []string{"skill_intent_analyzer"}, first.Skills)
	assert.Equal(t, map[string]any{"intent": "string"}, first.ReturnSpec.Shape)
	require.NotNil(t, second.InputFromStep)
	assert.Equal(t, 1, *second.InputFromStep)
	assert.Equal(t, map[string]any{"response_text": "string"}, second.ReturnSpec.Shape)
	for _, step := range output.Steps {
		assert.Equal(t, models.StepStatusPending, step.Status)
	}

	// Discovery is reported so the runtime can replay it into the policy
	// state before the executor runs.
	assert.Equal(t, []string{policy.ToolFindRelevantSkill, policy.ToolLoadInstructions}, output.AvailableTools)
	require.Len(t, output.Discovery, 2)
	assert.Equal(t, policy.ToolFindRelevantSkill, output.Discovery[0].Tool)
	assert.Contains(t, output.Discovery[0].Response, "skill_intent_analyzer")
	assert.Equal(t, policy.ToolLoadInstructions, output.Discovery[1].Tool)
}

func TestMockPlannerAgent_CreatePlanOverBudget(t *testing.T) {
	planner := NewMockPlannerAgent()

	_, err := planner.CreatePlan(context.Background(), &models.AgentRunRequest{Message: "hello"}, 1)
	var validation *plan.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, plan.ReasonOverMaxSteps, validation.Reason)
}

func TestMockPlannerAgent_Replan(t *testing.T) {
	planner := NewMockPlannerAgent()
	failed := &models.PlanStep{
		StepIndex:  2,
		Task:       "Build actionable response",
		Skills:     []string{"skill_response_builder"},
		ReturnSpec: models.ReturnSpec{Shape: map[string]any{"response_text": "string"}},
		Status:     models.StepStatusFailed,
	}

	revised, err := planner.Replan(context.Background(), nil, failed, "tool_error")
	require.NoError(t, err)
	require.Len(t, revised, 1)
	assert.Equal(t, "Retry: Build actionable response", revised[0].Task)
	assert.Equal(t, failed.Skills, revised[0].Skills)
	assert.Equal(t, models.StepStatusPending, revised[0].Status)
}

func TestMockPlannerAgent_ReplanUnsatisfiableSpec(t *testing.T) {
	planner := NewMockPlannerAgent()
	failed := &models.PlanStep{
		StepIndex:  2,
		Task:       "Fetch stock prices",
		Skills:     []string{"skill_stock_fetcher"},
		ReturnSpec: models.ReturnSpec{Shape: map[string]any{"prices": "array"}},
		Status:     models.StepStatusFailed,
	}

	_, err := planner.Replan(context.Background(), nil, failed, "tool_error")
	var validation *plan.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, plan.ReasonSpecNotSatisfiable, validation.Reason)
	assert.Contains(t, validation.Detail, "prices")
}
