package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/plan"
	"github.com/Shubhamnegi/agent-core/pkg/policy"
)

// mockSkillOutputSchemas lists the output keys each mock skill can produce,
// used to prove return specs are satisfiable before execution starts.
var mockSkillOutputSchemas = map[string][]string{
	"skill_intent_analyzer":  {"intent"},
	"skill_response_builder": {"response_text"},
}

// MockPlannerAgent produces a fixed two-step plan: intent analysis feeding a
// response builder. Used by the mock profile and the test suite.
type MockPlannerAgent struct{}

func NewMockPlannerAgent() *MockPlannerAgent {
	return &MockPlannerAgent{}
}

func (p *MockPlannerAgent) CreatePlan(ctx context.Context, req *models.AgentRunRequest, maxSteps int) (*models.PlannerOutput, error) {
	inputFrom := 1
	steps := []*models.PlanStep{
		{
			StepIndex: 1,
			Task:      "Analyze request intent",
			Skills:    []string{"skill_intent_analyzer"},
			ReturnSpec: models.ReturnSpec{
				Shape:  map[string]any{"intent": "string"},
				Reason: "Used in step 2",
			},
			Status: models.StepStatusPending,
		},
		{
			StepIndex:     2,
			Task:          "Build actionable response",
			Skills:        []string{"skill_response_builder"},
			InputFromStep: &inputFrom,
			ReturnSpec: models.ReturnSpec{
				Shape:  map[string]any{"response_text": "string"},
				Reason: "Final user output synthesis",
			},
			Status: models.StepStatusPending,
		},
	}
	if err := plan.ValidateSteps(steps, maxSteps); err != nil {
		return nil, err
	}
	if err := validateReturnSpecs(steps); err != nil {
		return nil, err
	}
	return &models.PlannerOutput{
		Steps:          steps,
		AvailableTools: []string{policy.ToolFindRelevantSkill, policy.ToolLoadInstructions},
		Discovery: []models.DiscoveryCall{
			{
				Tool:     policy.ToolFindRelevantSkill,
				Response: `{"skills":[{"skill_id":"skill_intent_analyzer"},{"skill_id":"skill_response_builder"}]}`,
			},
			{Tool: policy.ToolLoadInstructions, Response: `{"status":"ok"}`},
		},
	}, nil
}

// Replan revises only the failed step as a retry.
func (p *MockPlannerAgent) Replan(ctx context.Context, completed []*models.PlanStep, failed *models.PlanStep, reason string) ([]*models.PlanStep, error) {
	revised := []*models.PlanStep{
		{
			StepIndex:     failed.StepIndex,
			Task:          "Retry: " + failed.Task,
			Skills:        failed.Skills,
			ReturnSpec:    failed.ReturnSpec,
			InputFromStep: failed.InputFromStep,
			Status:        models.StepStatusPending,
		},
	}
	if err := validateReturnSpecs(revised); err != nil {
		return nil, err
	}
	return revised, nil
}

// validateReturnSpecs proves every declared return-spec field is producible
// by the step's skills.
func validateReturnSpecs(steps []*models.PlanStep) error {
	for _, step := range steps {
		producible := map[string]bool{}
		for _, skill := range step.Skills {
			for _, key := range mockSkillOutputSchemas[skill] {
				producible[key] = true
			}
		}
		var missing []string
		for field := range step.ReturnSpec.Shape {
			if !producible[field] {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return &plan.ValidationError{
				Reason: plan.ReasonSpecNotSatisfiable,
				Detail: fmt.Sprintf("step %d missing keys: %s", step.StepIndex, strings.Join(missing, ", ")),
			}
		}
	}
	return nil
}
