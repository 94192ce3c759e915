package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhamnegi/agent-core/pkg/models"
)

func TestValidateSteps(t *testing.T) {
	okStep := func(idx int, skills ...string) *models.PlanStep {
		return &models.PlanStep{StepIndex: idx, Task: "do work", Skills: skills}
	}

	tests := []struct {
		name       string
		steps      []*models.PlanStep
		maxSteps   int
		wantReason string
	}{
		{
			name:     "valid plan passes",
			steps:    []*models.PlanStep{okStep(1, "aws_cost_explorer"), okStep(2)},
			maxSteps: 10,
		},
		{
			name:       "empty plan rejected",
			steps:      nil,
			maxSteps:   10,
			wantReason: ReasonEmptyPlan,
		},
		{
			name:       "over step budget rejected",
			steps:      []*models.PlanStep{okStep(1), okStep(2), okStep(3)},
			maxSteps:   2,
			wantReason: ReasonOverMaxSteps,
		},
		{
			name:     "zero budget means unbounded",
			steps:    []*models.PlanStep{okStep(1), okStep(2), okStep(3)},
			maxSteps: 0,
		},
		{
			name:       "subagent skill rejected",
			steps:      []*models.PlanStep{okStep(1, "spawn_subagent")},
			maxSteps:   10,
			wantReason: ReasonSubagentSpawning,
		},
		{
			name:       "forbidden token match is case-insensitive",
			steps:      []*models.PlanStep{okStep(1, "Create_SubAgent_v2")},
			maxSteps:   10,
			wantReason: ReasonSubagentSpawning,
		},
		{
			name:       "agent run route token rejected",
			steps:      []*models.PlanStep{okStep(1, "call agent/run")},
			maxSteps:   10,
			wantReason: ReasonSubagentSpawning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSteps(tt.steps, tt.maxSteps)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tt.wantReason, validation.Reason)
			assert.Equal(t, "failed", validation.Failure()["status"])
			assert.Equal(t, tt.wantReason, validation.Failure()["reason"])
		})
	}
}
