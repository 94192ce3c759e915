package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhamnegi/agent-core/pkg/models"
)

func TestStartStep(t *testing.T) {
	step := &models.PlanStep{StepIndex: 1, Status: models.StepStatusPending}

	require.NoError(t, StartStep(step, "task_0a1b2c3d4e"))
	assert.Equal(t, models.StepStatusRunning, step.Status)
	assert.Equal(t, "task_0a1b2c3d4e", step.TaskID)
	require.NotNil(t, step.StartedAt)
	assert.Nil(t, step.FinishedAt)

	// Task id is assigned exactly once; a retry keeps the original.
	step.Status = models.StepStatusPending
	require.NoError(t, StartStep(step, "task_ffffffffff"))
	assert.Equal(t, "task_0a1b2c3d4e", step.TaskID)
}

func TestStartStep_IllegalFromRunning(t *testing.T) {
	step := &models.PlanStep{Status: models.StepStatusRunning}

	err := StartStep(step, "task_0a1b2c3d4e")
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "step", illegal.Kind)
	assert.Equal(t, "running", illegal.From)
}

func TestCompleteStep(t *testing.T) {
	step := &models.PlanStep{Status: models.StepStatusRunning}

	require.NoError(t, CompleteStep(step, "acme:sess-1:task_x:step_1_output"))
	assert.Equal(t, models.StepStatusComplete, step.Status)
	assert.Equal(t, "acme:sess-1:task_x:step_1_output", step.MemoryKey)
	assert.True(t, step.Validated)
	assert.NotNil(t, step.FinishedAt)
}

func TestCompleteStep_IllegalFromPending(t *testing.T) {
	step := &models.PlanStep{Status: models.StepStatusPending}

	err := CompleteStep(step, "key")
	var illegal *IllegalTransitionError
	assert.ErrorAs(t, err, &illegal)
}

func TestFailStep(t *testing.T) {
	step := &models.PlanStep{Status: models.StepStatusRunning}

	require.NoError(t, FailStep(step, "tool_error"))
	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Equal(t, "tool_error", step.FailureReason)
	assert.NotNil(t, step.FinishedAt)
}

func TestTransitionPlan(t *testing.T) {
	tests := []struct {
		name    string
		from    models.PlanStatus
		to      models.PlanStatus
		wantErr bool
	}{
		{name: "pending to executing", from: models.PlanStatusPending, to: models.PlanStatusExecuting},
		{name: "pending to planning", from: models.PlanStatusPending, to: models.PlanStatusPlanning},
		{name: "executing to replanning", from: models.PlanStatusExecuting, to: models.PlanStatusReplanning},
		{name: "replanning to executing", from: models.PlanStatusReplanning, to: models.PlanStatusExecuting},
		{name: "executing to complete", from: models.PlanStatusExecuting, to: models.PlanStatusComplete},
		{name: "executing to failed", from: models.PlanStatusExecuting, to: models.PlanStatusFailed},
		{name: "complete is terminal", from: models.PlanStatusComplete, to: models.PlanStatusExecuting, wantErr: true},
		{name: "failed is terminal", from: models.PlanStatusFailed, to: models.PlanStatusExecuting, wantErr: true},
		{name: "pending cannot complete directly", from: models.PlanStatusPending, to: models.PlanStatusComplete, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &models.Plan{Status: tt.from}
			err := TransitionPlan(p, tt.to)
			if tt.wantErr {
				var illegal *IllegalTransitionError
				require.ErrorAs(t, err, &illegal)
				assert.Equal(t, tt.from, p.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, p.Status)
		})
	}
}

func TestTransitionPlan_TerminalStampsCompletedAt(t *testing.T) {
	p := &models.Plan{Status: models.PlanStatusExecuting}
	require.NoError(t, TransitionPlan(p, models.PlanStatusComplete))
	assert.NotNil(t, p.CompletedAt)
}

func TestNextPendingStepIndex(t *testing.T) {
	p := &models.Plan{Steps: []*models.PlanStep{
		{Status: models.StepStatusComplete},
		{Status: models.StepStatusComplete},
		{Status: models.StepStatusPending},
	}}
	assert.Equal(t, 2, NextPendingStepIndex(p))

	p.Steps[2].Status = models.StepStatusComplete
	assert.Equal(t, 3, NextPendingStepIndex(p))
}
