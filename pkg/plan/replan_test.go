package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/storage/inmem"
)

type stubReplanner struct {
	revised []*models.PlanStep
	err     error
	calls   int
}

func (s *stubReplanner) Replan(ctx context.Context, completed []*models.PlanStep, failed *models.PlanStep, reason string) ([]*models.PlanStep, error) {
	s.calls++
	return s.revised, s.err
}

func replanFixture() *models.Plan {
	p := models.NewPlan("acme", "user-1", "sess-1", []*models.PlanStep{
		{StepIndex: 1, Task: "fetch costs", Status: models.StepStatusComplete, MemoryKey: "acme:sess-1:task_a:step_1_output"},
		{StepIndex: 2, Task: "compare periods", Status: models.StepStatusFailed, TaskID: "task_b"},
		{StepIndex: 3, Task: "summarize", Status: models.StepStatusPending},
	})
	p.Status = models.PlanStatusExecuting
	return p
}

func TestManager_HandleFailureMergesRevisedSteps(t *testing.T) {
	plans := inmem.NewPlanRepository()
	events := inmem.NewEventRepository()
	planner := &stubReplanner{revised: []*models.PlanStep{
		{Task: "compare periods by month", Skills: []string{"aws_cost_explorer"}},
	}}
	mgr := NewManager(planner, plans, events, 2, 10)
	p := replanFixture()

	err := mgr.HandleFailure(context.Background(), p, 1, models.ReplanTriggerStepFailed, "tool_error")
	require.NoError(t, err)

	// completed ++ revised ++ remaining, reindexed from 1.
	require.Len(t, p.Steps, 3)
	assert.Equal(t, "fetch costs", p.Steps[0].Task)
	assert.Equal(t, "compare periods by month", p.Steps[1].Task)
	assert.Equal(t, "summarize", p.Steps[2].Task)
	for i, step := range p.Steps {
		assert.Equal(t, i+1, step.StepIndex)
	}
	assert.Equal(t, models.StepStatusPending, p.Steps[1].Status)
	assert.Equal(t, models.PlanStatusExecuting, p.Status)

	assert.Equal(t, 1, p.ReplanCount)
	require.Len(t, p.ReplanHistory, 1)
	assert.Equal(t, 1, p.ReplanHistory[0].Attempt)
	assert.Equal(t, models.ReplanTriggerStepFailed, p.ReplanHistory[0].Trigger)
	assert.Equal(t, "tool_error", p.ReplanHistory[0].Reason)

	saved, err := plans.Get(context.Background(), p.PlanID)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.ReplanCount)

	trace, err := events.ListByPlan(context.Background(), p.PlanID)
	require.NoError(t, err)
	require.Len(t, trace, 1)
	assert.Equal(t, models.EventReplanTriggered, trace[0].EventType)
	assert.Equal(t, "tool_error", trace[0].Payload["reason"])
}

func TestManager_HandleFailureBudgetExhausted(t *testing.T) {
	plans := inmem.NewPlanRepository()
	events := inmem.NewEventRepository()
	planner := &stubReplanner{}
	mgr := NewManager(planner, plans, events, 2, 10)
	p := replanFixture()
	p.ReplanCount = 2

	err := mgr.HandleFailure(context.Background(), p, 1, models.ReplanTriggerInsufficient, "missing data")

	var limit *ReplanLimitError
	require.ErrorAs(t, err, &limit)
	assert.Zero(t, planner.calls, "planner must not run once the budget is spent")
	assert.Equal(t, models.PlanStatusFailed, p.Status)

	failure := limit.Failure()
	assert.Equal(t, "failed", failure["status"])
	assert.Equal(t, "max replan attempts reached", failure["reason"])
	completed, ok := failure["completed_steps"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, completed[0]["step_index"])
	last, ok := failure["last_failure"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, last["step"])
	assert.Equal(t, "missing data", last["reason"])
}

func TestManager_HandleFailureRevisedPlanRevalidated(t *testing.T) {
	plans := inmem.NewPlanRepository()
	events := inmem.NewEventRepository()
	planner := &stubReplanner{revised: []*models.PlanStep{
		{Task: "escalate", Skills: []string{"spawn_subagent"}},
	}}
	mgr := NewManager(planner, plans, events, 2, 10)
	p := replanFixture()

	err := mgr.HandleFailure(context.Background(), p, 1, models.ReplanTriggerStepFailed, "tool_error")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, ReasonSubagentSpawning, validation.Reason)
}

func TestManager_HandleFailurePlannerError(t *testing.T) {
	plans := inmem.NewPlanRepository()
	events := inmem.NewEventRepository()
	planner := &stubReplanner{err: errors.New("model unavailable")}
	mgr := NewManager(planner, plans, events, 2, 10)
	p := replanFixture()

	err := mgr.HandleFailure(context.Background(), p, 1, models.ReplanTriggerStepFailed, "tool_error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}
