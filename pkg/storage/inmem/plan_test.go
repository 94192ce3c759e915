package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

func TestPlanRepository_SaveStoresDeepCopy(t *testing.T) {
	repo := NewPlanRepository()
	ctx := context.Background()

	plan := models.NewPlan("acme", "user-1", "sess-1", []*models.PlanStep{
		{StepIndex: 0, Task: "summarize costs", Status: models.StepStatusPending},
	})
	require.NoError(t, repo.Save(ctx, plan))

	// Mutations after Save must not leak into the stored copy.
	plan.Steps[0].Status = models.StepStatusComplete
	plan.Status = models.PlanStatusFailed

	stored, err := repo.Get(ctx, plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusPending, stored.Status)
	assert.Equal(t, models.StepStatusPending, stored.Steps[0].Status)
}

func TestPlanRepository_GetReturnsCopy(t *testing.T) {
	repo := NewPlanRepository()
	ctx := context.Background()

	plan := models.NewPlan("acme", "user-1", "sess-1", []*models.PlanStep{
		{StepIndex: 0, Task: "summarize costs", Status: models.StepStatusPending},
	})
	require.NoError(t, repo.Save(ctx, plan))

	first, err := repo.Get(ctx, plan.PlanID)
	require.NoError(t, err)
	first.Steps[0].Status = models.StepStatusFailed

	second, err := repo.Get(ctx, plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusPending, second.Steps[0].Status)
}

func TestPlanRepository_GetUnknownPlan(t *testing.T) {
	repo := NewPlanRepository()

	_, err := repo.Get(context.Background(), "plan_missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
