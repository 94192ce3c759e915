package inmem

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// PlanRepository keeps plans in a map keyed by plan id. Save stores a deep
// copy so callers can keep mutating their plan between saves; Get returns a
// copy for the same reason.
type PlanRepository struct {
	mu    sync.RWMutex
	plans map[string]*models.Plan
}

func NewPlanRepository() *PlanRepository {
	return &PlanRepository{plans: make(map[string]*models.Plan)}
}

func (r *PlanRepository) Save(ctx context.Context, plan *models.Plan) error {
	copied, err := copyPlan(plan)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[plan.PlanID] = copied
	return nil
}

func (r *PlanRepository) Get(ctx context.Context, planID string) (*models.Plan, error) {
	r.mu.RLock()
	plan, ok := r.plans[planID]
	r.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyPlan(plan)
}

func copyPlan(plan *models.Plan) (*models.Plan, error) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	var out models.Plan
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
