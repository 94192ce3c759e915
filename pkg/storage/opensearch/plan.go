package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/models"
)

// PlanRepository persists plans as flat documents with the step list and
// replan history flattened to JSON strings.
type PlanRepository struct {
	client *Client
}

func NewPlanRepository(client *Client) *PlanRepository {
	return &PlanRepository{client: client}
}

func (r *PlanRepository) Save(ctx context.Context, plan *models.Plan) error {
	stepsJSON, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("encoding plan steps: %w", err)
	}
	historyJSON, err := json.Marshal(plan.ReplanHistory)
	if err != nil {
		return fmt.Errorf("encoding replan history: %w", err)
	}
	doc := map[string]any{
		"plan_id":             plan.PlanID,
		"tenant_id":           plan.TenantID,
		"user_id":             plan.UserID,
		"session_id":          plan.SessionID,
		"status":              string(plan.Status),
		"steps_json":          string(stepsJSON),
		"replan_count":        plan.ReplanCount,
		"replan_history_json": string(historyJSON),
		"created_at":          plan.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if plan.CompletedAt != nil {
		doc["completed_at"] = plan.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return r.client.indexDoc(ctx, r.client.PlansIndex(), "plans", plan.PlanID, doc)
}

func (r *PlanRepository) Get(ctx context.Context, planID string) (*models.Plan, error) {
	doc, err := r.client.getDoc(ctx, r.client.PlansIndex(), planID)
	if err != nil {
		return nil, err
	}
	plan := &models.Plan{
		PlanID:    stringField(doc, "plan_id"),
		TenantID:  stringField(doc, "tenant_id"),
		UserID:    stringField(doc, "user_id"),
		SessionID: stringField(doc, "session_id"),
		Status:    models.PlanStatus(stringField(doc, "status")),
	}
	if raw := stringField(doc, "steps_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &plan.Steps); err != nil {
			return nil, fmt.Errorf("decoding plan steps: %w", err)
		}
	}
	if raw := stringField(doc, "replan_history_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &plan.ReplanHistory); err != nil {
			return nil, fmt.Errorf("decoding replan history: %w", err)
		}
	}
	if n, ok := doc["replan_count"].(float64); ok {
		plan.ReplanCount = int(n)
	}
	if t, err := time.Parse(time.RFC3339Nano, stringField(doc, "created_at")); err == nil {
		plan.CreatedAt = t
	}
	if raw := stringField(doc, "completed_at"); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			plan.CompletedAt = &t
		}
	}
	return plan, nil
}
