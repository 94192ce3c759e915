package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// Replanner revises the failed step given the execution history. Implemented
// by both the model-backed and mock planner agents.
type Replanner interface {
	Replan(ctx context.Context, completed []*models.PlanStep, failed *models.PlanStep, reason string) ([]*models.PlanStep, error)
}

// ReplanLimitError is the budget-exhaustion failure surfaced as HTTP 422.
type ReplanLimitError struct {
	failure map[string]any
}

func (e *ReplanLimitError) Error() string {
	return "max replan attempts reached"
}

func (e *ReplanLimitError) Failure() map[string]any {
	return e.failure
}

// Manager drives bounded replanning: on a step failure it either revises the
// plan through the planner or, once the budget is spent, fails the plan with
// a structured failure object.
type Manager struct {
	planner    Replanner
	plans      storage.PlanRepository
	events     storage.EventRepository
	maxReplans int
	maxSteps   int
	logger     *slog.Logger
}

func NewManager(planner Replanner, plans storage.PlanRepository, events storage.EventRepository, maxReplans, maxSteps int) *Manager {
	return &Manager{
		planner:    planner,
		plans:      plans,
		events:     events,
		maxReplans: maxReplans,
		maxSteps:   maxSteps,
		logger:     slog.Default().With("component", "replan_manager"),
	}
}

// HandleFailure processes a failed step at slice position failedIdx. The
// budget is checked before anything else: on exhaustion the plan is failed
// and a ReplanLimitError carrying the shaped failure is returned. Otherwise
// the plan passes through replanning and returns to executing with the merged
// step list completed ++ revised ++ remaining.
func (m *Manager) HandleFailure(ctx context.Context, p *models.Plan, failedIdx int, trigger models.ReplanTrigger, reason string) error {
	failed := p.Steps[failedIdx]

	if p.ReplanCount >= m.maxReplans {
		if err := TransitionPlan(p, models.PlanStatusFailed); err != nil {
			return err
		}
		if err := m.plans.Save(ctx, p); err != nil {
			return err
		}
		m.logger.Warn("replan budget exhausted",
			"plan_id", p.PlanID, "replan_count", p.ReplanCount, "failed_step", failed.StepIndex)
		return &ReplanLimitError{failure: exhaustionFailure(p, failed, reason)}
	}

	if err := TransitionPlan(p, models.PlanStatusReplanning); err != nil {
		return err
	}
	attempt := p.ReplanCount + 1
	m.appendEvent(ctx, p, failed, models.EventReplanTriggered, map[string]any{
		"attempt":     attempt,
		"trigger":     string(trigger),
		"failed_step": failed.StepIndex,
		"reason":      reason,
	})

	completed := p.CompletedSteps()
	revised, err := m.planner.Replan(ctx, completed, failed, reason)
	if err != nil {
		return fmt.Errorf("replanning step %d: %w", failed.StepIndex, err)
	}
	if err := ValidateSteps(revised, m.maxSteps); err != nil {
		return err
	}

	// Pending steps after the failed one survive the merge untouched.
	var remaining []*models.PlanStep
	for i := failedIdx + 1; i < len(p.Steps); i++ {
		if p.Steps[i].Status == models.StepStatusPending {
			remaining = append(remaining, p.Steps[i])
		}
	}
	merged := make([]*models.PlanStep, 0, len(completed)+len(revised)+len(remaining))
	merged = append(merged, completed...)
	for _, step := range revised {
		step.Status = models.StepStatusPending
		merged = append(merged, step)
	}
	merged = append(merged, remaining...)
	for i, step := range merged {
		step.StepIndex = i + 1
	}
	p.Steps = merged

	p.ReplanCount++
	p.ReplanHistory = append(p.ReplanHistory, models.ReplanEvent{
		Attempt:    attempt,
		Trigger:    trigger,
		FailedStep: failed.StepIndex,
		Reason:     reason,
		RevisedAt:  time.Now().UTC(),
	})
	if err := TransitionPlan(p, models.PlanStatusExecuting); err != nil {
		return err
	}
	if err := m.plans.Save(ctx, p); err != nil {
		return err
	}
	m.logger.Info("plan revised",
		"plan_id", p.PlanID, "attempt", attempt, "trigger", trigger, "steps", len(p.Steps))
	return nil
}

func exhaustionFailure(p *models.Plan, failed *models.PlanStep, reason string) map[string]any {
	completed := make([]map[string]any, 0, len(p.Steps))
	for _, step := range p.CompletedSteps() {
		completed = append(completed, map[string]any{
			"step_index": step.StepIndex,
			"task":       step.Task,
			"status":     string(step.Status),
			"memory_key": step.MemoryKey,
		})
	}
	return map[string]any{
		"status":          "failed",
		"reason":          "max replan attempts reached",
		"completed_steps": completed,
		"last_failure": map[string]any{
			"step":   failed.StepIndex,
			"reason": reason,
		},
	}
}

func (m *Manager) appendEvent(ctx context.Context, p *models.Plan, step *models.PlanStep, eventType string, payload map[string]any) {
	event := &models.EventRecord{
		EventType: eventType,
		TenantID:  p.TenantID,
		SessionID: p.SessionID,
		PlanID:    p.PlanID,
		TaskID:    step.TaskID,
		Payload:   payload,
	}
	if err := m.events.Append(ctx, event); err != nil {
		m.logger.Error("failed to append event", "event_type", eventType, "error", err)
	}
}
