// Package plan implements plan lifecycle logic: the step and plan state
// machines, the plan validator, and the bounded replan manager.
package plan

import (
	"fmt"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/models"
)

// IllegalTransitionError is returned for any transition outside the legal set.
type IllegalTransitionError struct {
	From string
	To   string
	Kind string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition: %s -> %s", e.Kind, e.From, e.To)
}

// StartStep transitions a step pending -> running: stamps started_at, clears
// finished_at, and assigns the task id exactly once.
func StartStep(step *models.PlanStep, taskID string) error {
	if step.Status != models.StepStatusPending {
		return &IllegalTransitionError{Kind: "step", From: string(step.Status), To: string(models.StepStatusRunning)}
	}
	now := time.Now().UTC()
	step.Status = models.StepStatusRunning
	step.StartedAt = &now
	step.FinishedAt = nil
	if step.TaskID == "" {
		step.TaskID = taskID
	}
	return nil
}

// CompleteStep transitions a step running -> complete and records the memory
// key the validated output was written under.
func CompleteStep(step *models.PlanStep, memoryKey string) error {
	if step.Status != models.StepStatusRunning {
		return &IllegalTransitionError{Kind: "step", From: string(step.Status), To: string(models.StepStatusComplete)}
	}
	now := time.Now().UTC()
	step.Status = models.StepStatusComplete
	step.MemoryKey = memoryKey
	step.Validated = true
	step.FinishedAt = &now
	return nil
}

// FailStep transitions a step running -> failed with the failure reason.
func FailStep(step *models.PlanStep, reason string) error {
	if step.Status != models.StepStatusRunning {
		return &IllegalTransitionError{Kind: "step", From: string(step.Status), To: string(models.StepStatusFailed)}
	}
	now := time.Now().UTC()
	step.Status = models.StepStatusFailed
	step.FailureReason = reason
	step.FinishedAt = &now
	return nil
}

// planTransitions is the legal plan-level status graph.
var planTransitions = map[models.PlanStatus][]models.PlanStatus{
	models.PlanStatusPending:    {models.PlanStatusPlanning, models.PlanStatusExecuting, models.PlanStatusFailed},
	models.PlanStatusPlanning:   {models.PlanStatusExecuting, models.PlanStatusFailed},
	models.PlanStatusExecuting:  {models.PlanStatusReplanning, models.PlanStatusComplete, models.PlanStatusFailed},
	models.PlanStatusReplanning: {models.PlanStatusExecuting, models.PlanStatusFailed},
}

// TransitionPlan moves the plan to target, stamping completed_at on the
// terminal complete transition.
func TransitionPlan(p *models.Plan, target models.PlanStatus) error {
	for _, allowed := range planTransitions[p.Status] {
		if allowed == target {
			p.Status = target
			if target == models.PlanStatusComplete || target == models.PlanStatusFailed {
				now := time.Now().UTC()
				p.CompletedAt = &now
			}
			return nil
		}
	}
	return &IllegalTransitionError{Kind: "plan", From: string(p.Status), To: string(target)}
}

// NextPendingStepIndex returns the position of the first step that is not
// complete, or len(steps) when every step is done. Used to resume execution
// after a replan merge.
func NextPendingStepIndex(p *models.Plan) int {
	for i, step := range p.Steps {
		if step.Status != models.StepStatusComplete {
			return i
		}
	}
	return len(p.Steps)
}
