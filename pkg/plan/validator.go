package plan

import (
	"fmt"
	"strings"

	"github.com/Shubhamnegi/agent-core/pkg/models"
)

// Validation failure reason codes.
const (
	ReasonEmptyPlan          = "planner_returned_empty_plan"
	ReasonOverMaxSteps       = "plan_infeasible_over_max_steps"
	ReasonSubagentSpawning   = "subagent_spawning_not_allowed"
	ReasonSpecNotSatisfiable = "planner_return_spec_not_satisfiable"
)

// Skill names containing any of these tokens would let a plan spawn nested
// agents; such plans are rejected outright.
var forbiddenSkillTokens = []string{
	"subagent",
	"spawn_subagent",
	"create_subagent",
	"agent/run",
}

// ValidationError carries the shaped failure object surfaced to the HTTP
// boundary as a 422.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Failure renders the structured failure body.
func (e *ValidationError) Failure() map[string]any {
	failure := map[string]any{
		"status": "failed",
		"reason": e.Reason,
	}
	if e.Detail != "" {
		failure["detail"] = e.Detail
	}
	return failure
}

// ValidateSteps checks a planner-produced step list: non-empty, within the
// step budget, and free of subagent-spawning skills.
func ValidateSteps(steps []*models.PlanStep, maxSteps int) error {
	if len(steps) == 0 {
		return &ValidationError{Reason: ReasonEmptyPlan}
	}
	if maxSteps > 0 && len(steps) > maxSteps {
		return &ValidationError{
			Reason: ReasonOverMaxSteps,
			Detail: fmt.Sprintf("plan has %d steps, max is %d", len(steps), maxSteps),
		}
	}
	for _, step := range steps {
		for _, skill := range step.Skills {
			lower := strings.ToLower(skill)
			for _, token := range forbiddenSkillTokens {
				if strings.Contains(lower, token) {
					return &ValidationError{
						Reason: ReasonSubagentSpawning,
						Detail: fmt.Sprintf("step %d skill %q", step.StepIndex, skill),
					}
				}
			}
		}
	}
	return nil
}
