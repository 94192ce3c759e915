// Package runtime drives the request lifecycle: session handling and policy
// flag derivation, the coordinator event stream, the deterministic plan
// execution loop with bounded replanning, response synthesis from memory
// outputs, and the final selection/sanitization/disclosure pass.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Shubhamnegi/agent-core/pkg/agent"
	"github.com/Shubhamnegi/agent-core/pkg/canonical"
	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/plan"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
	"github.com/Shubhamnegi/agent-core/pkg/tools"
)

// ExecutionFlow owns the deterministic plan lifecycle: create and validate the
// plan, run steps in order through the executor agent, branch on each outcome,
// and synthesize the final response from the memory outputs.
type ExecutionFlow struct {
	planner  agent.PlannerAgent
	executor agent.ExecutorAgent
	plans    storage.PlanRepository
	memory   storage.MemoryRepository
	events   storage.EventRepository
	replans  *plan.Manager
	maxSteps int
	logger   *slog.Logger
}

func NewExecutionFlow(
	planner agent.PlannerAgent,
	executor agent.ExecutorAgent,
	plans storage.PlanRepository,
	memory storage.MemoryRepository,
	events storage.EventRepository,
	maxReplans, maxSteps int,
) *ExecutionFlow {
	return &ExecutionFlow{
		planner:  planner,
		executor: executor,
		plans:    plans,
		memory:   memory,
		events:   events,
		replans:  plan.NewManager(planner, plans, events, maxReplans, maxSteps),
		maxSteps: maxSteps,
		logger:   slog.Default().With("component", "execution_flow"),
	}
}

// CreatePlan asks the planner for steps, validates them, and persists the
// plan in executing state. The raw planner output is returned too so the
// caller can replay the discovery calls into the policy state. Validation
// failures carry shaped failure objects for the HTTP boundary.
func (f *ExecutionFlow) CreatePlan(ctx context.Context, req *models.AgentRunRequest) (*models.Plan, *models.PlannerOutput, error) {
	output, err := f.planner.CreatePlan(ctx, req, f.maxSteps)
	if err != nil {
		return nil, nil, err
	}
	if err := plan.ValidateSteps(output.Steps, f.maxSteps); err != nil {
		return nil, nil, err
	}

	p := models.NewPlan(req.TenantID, req.UserID, req.SessionID, output.Steps)
	if err := plan.TransitionPlan(p, models.PlanStatusExecuting); err != nil {
		return nil, nil, err
	}
	if err := f.plans.Save(ctx, p); err != nil {
		return nil, nil, err
	}
	f.appendEvent(ctx, req, p.PlanID, "", models.EventPlanPersisted, map[string]any{
		"steps":  len(p.Steps),
		"status": string(p.Status),
	})
	f.logger.Info("plan persisted", "plan_id", p.PlanID, "steps", len(p.Steps))
	return p, output, nil
}

// ExecutePlan runs steps in order and returns the synthesized response.
// Replan-budget exhaustion propagates as *plan.ReplanLimitError.
func (f *ExecutionFlow) ExecutePlan(ctx context.Context, rc *tools.RuntimeContext, req *models.AgentRunRequest, p *models.Plan) (string, error) {
	stepIndex := plan.NextPendingStepIndex(p)
	for stepIndex < len(p.Steps) {
		step := p.Steps[stepIndex]
		if err := plan.StartStep(step, models.NewTaskID()); err != nil {
			return "", err
		}
		f.appendEvent(ctx, req, p.PlanID, step.TaskID, models.EventStepStarted, map[string]any{
			"step_index": step.StepIndex,
			"skills":     step.Skills,
		})
		if err := f.plans.Save(ctx, p); err != nil {
			return "", err
		}

		execution, err := f.executor.ExecuteStep(ctx, rc, req, p, step)
		if err != nil {
			execution = &models.StepExecutionResult{Status: "failed", Reason: err.Error()}
		}

		switch {
		case execution.Status == "ok" && execution.Data != nil:
			stepIndex, err = f.handleSuccess(ctx, req, p, step, execution, stepIndex)
		case execution.Status == "insufficient":
			stepIndex, err = f.handleInsufficient(ctx, req, p, step, execution, stepIndex)
		default:
			stepIndex, err = f.handleFailed(ctx, req, p, step, execution, stepIndex)
		}
		if err != nil {
			return "", err
		}
	}

	if err := plan.TransitionPlan(p, models.PlanStatusComplete); err != nil {
		return "", err
	}
	if err := f.plans.Save(ctx, p); err != nil {
		return "", err
	}
	return f.synthesize(ctx, p)
}

// handleSuccess gates the output against the return spec, writes it to memory
// under the step's task id, and marks the step complete.
func (f *ExecutionFlow) handleSuccess(ctx context.Context, req *models.AgentRunRequest, p *models.Plan, step *models.PlanStep, execution *models.StepExecutionResult, stepIndex int) (int, error) {
	if !matchesReturnSpec(execution.Data, step.ReturnSpec.Shape) {
		if err := plan.FailStep(step, "contract_violation"); err != nil {
			return 0, err
		}
		f.appendEvent(ctx, req, p.PlanID, step.TaskID, models.EventStepContractViolation, map[string]any{
			"step_index":    step.StepIndex,
			"expected_keys": sortedKeys(step.ReturnSpec.Shape),
			"actual_keys":   sortedKeys(execution.Data),
		})
		if err := f.replans.HandleFailure(ctx, p, stepIndex, models.ReplanTriggerContractViolation, "contract_violation"); err != nil {
			return 0, err
		}
		return plan.NextPendingStepIndex(p), nil
	}

	memoryKey, err := f.memory.Write(ctx, storage.WriteRequest{
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		TaskID:    step.TaskID,
		Label:     fmt.Sprintf("step_%d_output", step.StepIndex),
		Value:     execution.Data,
		Shape:     step.ReturnSpec.Shape,
		Scope:     models.ScopeSession,
	})
	if err != nil {
		return 0, err
	}
	if err := plan.CompleteStep(step, memoryKey); err != nil {
		return 0, err
	}
	f.appendEvent(ctx, req, p.PlanID, step.TaskID, models.EventStepComplete, map[string]any{
		"step_index": step.StepIndex,
		"memory_key": memoryKey,
	})
	if err := f.plans.Save(ctx, p); err != nil {
		return 0, err
	}
	return stepIndex + 1, nil
}

func (f *ExecutionFlow) handleInsufficient(ctx context.Context, req *models.AgentRunRequest, p *models.Plan, step *models.PlanStep, execution *models.StepExecutionResult, stepIndex int) (int, error) {
	reason := execution.Reason
	if reason == "" {
		reason = "insufficient"
	}
	if err := plan.FailStep(step, reason); err != nil {
		return 0, err
	}
	f.appendEvent(ctx, req, p.PlanID, step.TaskID, models.EventStepInsufficient, map[string]any{
		"step_index": step.StepIndex,
		"reason":     step.FailureReason,
		"suggestion": execution.Suggestion,
	})
	if err := f.replans.HandleFailure(ctx, p, stepIndex, models.ReplanTriggerInsufficient, reason); err != nil {
		return 0, err
	}
	return plan.NextPendingStepIndex(p), nil
}

func (f *ExecutionFlow) handleFailed(ctx context.Context, req *models.AgentRunRequest, p *models.Plan, step *models.PlanStep, execution *models.StepExecutionResult, stepIndex int) (int, error) {
	reason := execution.Reason
	if reason == "" {
		reason = "unknown_failure"
	}
	if err := plan.FailStep(step, reason); err != nil {
		return 0, err
	}
	f.appendEvent(ctx, req, p.PlanID, step.TaskID, models.EventStepFailed, map[string]any{
		"step_index": step.StepIndex,
		"reason":     step.FailureReason,
		"suggestion": execution.Suggestion,
	})
	if err := f.replans.HandleFailure(ctx, p, stepIndex, models.ReplanTriggerStepFailed, reason); err != nil {
		return 0, err
	}
	return plan.NextPendingStepIndex(p), nil
}

// synthesize reads the completed steps' outputs (releasing their write locks)
// and builds the final text from the last one.
func (f *ExecutionFlow) synthesize(ctx context.Context, p *models.Plan) (string, error) {
	completed := p.CompletedSteps()

	var outputs []map[string]any
	for _, step := range completed {
		if step.MemoryKey == "" {
			continue
		}
		value, err := f.memory.Read(ctx, step.MemoryKey, true)
		if err != nil {
			f.logger.Warn("failed to read step output", "memory_key", step.MemoryKey, "error", err)
			continue
		}
		outputs = append(outputs, value)
	}

	if len(outputs) == 0 {
		if len(completed) > 0 {
			return "Execution complete.", nil
		}
		return "No steps completed.", nil
	}
	final := outputs[len(outputs)-1]
	if text, ok := final["response_text"].(string); ok && strings.TrimSpace(text) != "" {
		return text, nil
	}
	return "Execution complete. " + canonical.MustMarshal(final), nil
}

// matchesReturnSpec is the execution-side contract gate: every key the return
// spec requires must exist in the output. Type validation happens in the
// memory write pipeline.
func matchesReturnSpec(data, shape map[string]any) bool {
	for key := range shape {
		if _, ok := data[key]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (f *ExecutionFlow) appendEvent(ctx context.Context, req *models.AgentRunRequest, planID, taskID, eventType string, payload map[string]any) {
	event := &models.EventRecord{
		EventType: eventType,
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		PlanID:    planID,
		TaskID:    taskID,
		Payload:   payload,
	}
	if err := f.events.Append(ctx, event); err != nil {
		f.logger.Error("failed to append event", "event_type", eventType, "error", err)
	}
}
