// Package models defines the domain entities shared across the agent-core
// runtime: plans and their steps, memory records, trace events, and the
// request/response types exchanged with the HTTP boundary.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanStatus is the lifecycle status of a whole plan.
type PlanStatus string

const (
	PlanStatusPending    PlanStatus = "pending"
	PlanStatusPlanning   PlanStatus = "planning"
	PlanStatusExecuting  PlanStatus = "executing"
	PlanStatusReplanning PlanStatus = "replanning"
	PlanStatusComplete   PlanStatus = "complete"
	PlanStatusFailed     PlanStatus = "failed"
)

// IsValid reports whether s is a known plan status.
func (s PlanStatus) IsValid() bool {
	switch s {
	case PlanStatusPending, PlanStatusPlanning, PlanStatusExecuting,
		PlanStatusReplanning, PlanStatusComplete, PlanStatusFailed:
		return true
	}
	return false
}

// StepStatus is the lifecycle status of a single plan step.
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusRunning  StepStatus = "running"
	StepStatusComplete StepStatus = "complete"
	StepStatusFailed   StepStatus = "failed"
)

// IsValid reports whether s is a known step status.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusComplete, StepStatusFailed:
		return true
	}
	return false
}

// ReplanTrigger identifies what caused a replan attempt.
type ReplanTrigger string

const (
	ReplanTriggerStepFailed        ReplanTrigger = "step_failed"
	ReplanTriggerInsufficient      ReplanTrigger = "insufficient"
	ReplanTriggerContractViolation ReplanTrigger = "contract_violation"
)

// ReturnSpec declares the output shape a step must produce. Shape maps field
// names to type labels ("string", "int", "array", ...); Reason documents why
// downstream steps need the output.
type ReturnSpec struct {
	Shape  map[string]any `json:"shape"`
	Reason string         `json:"reason"`
}

// PlanStep is one typed sub-task within a plan.
type PlanStep struct {
	StepIndex     int        `json:"step_index"`
	Task          string     `json:"task"`
	Skills        []string   `json:"skills"`
	ReturnSpec    ReturnSpec `json:"return_spec"`
	InputFromStep *int       `json:"input_from_step,omitempty"`
	Status        StepStatus `json:"status"`
	TaskID        string     `json:"task_id,omitempty"`
	MemoryKey     string     `json:"memory_key,omitempty"`
	Validated     bool       `json:"validated"`
	FailureReason string     `json:"failure_reason,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// ReplanEvent records one replan attempt in the plan history.
type ReplanEvent struct {
	Attempt    int           `json:"attempt"`
	Trigger    ReplanTrigger `json:"trigger"`
	FailedStep int           `json:"failed_step"`
	Reason     string        `json:"reason"`
	RevisedAt  time.Time     `json:"revised_at"`
}

// Plan is an ordered sequence of steps owned by a single session.
// A Plan exclusively owns its Steps and ReplanHistory.
type Plan struct {
	PlanID        string        `json:"plan_id"`
	TenantID      string        `json:"tenant_id"`
	UserID        string        `json:"user_id"`
	SessionID     string        `json:"session_id"`
	Status        PlanStatus    `json:"status"`
	Steps         []*PlanStep   `json:"steps"`
	ReplanCount   int           `json:"replan_count"`
	ReplanHistory []ReplanEvent `json:"replan_history"`
	CreatedAt     time.Time     `json:"created_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// NewPlan creates a pending plan with a generated id (always ≤ 20 chars).
func NewPlan(tenantID, userID, sessionID string, steps []*PlanStep) *Plan {
	return &Plan{
		PlanID:        NewPlanID(),
		TenantID:      tenantID,
		UserID:        userID,
		SessionID:     sessionID,
		Status:        PlanStatusPending,
		Steps:         steps,
		ReplanHistory: []ReplanEvent{},
		CreatedAt:     time.Now().UTC(),
	}
}

// NewPlanID generates a short plan identifier: "plan_" + 12 hex chars.
// Always ≤ 20 chars, satisfying the plan_id length invariant.
func NewPlanID() string {
	return "plan_" + randomHex(12)
}

// NewRuntimePlanID generates the request-level plan id used by the runtime
// orchestrator: "plan_adk_" + 12 hex chars.
func NewRuntimePlanID() string {
	return "plan_adk_" + randomHex(12)
}

// NewTaskID generates the task identifier stamped on a step when it starts
// running.
func NewTaskID() string {
	return "task_" + randomHex(10)
}

// NewEventID generates an event document identifier.
func NewEventID() string {
	return "evt_" + randomHex(32)
}

func randomHex(n int) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	for len(hex) < n {
		hex += strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return hex[:n]
}

// CompletedSteps returns the steps with status complete, in plan order.
func (p *Plan) CompletedSteps() []*PlanStep {
	var out []*PlanStep
	for _, step := range p.Steps {
		if step.Status == StepStatusComplete {
			out = append(out, step)
		}
	}
	return out
}

// StepExecutionResult is the outcome an executor agent reports for one step.
// Status is "ok", "insufficient", or "failed".
type StepExecutionResult struct {
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
}

// DiscoveryCall is one skill-discovery tool invocation the planner made
// while producing its steps, replayed into the policy state afterwards.
type DiscoveryCall struct {
	Tool     string `json:"tool"`
	Response string `json:"response,omitempty"`
}

// PlannerOutput is the step list produced by a planner agent, together with
// the discovery tools it was offered and the discovery calls it made.
type PlannerOutput struct {
	Steps          []*PlanStep     `json:"steps"`
	AvailableTools []string        `json:"available_tools,omitempty"`
	Discovery      []DiscoveryCall `json:"discovery,omitempty"`
}

// AgentRunRequest is one user request routed into the runtime.
type AgentRunRequest struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// AgentRunResponse is the final result returned to the caller.
type AgentRunResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
	PlanID   string `json:"plan_id"`
}
