// Package agent implements the coordinator graph and its specialists: the
// planner and executor agent ports (mock and model-backed variants), the
// memory and communicator sub-agents, and the coordinator loop that streams
// delegation events through the policy engine.
package agent

import (
	"context"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/tools"
)

// PlannerAgent produces and revises plans.
type PlannerAgent interface {
	CreatePlan(ctx context.Context, req *models.AgentRunRequest, maxSteps int) (*models.PlannerOutput, error)
	Replan(ctx context.Context, completed []*models.PlanStep, failed *models.PlanStep, reason string) ([]*models.PlanStep, error)
}

// ExecutorAgent runs one plan step and reports its outcome. The request's
// RuntimeContext gives the model-backed variant its local infra tools.
type ExecutorAgent interface {
	ExecuteStep(ctx context.Context, rc *tools.RuntimeContext, req *models.AgentRunRequest, plan *models.Plan, step *models.PlanStep) (*models.StepExecutionResult, error)
}

// FunctionCall is a tool invocation surfaced in the event stream.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse is a tool result surfaced in the event stream.
type FunctionResponse struct {
	Name     string `json:"name"`
	Response any    `json:"response"`
}

// StreamEvent is one coordinator-graph event mirrored to the trace log and
// consumed by the runtime's response selection.
type StreamEvent struct {
	Author            string
	IsFinal           bool
	Text              string
	FunctionCalls     []FunctionCall
	FunctionResponses []FunctionResponse
}
