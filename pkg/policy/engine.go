package policy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Shubhamnegi/agent-core/pkg/canonical"
	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// Veto reason codes, in table order.
const (
	ReasonMemoryToolsReserved     = "memory_tools_reserved_for_memory_subagent"
	ReasonMissingReturnSpec       = "contract_violation: missing return_spec"
	ReasonMemoryTransferSource    = "memory_transfer_allowed_only_from_orchestrator"
	ReasonMemoryMustReturn        = "memory_subagent_must_return_to_orchestrator"
	ReasonCommunicatorSource      = "communicator_transfer_allowed_only_from_orchestrator"
	ReasonMemoryDisabled          = "memory_usage_disabled_by_user"
	ReasonPrecheckRequired        = "memory_precheck_required_before_execution"
	ReasonPlannerRequiredFirst    = "planner_required_before_executor_first_turn"
	ReasonPlannerMustDiscover     = "planner_must_discover_skills_before_executor"
	ReasonPlannerMustLoad         = "planner_must_load_skills_before_executor"
)

// memoryTools are reserved for the memory sub-agent.
var memoryTools = map[string]bool{
	"write_memory":           true,
	"read_memory":            true,
	"save_user_memory":       true,
	"save_action_memory":     true,
	"search_relevant_memory": true,
}

// noSkillsMarkers flag a find_relevant_skill response that matched nothing.
var noSkillsMarkers = []string{
	`"skills": []`,
	`"skill_ids": []`,
	`"matched_skills": []`,
	`"results": []`,
	"no relevant skill",
	"no skills found",
}

// Block is the structured veto returned in place of tool execution.
type Block struct {
	Reason        string
	RequiredAgent string
	RequiredTool  string
}

// ToMap renders the block as a tool result so the model can react to it.
func (b *Block) ToMap() map[string]any {
	out := map[string]any{
		"status": "blocked",
		"reason": b.Reason,
	}
	if b.RequiredAgent != "" {
		out["required_agent"] = b.RequiredAgent
	}
	if b.RequiredTool != "" {
		out["required_tool"] = b.RequiredTool
	}
	return out
}

// Engine evaluates the veto table and mirrors prompt/response telemetry to
// the event log. The veto logic itself is pure; the engine instance is safe
// to share across requests because all mutable state lives in TraceContext.
type Engine struct {
	events storage.EventRepository
	logger *slog.Logger
}

func NewEngine(events storage.EventRepository) *Engine {
	return &Engine{
		events: events,
		logger: slog.Default().With("component", "policy_engine"),
	}
}

// CheckToolCall evaluates the tool-call rows of the veto table for toolName
// invoked by agent. A nil return permits the call.
func (e *Engine) CheckToolCall(tc *TraceContext, agent, toolName string, args map[string]any) *Block {
	if memoryTools[toolName] && agent != AgentMemory {
		return &Block{Reason: ReasonMemoryToolsReserved, RequiredAgent: AgentMemory}
	}
	if toolName == "write_memory" {
		if _, ok := args["return_spec"]; !ok {
			return &Block{Reason: ReasonMissingReturnSpec}
		}
	}
	return nil
}

// CheckTransfer evaluates the transfer rows of the veto table, in order, for
// a transfer_to_agent(dest) originating in src. A nil return permits the
// transfer.
func (e *Engine) CheckTransfer(tc *TraceContext, src, dest string) *Block {
	if dest == AgentMemory && src != AgentCoordinator {
		return &Block{Reason: ReasonMemoryTransferSource}
	}
	if src == AgentMemory && dest != AgentCoordinator {
		return &Block{Reason: ReasonMemoryMustReturn, RequiredAgent: AgentCoordinator}
	}
	if dest == AgentCommunicator && src != AgentCoordinator {
		return &Block{Reason: ReasonCommunicatorSource}
	}
	if dest == AgentMemory && !tc.AllowMemory {
		return &Block{Reason: ReasonMemoryDisabled}
	}
	if (dest == AgentPlanner || dest == AgentExecutor) &&
		tc.RequireMemoryPrecheck && !tc.MemoryPrecheckSeen {
		return &Block{Reason: ReasonPrecheckRequired, RequiredAgent: AgentMemory}
	}
	if dest == AgentExecutor && tc.RequirePlannerFirst && !tc.PlannerTransferSeen {
		return &Block{Reason: ReasonPlannerRequiredFirst, RequiredAgent: AgentPlanner}
	}
	if dest == AgentExecutor && tc.PlannerTransferSeen && !tc.PlannerFindCalled {
		return &Block{Reason: ReasonPlannerMustDiscover, RequiredTool: ToolFindRelevantSkill}
	}
	if dest == AgentExecutor && tc.PlannerTransferSeen && tc.PlannerFindCalled &&
		!tc.PlannerLoadCalled && !tc.PlannerNoSkillsFound {
		return &Block{Reason: ReasonPlannerMustLoad, RequiredTool: ToolLoadInstructions}
	}
	return nil
}

// RecordTransfer updates the trace state after a permitted transfer.
func (e *Engine) RecordTransfer(tc *TraceContext, src, dest string) {
	switch dest {
	case AgentMemory:
		tc.MemoryPrecheckSeen = true
	case AgentPlanner:
		tc.PlannerTransferSeen = true
		tc.PlannerFindCalled = false
		tc.PlannerLoadCalled = false
		tc.PlannerNoSkillsFound = false
	}
}

// RecordPlannerToolset notes the discovery tools the planner was offered and
// the ones it must call before the executor may run.
func (e *Engine) RecordPlannerToolset(tc *TraceContext, available []string) {
	tc.PlannerAvailableTools = available
	tc.PlannerExpectedTools = []string{ToolFindRelevantSkill, ToolLoadInstructions}
}

// RecordToolCall updates the trace state after a permitted tool call.
func (e *Engine) RecordToolCall(tc *TraceContext, agent, toolName string) {
	if agent != AgentPlanner {
		return
	}
	switch toolName {
	case ToolFindRelevantSkill:
		tc.PlannerFindCalled = true
	case ToolLoadInstruction, ToolLoadInstructions:
		tc.PlannerLoadCalled = true
	}
}

// RecordToolResponse inspects a tool response body for discovery markers.
func (e *Engine) RecordToolResponse(tc *TraceContext, agent, toolName, serialized string) {
	if agent != AgentPlanner || toolName != ToolFindRelevantSkill {
		return
	}
	lower := strings.ToLower(serialized)
	for _, marker := range noSkillsMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			tc.PlannerNoSkillsFound = true
			return
		}
	}
}

// WrapToolResult tags dict results with the producing tool; non-dict results
// pass through unchanged.
func WrapToolResult(toolName string, result any) any {
	dict, ok := result.(map[string]any)
	if !ok {
		return result
	}
	out := make(map[string]any, len(dict)+1)
	for k, v := range dict {
		out[k] = v
	}
	out["tool_name"] = toolName
	return out
}

// NormalizeToolError converts an uncaught tool error into the uniform failed
// result shape.
func NormalizeToolError(toolName string, err error) map[string]any {
	return map[string]any{
		"status":    "failed",
		"tool_name": toolName,
		"reason":    err.Error(),
	}
}

// OnPrompt persists an adk.prompt event for one model invocation.
func (e *Engine) OnPrompt(ctx context.Context, tc *TraceContext, agent, prompt string, toolNames []string) {
	e.append(ctx, tc, models.EventPrompt, map[string]any{
		"agent":  agent,
		"prompt": prompt,
		"tools":  toolNames,
	})
}

// OnLLMResponse persists an adk.llm_response event for one model response.
func (e *Engine) OnLLMResponse(ctx context.Context, tc *TraceContext, agent, text string, toolCalls []map[string]any) {
	payload := map[string]any{
		"agent": agent,
		"text":  text,
	}
	if len(toolCalls) > 0 {
		flattened := make([]any, 0, len(toolCalls))
		for _, call := range toolCalls {
			flattened = append(flattened, map[string]any{
				"name":      call["name"],
				"args_json": canonical.MustMarshal(call["args"]),
			})
		}
		payload["tool_calls"] = flattened
	}
	e.append(ctx, tc, models.EventLLMResponse, payload)
}

func (e *Engine) append(ctx context.Context, tc *TraceContext, eventType string, payload map[string]any) {
	event := &models.EventRecord{
		EventType: eventType,
		TenantID:  tc.Tenant,
		SessionID: tc.Session,
		PlanID:    tc.PlanID,
		Payload:   payload,
	}
	if err := e.events.Append(ctx, event); err != nil {
		e.logger.Error("failed to append trace event", "event_type", eventType, "error", err)
	}
}
