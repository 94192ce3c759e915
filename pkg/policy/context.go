// Package policy implements the delegation policy engine: the request-scoped
// trace context, the transfer and tool-call veto table, and the trace event
// mirroring around prompts and model responses.
package policy

// Agent names in the coordinator graph.
const (
	AgentCoordinator  = "coordinator"
	AgentPlanner      = "planner"
	AgentExecutor     = "executor"
	AgentMemory       = "memory"
	AgentCommunicator = "communicator"
)

// Planner discovery tool names.
const (
	ToolFindRelevantSkill = "find_relevant_skill"
	ToolLoadInstruction   = "load_instruction"
	ToolLoadInstructions  = "load_instructions"
)

// TraceContext is the per-request policy state. It lives from request start
// to request end and is never shared across requests.
type TraceContext struct {
	Tenant  string
	Session string
	PlanID  string

	RequirePlannerFirst   bool
	AllowMemory           bool
	RequireMemoryPrecheck bool

	MemoryPrecheckSeen    bool
	PlannerTransferSeen   bool
	PlannerFindCalled     bool
	PlannerLoadCalled     bool
	PlannerNoSkillsFound  bool
	PlannerExpectedTools  []string
	PlannerAvailableTools []string
}

// NewTraceContext creates the policy state for one request.
func NewTraceContext(tenant, session, planID string, firstTurn, allowMemory, requirePrecheck bool) *TraceContext {
	return &TraceContext{
		Tenant:                tenant,
		Session:               session,
		PlanID:                planID,
		RequirePlannerFirst:   firstTurn,
		AllowMemory:           allowMemory,
		RequireMemoryPrecheck: requirePrecheck,
	}
}
