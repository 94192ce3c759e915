package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Shubhamnegi/agent-core/pkg/agent"
	"github.com/Shubhamnegi/agent-core/pkg/config"
	"github.com/Shubhamnegi/agent-core/pkg/largeresponse"
	"github.com/Shubhamnegi/agent-core/pkg/llm"
	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/policy"
	"github.com/Shubhamnegi/agent-core/pkg/sandbox"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
	"github.com/Shubhamnegi/agent-core/pkg/tools"
)

// Orchestrator owns the per-request lifecycle: session ensure and first-turn
// detection, policy flag derivation from the user message, the coordinator
// event stream, event mirroring, memory-usage disclosure, and final response
// selection.
type Orchestrator struct {
	sessions storage.SessionStore
	events   storage.EventRepository
	engine   *policy.Engine
	flow     *ExecutionFlow

	llm         llm.Client
	agentModels *config.AgentModels

	memorySub       *agent.SubAgent
	communicatorSub *agent.SubAgent

	memory    storage.MemoryRepository
	comm      *config.CommunicationConfig
	tempFiles *largeresponse.TempFileRegistry
	sandbox   *sandbox.Executor

	logger *slog.Logger
}

// OrchestratorDeps carries the collaborators the orchestrator is wired with.
type OrchestratorDeps struct {
	Sessions    storage.SessionStore
	Events      storage.EventRepository
	Engine      *policy.Engine
	Flow        *ExecutionFlow
	LLM         llm.Client
	AgentModels *config.AgentModels
	Memory      storage.MemoryRepository
	Comm        *config.CommunicationConfig
	TempFiles   *largeresponse.TempFileRegistry
	Sandbox     *sandbox.Executor
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		sessions:        deps.Sessions,
		events:          deps.Events,
		engine:          deps.Engine,
		flow:            deps.Flow,
		llm:             deps.LLM,
		agentModels:     deps.AgentModels,
		memorySub:       agent.NewMemorySubAgent(deps.LLM, deps.AgentModels.ModelFor(config.RoleMemory), deps.Engine),
		communicatorSub: agent.NewCommunicatorSubAgent(deps.LLM, deps.AgentModels.ModelFor(config.RoleCommunicator), deps.Engine),
		memory:          deps.Memory,
		comm:            deps.Comm,
		tempFiles:       deps.TempFiles,
		sandbox:         deps.Sandbox,
		logger:          slog.Default().With("component", "orchestrator"),
	}
}

// runState is the request-scoped outcome shared between the coordinator's
// transfer handlers and the surrounding run.
type runState struct {
	req      *models.AgentRunRequest
	plan     *models.Plan
	response string
	failure  error
}

// Run handles one end-to-end request. Structured failures from plan
// validation or replan exhaustion propagate to the caller for HTTP 422
// shaping.
func (o *Orchestrator) Run(ctx context.Context, req *models.AgentRunRequest) (*models.AgentRunResponse, error) {
	created, err := o.sessions.Ensure(ctx, req.TenantID, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}
	isFirstTurn := created
	planID := models.NewRuntimePlanID()

	memoryDisabled := messageDisablesMemoryUsage(req.Message)
	requiresPrecheck := (isFirstTurn || messageRequestsMemoryLookup(req.Message)) && !memoryDisabled

	tc := policy.NewTraceContext(req.TenantID, req.SessionID, planID, isFirstTurn, !memoryDisabled, requiresPrecheck)
	rc := &tools.RuntimeContext{
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		PlanID:    planID,
		Memory:    o.memory,
		Comm:      o.comm,
		TempFiles: o.tempFiles,
		Sandbox:   o.sandbox,
	}

	o.appendEvent(ctx, req, planID, models.EventUserMessageReceived, map[string]any{
		"message_size":  len(req.Message),
		"is_first_turn": isFirstTurn,
	})

	state := &runState{req: req}
	var events []agent.StreamEvent
	var runErr error
	if o.llm == nil {
		events = o.runDirect(ctx, tc, rc, state)
	} else {
		coordinator := agent.NewCoordinator(
			o.llm,
			o.agentModels.ModelFor(config.RoleCoordinator),
			o.engine,
			map[string]agent.TransferHandler{
				policy.AgentPlanner:      o.plannerHandler(state),
				policy.AgentExecutor:     o.executorHandler(state),
				policy.AgentMemory:       agent.SubAgentHandler(o.memorySub),
				policy.AgentCommunicator: agent.SubAgentHandler(o.communicatorSub),
			},
		)
		events, runErr = coordinator.Run(ctx, tc, rc, req.Message)
	}

	var metadata memoryUsageMetadata
	for _, event := range events {
		o.mirrorEvent(ctx, req, planID, event)
		metadata = metadata.merge(extractMemoryUsageMetadata(event.FunctionResponses))
	}

	if state.failure != nil {
		return nil, state.failure
	}
	if runErr != nil {
		return nil, runErr
	}

	response := sanitizeUserResponse(selectResponseText(events))
	response = applyMemoryDisclosure(response, metadata, memoryDisabled)

	o.indexSession(ctx, req)

	return &models.AgentRunResponse{
		Status:   "complete",
		Response: response,
		PlanID:   planID,
	}, nil
}

// plannerHandler creates and persists the plan for this request, then replays
// the planner's discovery calls into the policy state so later executor
// transfers see them. Validation failures are recorded on the run state so
// they reach the HTTP boundary.
func (o *Orchestrator) plannerHandler(state *runState) agent.TransferHandler {
	return func(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, message string) ([]agent.StreamEvent, string, error) {
		p, output, err := o.flow.CreatePlan(ctx, state.req)
		if err != nil {
			state.failure = err
			return nil, "", err
		}
		state.plan = p
		o.engine.RecordPlannerToolset(tc, output.AvailableTools)

		var events []agent.StreamEvent
		if len(output.Discovery) > 0 {
			discovery := agent.StreamEvent{Author: policy.AgentPlanner}
			for _, call := range output.Discovery {
				o.engine.RecordToolCall(tc, policy.AgentPlanner, call.Tool)
				o.engine.RecordToolResponse(tc, policy.AgentPlanner, call.Tool, call.Response)
				discovery.FunctionCalls = append(discovery.FunctionCalls, agent.FunctionCall{Name: call.Tool})
				discovery.FunctionResponses = append(discovery.FunctionResponses, agent.FunctionResponse{Name: call.Tool, Response: call.Response})
			}
			events = append(events, discovery)
		}

		summary := fmt.Sprintf("Plan %s created with %d steps.", p.PlanID, len(p.Steps))
		events = append(events, agent.StreamEvent{Author: policy.AgentPlanner, IsFinal: true, Text: summary})
		return events, summary, nil
	}
}

// executorHandler runs the persisted plan through the deterministic execution
// loop. Replan exhaustion is recorded on the run state.
func (o *Orchestrator) executorHandler(state *runState) agent.TransferHandler {
	return func(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, message string) ([]agent.StreamEvent, string, error) {
		if state.plan == nil {
			return nil, "", fmt.Errorf("no plan exists for this request; delegate to the planner first")
		}
		response, err := o.flow.ExecutePlan(ctx, rc, state.req, state.plan)
		if err != nil {
			state.failure = err
			return nil, "", err
		}
		state.response = response
		events := []agent.StreamEvent{{Author: policy.AgentExecutor, IsFinal: true, Text: response}}
		return events, response, nil
	}
}

// runDirect is the deterministic path used when no model client is wired
// (the in-memory profile and tests): plan, execute, answer. Transfers still
// pass through the policy engine; a required memory precheck is satisfied by
// an inline memory search.
func (o *Orchestrator) runDirect(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, state *runState) []agent.StreamEvent {
	var events []agent.StreamEvent

	if block := o.engine.CheckTransfer(tc, policy.AgentCoordinator, policy.AgentPlanner); block != nil && block.Reason == policy.ReasonPrecheckRequired {
		o.engine.RecordTransfer(tc, policy.AgentCoordinator, policy.AgentMemory)
		call := agent.FunctionCall{Name: "search_relevant_memory", Args: map[string]any{"query": state.req.Message, "scope": string(models.ScopeUser)}}
		result, err := tools.SearchRelevantMemory(ctx, rc, state.req.Message, models.ScopeUser, 5)
		if err != nil {
			result = policy.NormalizeToolError("search_relevant_memory", err)
		}
		events = append(events, agent.StreamEvent{
			Author:            policy.AgentMemory,
			FunctionCalls:     []agent.FunctionCall{call},
			FunctionResponses: []agent.FunctionResponse{{Name: call.Name, Response: result}},
		})
	}

	if block := o.engine.CheckTransfer(tc, policy.AgentCoordinator, policy.AgentPlanner); block != nil {
		events = append(events, agent.StreamEvent{Author: policy.AgentCoordinator, IsFinal: true, Text: "Delegation blocked: " + block.Reason})
		return events
	}
	o.engine.RecordTransfer(tc, policy.AgentCoordinator, policy.AgentPlanner)
	plannerEvents, _, err := o.plannerHandler(state)(ctx, tc, rc, state.req.Message)
	events = append(events, plannerEvents...)
	if err != nil {
		return events
	}

	if block := o.engine.CheckTransfer(tc, policy.AgentCoordinator, policy.AgentExecutor); block != nil {
		events = append(events, agent.StreamEvent{Author: policy.AgentCoordinator, IsFinal: true, Text: "Delegation blocked: " + block.Reason})
		return events
	}
	o.engine.RecordTransfer(tc, policy.AgentCoordinator, policy.AgentExecutor)
	executorEvents, response, err := o.executorHandler(state)(ctx, tc, rc, state.req.Message)
	events = append(events, executorEvents...)
	if err != nil {
		return events
	}

	events = append(events, agent.StreamEvent{Author: policy.AgentCoordinator, IsFinal: true, Text: response})
	return events
}

// mirrorEvent persists one stream event to the trace log.
func (o *Orchestrator) mirrorEvent(ctx context.Context, req *models.AgentRunRequest, planID string, event agent.StreamEvent) {
	payload := map[string]any{
		"author":            event.Author,
		"text_preview":      event.Text,
		"is_final_response": event.IsFinal,
	}
	if len(event.FunctionCalls) > 0 {
		calls := make([]any, 0, len(event.FunctionCalls))
		for _, call := range event.FunctionCalls {
			calls = append(calls, map[string]any{"name": call.Name, "args": call.Args})
		}
		payload["function_calls"] = calls
	}
	if len(event.FunctionResponses) > 0 {
		responses := make([]any, 0, len(event.FunctionResponses))
		for _, response := range event.FunctionResponses {
			responses = append(responses, map[string]any{"name": response.Name, "response": response.Response})
		}
		payload["function_responses"] = responses
	}
	o.appendEvent(ctx, req, planID, models.EventAgentEvent, payload)
}

// indexSession re-upserts the session after the run so cross-session search
// sees the latest activity.
func (o *Orchestrator) indexSession(ctx context.Context, req *models.AgentRunRequest) {
	record := &storage.SessionRecord{
		SessionID: req.SessionID,
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		State: map[string]any{
			"tenant_id":  req.TenantID,
			"user_id":    req.UserID,
			"session_id": req.SessionID,
		},
	}
	if err := o.sessions.Upsert(ctx, record); err != nil {
		o.logger.Error("failed to index session", "session_id", req.SessionID, "error", err)
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, req *models.AgentRunRequest, planID, eventType string, payload map[string]any) {
	event := &models.EventRecord{
		EventType: eventType,
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		PlanID:    planID,
		Payload:   payload,
	}
	if err := o.events.Append(ctx, event); err != nil {
		o.logger.Error("failed to append event", "event_type", eventType, "error", err)
	}
}
