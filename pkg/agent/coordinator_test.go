package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhamnegi/agent-core/pkg/llm"
	"github.com/Shubhamnegi/agent-core/pkg/policy"
	"github.com/Shubhamnegi/agent-core/pkg/storage/inmem"
	"github.com/Shubhamnegi/agent-core/pkg/tools"
)

func transferCall(id, agentName, message string) llm.ToolCall {
	return llm.ToolCall{
		ID:   id,
		Name: transferToolName,
		Args: map[string]any{"agent_name": agentName, "message": message},
	}
}

func TestCoordinator_BlockedTransferFedBackToModel(t *testing.T) {
	events := inmem.NewEventRepository()
	engine := policy.NewEngine(events)
	// First turn: the executor is vetoed until the planner has run.
	tc := policy.NewTraceContext("acme", "sess-1", "plan_adk_000000000001", true, true, false)
	rc := &tools.RuntimeContext{TenantID: "acme", SessionID: "sess-1", PlanID: tc.PlanID}

	var plannerMessages []string
	handlers := map[string]TransferHandler{
		policy.AgentPlanner: func(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, message string) ([]StreamEvent, string, error) {
			plannerMessages = append(plannerMessages, message)
			// The model-backed planner performs discovery during its turn.
			engine.RecordToolCall(tc, policy.AgentPlanner, policy.ToolFindRelevantSkill)
			engine.RecordToolCall(tc, policy.AgentPlanner, policy.ToolLoadInstructions)
			return []StreamEvent{{Author: policy.AgentPlanner, IsFinal: true, Text: "Plan created."}}, "Plan created.", nil
		},
		policy.AgentExecutor: func(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, message string) ([]StreamEvent, string, error) {
			return []StreamEvent{{Author: policy.AgentExecutor, IsFinal: true, Text: "Executed."}}, "Executed.", nil
		},
	}

	client := llm.NewScriptedClient(
		// The model jumps straight to the executor and gets vetoed.
		&llm.Completion{ToolCalls: []llm.ToolCall{transferCall("1", policy.AgentExecutor, "run the plan")}},
		// It reacts to the block by delegating to the planner first.
		&llm.Completion{ToolCalls: []llm.ToolCall{transferCall("2", policy.AgentPlanner, "plan the request")}},
		&llm.Completion{ToolCalls: []llm.ToolCall{transferCall("3", policy.AgentExecutor, "run the plan")}},
		&llm.Completion{Text: "All done."},
	)
	coordinator := NewCoordinator(client, "mock", engine, handlers)

	stream, err := coordinator.Run(context.Background(), tc, rc, "summarize costs")
	require.NoError(t, err)

	// The vetoed transfer surfaced as a blocked tool result.
	blocked, ok := stream[0].FunctionResponses[0].Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "blocked", blocked["status"])
	assert.Equal(t, policy.ReasonPlannerRequiredFirst, blocked["reason"])
	assert.Equal(t, policy.AgentPlanner, blocked["required_agent"])

	assert.Equal(t, []string{"plan the request"}, plannerMessages)

	final := stream[len(stream)-1]
	assert.Equal(t, policy.AgentCoordinator, final.Author)
	assert.True(t, final.IsFinal)
	assert.Equal(t, "All done.", final.Text)

	// Specialist events are interleaved into the stream.
	var authors []string
	for _, event := range stream {
		authors = append(authors, event.Author)
	}
	assert.Contains(t, authors, policy.AgentPlanner)
	assert.Contains(t, authors, policy.AgentExecutor)
}

func TestCoordinator_UnknownAgent(t *testing.T) {
	engine := policy.NewEngine(inmem.NewEventRepository())
	tc := policy.NewTraceContext("acme", "sess-1", "plan_x", false, true, false)
	rc := &tools.RuntimeContext{}

	client := llm.NewScriptedClient(
		&llm.Completion{ToolCalls: []llm.ToolCall{transferCall("1", "optimizer", "go")}},
		&llm.Completion{Text: "Cannot delegate."},
	)
	coordinator := NewCoordinator(client, "mock", engine, map[string]TransferHandler{})

	stream, err := coordinator.Run(context.Background(), tc, rc, "hello")
	require.NoError(t, err)

	result, ok := stream[0].FunctionResponses[0].Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "failed", result["status"])
	assert.Contains(t, result["reason"], "optimizer")
}

func TestCoordinator_BudgetExhausted(t *testing.T) {
	engine := policy.NewEngine(inmem.NewEventRepository())
	tc := policy.NewTraceContext("acme", "sess-1", "plan_x", false, true, false)
	rc := &tools.RuntimeContext{}

	completions := make([]*llm.Completion, 0, coordinatorMaxIterations)
	for i := 0; i < coordinatorMaxIterations; i++ {
		completions = append(completions, &llm.Completion{
			ToolCalls: []llm.ToolCall{transferCall("x", "nobody", "loop")},
		})
	}
	coordinator := NewCoordinator(llm.NewScriptedClient(completions...), "mock", engine, map[string]TransferHandler{})

	stream, err := coordinator.Run(context.Background(), tc, rc, "hello")
	require.NoError(t, err)
	final := stream[len(stream)-1]
	assert.True(t, final.IsFinal)
	assert.Equal(t, "Stopped: delegation budget exhausted.", final.Text)
}

func TestSubAgentHandler_UsesFinalText(t *testing.T) {
	engine := policy.NewEngine(inmem.NewEventRepository())
	tc := policy.NewTraceContext("acme", "sess-1", "plan_x", false, true, false)
	memory := inmem.NewMemoryRepository()
	rc := &tools.RuntimeContext{TenantID: "acme", SessionID: "sess-1", PlanID: "plan_x", Memory: memory}

	client := llm.NewScriptedClient(
		&llm.Completion{ToolCalls: []llm.ToolCall{{
			ID:   "1",
			Name: "search_relevant_memory",
			Args: map[string]any{"query": "preferences", "scope": "user"},
		}}},
		&llm.Completion{Text: "No saved preferences found."},
	)
	sub := NewMemorySubAgent(client, "mock", engine)
	handler := SubAgentHandler(sub)

	events, summary, err := handler(context.Background(), tc, rc, "check the user's preferences")
	require.NoError(t, err)
	assert.Equal(t, "No saved preferences found.", summary)
	require.Len(t, events, 2)
	assert.Equal(t, policy.AgentMemory, events[0].Author)

	result, ok := events[0].FunctionResponses[0].Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, "search_relevant_memory", result["tool_name"])
}
