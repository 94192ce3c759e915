package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhamnegi/agent-core/pkg/storage/inmem"
)

func newTestEngine() *Engine {
	return NewEngine(inmem.NewEventRepository())
}

func TestCheckToolCall(t *testing.T) {
	engine := newTestEngine()
	tc := NewTraceContext("acme", "sess-1", "plan_adk_000000000001", false, true, false)

	tests := []struct {
		name       string
		agent      string
		tool       string
		args       map[string]any
		wantReason string
	}{
		{
			name:       "memory tool from executor blocked",
			agent:      AgentExecutor,
			tool:       "write_memory",
			args:       map[string]any{"return_spec": map[string]any{}},
			wantReason: ReasonMemoryToolsReserved,
		},
		{
			name:       "search from coordinator blocked",
			agent:      AgentCoordinator,
			tool:       "search_relevant_memory",
			wantReason: ReasonMemoryToolsReserved,
		},
		{
			name:  "memory tool from memory subagent allowed",
			agent: AgentMemory,
			tool:  "read_memory",
		},
		{
			name:       "write_memory without return_spec blocked",
			agent:      AgentMemory,
			tool:       "write_memory",
			args:       map[string]any{"key": "k", "value": map[string]any{}},
			wantReason: ReasonMissingReturnSpec,
		},
		{
			name:  "write_memory with return_spec allowed",
			agent: AgentMemory,
			tool:  "write_memory",
			args:  map[string]any{"return_spec": map[string]any{"shape": map[string]any{}}},
		},
		{
			name:  "non-memory tool unrestricted",
			agent: AgentExecutor,
			tool:  "aws_cost_explorer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := engine.CheckToolCall(tc, tt.agent, tt.tool, tt.args)
			if tt.wantReason == "" {
				assert.Nil(t, block)
				return
			}
			require.NotNil(t, block)
			assert.Equal(t, tt.wantReason, block.Reason)
		})
	}
}

func TestCheckTransfer_TableOrder(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		name       string
		setup      func() *TraceContext
		src, dest  string
		wantReason string
	}{
		{
			name:       "memory transfer only from coordinator",
			setup:      func() *TraceContext { return NewTraceContext("t", "s", "p", false, true, false) },
			src:        AgentPlanner,
			dest:       AgentMemory,
			wantReason: ReasonMemoryTransferSource,
		},
		{
			name:       "memory subagent must return to coordinator",
			setup:      func() *TraceContext { return NewTraceContext("t", "s", "p", false, true, false) },
			src:        AgentMemory,
			dest:       AgentExecutor,
			wantReason: ReasonMemoryMustReturn,
		},
		{
			name:       "communicator transfer only from coordinator",
			setup:      func() *TraceContext { return NewTraceContext("t", "s", "p", false, true, false) },
			src:        AgentExecutor,
			dest:       AgentCommunicator,
			wantReason: ReasonCommunicatorSource,
		},
		{
			name:       "memory transfer blocked when disabled",
			setup:      func() *TraceContext { return NewTraceContext("t", "s", "p", false, false, false) },
			src:        AgentCoordinator,
			dest:       AgentMemory,
			wantReason: ReasonMemoryDisabled,
		},
		{
			name:       "planner blocked until precheck runs",
			setup:      func() *TraceContext { return NewTraceContext("t", "s", "p", true, true, true) },
			src:        AgentCoordinator,
			dest:       AgentPlanner,
			wantReason: ReasonPrecheckRequired,
		},
		{
			name: "executor blocked on first turn without planner",
			setup: func() *TraceContext {
				return NewTraceContext("t", "s", "p", true, true, false)
			},
			src:        AgentCoordinator,
			dest:       AgentExecutor,
			wantReason: ReasonPlannerRequiredFirst,
		},
		{
			name: "executor blocked until planner discovers skills",
			setup: func() *TraceContext {
				tc := NewTraceContext("t", "s", "p", true, true, false)
				engine.RecordTransfer(tc, AgentCoordinator, AgentPlanner)
				return tc
			},
			src:        AgentCoordinator,
			dest:       AgentExecutor,
			wantReason: ReasonPlannerMustDiscover,
		},
		{
			name: "executor blocked until planner loads instructions",
			setup: func() *TraceContext {
				tc := NewTraceContext("t", "s", "p", true, true, false)
				engine.RecordTransfer(tc, AgentCoordinator, AgentPlanner)
				engine.RecordToolCall(tc, AgentPlanner, ToolFindRelevantSkill)
				return tc
			},
			src:        AgentCoordinator,
			dest:       AgentExecutor,
			wantReason: ReasonPlannerMustLoad,
		},
		{
			name: "executor allowed after full planner discovery",
			setup: func() *TraceContext {
				tc := NewTraceContext("t", "s", "p", true, true, false)
				engine.RecordTransfer(tc, AgentCoordinator, AgentPlanner)
				engine.RecordToolCall(tc, AgentPlanner, ToolFindRelevantSkill)
				engine.RecordToolCall(tc, AgentPlanner, ToolLoadInstructions)
				return tc
			},
			src:  AgentCoordinator,
			dest: AgentExecutor,
		},
		{
			name: "no-skills response waives the load requirement",
			setup: func() *TraceContext {
				tc := NewTraceContext("t", "s", "p", true, true, false)
				engine.RecordTransfer(tc, AgentCoordinator, AgentPlanner)
				engine.RecordToolCall(tc, AgentPlanner, ToolFindRelevantSkill)
				engine.RecordToolResponse(tc, AgentPlanner, ToolFindRelevantSkill, `{"skills": []}`)
				return tc
			},
			src:  AgentCoordinator,
			dest: AgentExecutor,
		},
		{
			name: "subsequent turn executor allowed without planner",
			setup: func() *TraceContext {
				return NewTraceContext("t", "s", "p", false, true, false)
			},
			src:  AgentCoordinator,
			dest: AgentExecutor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := engine.CheckTransfer(tt.setup(), tt.src, tt.dest)
			if tt.wantReason == "" {
				assert.Nil(t, block)
				return
			}
			require.NotNil(t, block)
			assert.Equal(t, tt.wantReason, block.Reason)
		})
	}
}

func TestCheckTransfer_PrecheckSatisfiedByMemoryVisit(t *testing.T) {
	engine := newTestEngine()
	tc := NewTraceContext("t", "s", "p", true, true, true)

	block := engine.CheckTransfer(tc, AgentCoordinator, AgentPlanner)
	require.NotNil(t, block)
	assert.Equal(t, ReasonPrecheckRequired, block.Reason)
	assert.Equal(t, AgentMemory, block.RequiredAgent)

	engine.RecordTransfer(tc, AgentCoordinator, AgentMemory)
	assert.Nil(t, engine.CheckTransfer(tc, AgentCoordinator, AgentPlanner))
}

func TestRecordTransfer_PlannerResetsDiscoveryState(t *testing.T) {
	engine := newTestEngine()
	tc := NewTraceContext("t", "s", "p", true, true, false)

	engine.RecordTransfer(tc, AgentCoordinator, AgentPlanner)
	engine.RecordToolCall(tc, AgentPlanner, ToolFindRelevantSkill)
	engine.RecordToolCall(tc, AgentPlanner, ToolLoadInstructions)
	assert.Nil(t, engine.CheckTransfer(tc, AgentCoordinator, AgentExecutor))

	// A fresh planner delegation restarts the discovery requirements.
	engine.RecordTransfer(tc, AgentCoordinator, AgentPlanner)
	block := engine.CheckTransfer(tc, AgentCoordinator, AgentExecutor)
	require.NotNil(t, block)
	assert.Equal(t, ReasonPlannerMustDiscover, block.Reason)
}

func TestRecordPlannerToolset(t *testing.T) {
	engine := newTestEngine()
	tc := NewTraceContext("t", "s", "p", true, true, false)

	engine.RecordPlannerToolset(tc, []string{ToolFindRelevantSkill, ToolLoadInstructions})
	assert.Equal(t, []string{ToolFindRelevantSkill, ToolLoadInstructions}, tc.PlannerAvailableTools)
	assert.Equal(t, []string{ToolFindRelevantSkill, ToolLoadInstructions}, tc.PlannerExpectedTools)
}

func TestRecordToolResponse_NoSkillsMarkers(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		name       string
		serialized string
		want       bool
	}{
		{name: "empty skills array", serialized: `{"skills": [], "query": "x"}`, want: true},
		{name: "empty results array", serialized: `{"results": []}`, want: true},
		{name: "textual marker", serialized: "No relevant skill was found for this request", want: true},
		{name: "matched skills present", serialized: `{"skills": ["aws_cost_explorer"]}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := NewTraceContext("t", "s", "p", true, true, false)
			engine.RecordToolResponse(tc, AgentPlanner, ToolFindRelevantSkill, tt.serialized)
			assert.Equal(t, tt.want, tc.PlannerNoSkillsFound)
		})
	}
}

func TestWrapToolResult(t *testing.T) {
	wrapped := WrapToolResult("read_memory", map[string]any{"status": "ok", "value": "v"})
	dict, ok := wrapped.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "read_memory", dict["tool_name"])
	assert.Equal(t, "ok", dict["status"])

	// Non-dict results pass through untouched.
	assert.Equal(t, "plain text", WrapToolResult("read_memory", "plain text"))
}

func TestNormalizeToolError(t *testing.T) {
	result := NormalizeToolError("send_email_smtp", errors.New("smtp dial failed"))
	assert.Equal(t, map[string]any{
		"status":    "failed",
		"tool_name": "send_email_smtp",
		"reason":    "smtp dial failed",
	}, result)
}

func TestBlockToMap(t *testing.T) {
	block := &Block{Reason: ReasonPlannerMustLoad, RequiredTool: ToolLoadInstructions}
	assert.Equal(t, map[string]any{
		"status":        "blocked",
		"reason":        ReasonPlannerMustLoad,
		"required_tool": ToolLoadInstructions,
	}, block.ToMap())
}
