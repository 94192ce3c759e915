package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhamnegi/agent-core/pkg/largeresponse"
	"github.com/Shubhamnegi/agent-core/pkg/llm"
	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/tools"
)

func TestLLMExecutorAgent_OffersTempFileTools(t *testing.T) {
	registry, err := largeresponse.NewTempFileRegistry(t.TempDir())
	require.NoError(t, err)
	fileID, _, err := registry.Register("alpha\nbeta\ngamma")
	require.NoError(t, err)
	rc := &tools.RuntimeContext{
		TenantID:  "acme",
		UserID:    "u-1",
		SessionID: "sess-1",
		PlanID:    "plan_adk_1",
		TempFiles: registry,
	}

	client := llm.NewScriptedClient(
		&llm.Completion{ToolCalls: []llm.ToolCall{
			{ID: "call-1", Name: "write_temp", Args: map[string]any{"data": "spilled payload"}},
		}},
		&llm.Completion{ToolCalls: []llm.ToolCall{
			{ID: "call-2", Name: "read_lines", Args: map[string]any{"file_id": fileID, "n": 2}},
		}},
		&llm.Completion{Text: `{"status": "ok", "data": {"response_text": "alpha beta"}}`},
	)
	executor := NewLLMExecutorAgent(client, "mock", nil, nil, nil, nil)

	req := &models.AgentRunRequest{TenantID: "acme", UserID: "u-1", SessionID: "sess-1"}
	p := &models.Plan{PlanID: "plan_adk_1"}
	step := &models.PlanStep{
		StepIndex:  1,
		Task:       "summarize the spilled payload",
		ReturnSpec: models.ReturnSpec{Shape: map[string]any{"response_text": "string"}},
	}

	result, err := executor.ExecuteStep(context.Background(), rc, req, p, step)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, map[string]any{"response_text": "alpha beta"}, result.Data)

	// The temp tools are advertised to the model even with no MCP skills.
	require.Len(t, client.Calls, 3)
	names := make([]string, 0, len(client.Calls[0].Tools))
	for _, spec := range client.Calls[0].Tools {
		names = append(names, spec.Name)
	}
	assert.Contains(t, names, "write_temp")
	assert.Contains(t, names, "read_lines")
	assert.Contains(t, names, "exec_python")

	// Each local tool ran in-process and its result went back as a tool turn.
	writeTurn := lastToolTurn(t, client.Calls[1].Messages)
	assert.Equal(t, "write_temp", writeTurn.Name)
	assert.Contains(t, writeTurn.Content, `"file_id"`)
	assert.Contains(t, writeTurn.Content, `"tool_name":"write_temp"`)

	readTurn := lastToolTurn(t, client.Calls[2].Messages)
	assert.Equal(t, "read_lines", readTurn.Name)
	assert.Contains(t, readTurn.Content, `"lines":["alpha","beta"]`)
}

func lastToolTurn(t *testing.T, messages []llm.Message) llm.Message {
	t.Helper()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleTool {
			return messages[i]
		}
	}
	t.Fatal("no tool turn in transcript")
	return llm.Message{}
}
