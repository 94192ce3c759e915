package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Shubhamnegi/agent-core/pkg/largeresponse"
	"github.com/Shubhamnegi/agent-core/pkg/llm"
	"github.com/Shubhamnegi/agent-core/pkg/mcp"
	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/policy"
	"github.com/Shubhamnegi/agent-core/pkg/tools"
)

const executorMaxIterations = 10

const executorSystemPrompt = `You are the execution specialist. Carry out exactly one task using
the tools provided, then report the outcome as a JSON object:
  {"status": "ok", "data": {...}}             when the task succeeded; data must contain every
                                              field the return spec requires
  {"status": "insufficient", "reason": "...", "suggestion": "..."} when the task is too broad
  {"status": "failed", "reason": "..."}       when the task cannot be completed
Respond with the JSON object only.`

// LLMExecutorAgent runs one plan step through the model: the step's skills
// are resolved to MCP toolsets, the temp-file and extraction infra tools are
// offered alongside them, tool responses above the spill threshold go through
// the large-response pipeline, and the final text is parsed into a step
// execution result.
type LLMExecutorAgent struct {
	llm       llm.Client
	model     string
	mcpClient *mcp.Client
	mcpConfig *mcp.Config
	headers   http.Header
	pipeline  *largeresponse.Pipeline
	logger    *slog.Logger
}

func NewLLMExecutorAgent(client llm.Client, model string, mcpClient *mcp.Client, mcpConfig *mcp.Config, headers http.Header, pipeline *largeresponse.Pipeline) *LLMExecutorAgent {
	return &LLMExecutorAgent{
		llm:       client,
		model:     model,
		mcpClient: mcpClient,
		mcpConfig: mcpConfig,
		headers:   headers,
		pipeline:  pipeline,
		logger:    slog.Default().With("component", "llm_executor"),
	}
}

func (e *LLMExecutorAgent) ExecuteStep(ctx context.Context, rc *tools.RuntimeContext, req *models.AgentRunRequest, p *models.Plan, step *models.PlanStep) (*models.StepExecutionResult, error) {
	var specs []llm.ToolSpec
	localByName := map[string]localTool{}
	for _, tool := range infraToolset() {
		specs = append(specs, tool.spec)
		localByName[tool.spec.Name] = tool
	}
	endpointByTool := map[string]string{}
	if e.mcpConfig != nil {
		toolsets, err := mcp.BuildExecutorToolsets(ctx, e.mcpClient, e.mcpConfig, step.Skills, e.headers)
		if err != nil {
			return nil, err
		}
		for _, toolset := range toolsets {
			for _, tool := range toolset.Tools {
				specs = append(specs, llm.ToolSpec{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  map[string]any{"type": "object"},
				})
				endpointByTool[tool.Name] = toolset.Endpoint
			}
		}
	}

	shapeJSON, _ := json.Marshal(step.ReturnSpec.Shape)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: executorSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Task: %s\nRequired output shape: %s", step.Task, shapeJSON)},
	}
	for iteration := 0; iteration < executorMaxIterations; iteration++ {
		completion, err := e.llm.Generate(ctx, e.model, messages, specs)
		if err != nil {
			return nil, fmt.Errorf("executor generation: %w", err)
		}
		if len(completion.ToolCalls) == 0 {
			return parseStepResult(completion.Text)
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})
		for _, call := range completion.ToolCalls {
			var content string
			if tool, ok := localByName[call.Name]; ok {
				content = e.callLocalTool(ctx, rc, tool, call)
			} else {
				content = e.callTool(ctx, req, p, step, endpointByTool[call.Name], call)
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	return &models.StepExecutionResult{
		Status: "failed",
		Reason: "executor iteration budget exhausted",
	}, nil
}

// callLocalTool runs one in-process infra tool against the request context.
func (e *LLMExecutorAgent) callLocalTool(ctx context.Context, rc *tools.RuntimeContext, tool localTool, call llm.ToolCall) string {
	result, err := tool.run(ctx, rc, call.Args)
	if err != nil {
		serialized, _ := json.Marshal(policy.NormalizeToolError(call.Name, err))
		return string(serialized)
	}
	serialized, _ := json.Marshal(policy.WrapToolResult(call.Name, result))
	return string(serialized)
}

// callTool invokes one MCP tool and reduces oversize responses through the
// extraction pipeline before the model sees them. Tool failures are reported
// back to the model as structured results rather than aborting the step.
func (e *LLMExecutorAgent) callTool(ctx context.Context, req *models.AgentRunRequest, p *models.Plan, step *models.PlanStep, endpoint string, call llm.ToolCall) string {
	raw, err := e.mcpClient.CallTool(ctx, endpoint, call.Name, call.Args)
	if err != nil {
		failure, _ := json.Marshal(map[string]any{
			"status":    "failed",
			"tool_name": call.Name,
			"reason":    err.Error(),
		})
		return string(failure)
	}
	if e.pipeline == nil || len(raw) < e.pipeline.Threshold {
		return raw
	}

	ref := largeresponse.EventRef{
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		PlanID:    p.PlanID,
		TaskID:    step.TaskID,
	}
	result, err := e.pipeline.Process(ctx, ref, raw, step.ReturnSpec.Shape, "")
	if err != nil {
		e.logger.Error("large response extraction failed", "tool", call.Name, "error", err)
		failure, _ := json.Marshal(map[string]any{
			"status":    "failed",
			"tool_name": call.Name,
			"reason":    "large_response_extraction_failed: " + err.Error(),
		})
		return string(failure)
	}
	reduced, _ := json.Marshal(result.Data)
	return string(reduced)
}

func parseStepResult(text string) (*models.StepExecutionResult, error) {
	payload := extractJSONObject(text)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		// Treat free text as a successful textual answer.
		return &models.StepExecutionResult{
			Status: "ok",
			Data:   map[string]any{"response_text": text},
		}, nil
	}
	if _, ok := parsed["status"]; !ok {
		// A bare object is the step's output data.
		return &models.StepExecutionResult{Status: "ok", Data: parsed}, nil
	}
	var result models.StepExecutionResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("parsing executor output: %w", err)
	}
	if result.Status == "" {
		result.Status = "ok"
	}
	return &result, nil
}
