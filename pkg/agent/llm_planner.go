package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Shubhamnegi/agent-core/pkg/llm"
	"github.com/Shubhamnegi/agent-core/pkg/mcp"
	"github.com/Shubhamnegi/agent-core/pkg/models"
)

const plannerMaxIterations = 8

const plannerSystemPrompt = `You are the planning specialist. Discover which skills apply with
find_relevant_skill, load their instructions with load_instructions, then emit the final plan as a
JSON object {"steps": [...]}. Each step: {"step_index": n, "task": "...", "skills": ["..."],
"return_spec": {"shape": {"field": "type"}, "reason": "..."}, "input_from_step": n|null}.
Respond with the JSON object only once planning is done.`

// LLMPlannerAgent is the model-backed planner: it drives skill discovery
// through the planner MCP toolset and emits a structured step list.
type LLMPlannerAgent struct {
	llm       llm.Client
	model     string
	mcpClient *mcp.Client
	mcpConfig *mcp.Config
	headers   http.Header
	logger    *slog.Logger
}

func NewLLMPlannerAgent(client llm.Client, model string, mcpClient *mcp.Client, mcpConfig *mcp.Config, headers http.Header) *LLMPlannerAgent {
	return &LLMPlannerAgent{
		llm:       client,
		model:     model,
		mcpClient: mcpClient,
		mcpConfig: mcpConfig,
		headers:   headers,
		logger:    slog.Default().With("component", "llm_planner"),
	}
}

func (p *LLMPlannerAgent) CreatePlan(ctx context.Context, req *models.AgentRunRequest, maxSteps int) (*models.PlannerOutput, error) {
	prompt := fmt.Sprintf("Plan the following request in at most %d steps.\n\nRequest: %s", maxSteps, req.Message)
	return p.converse(ctx, prompt)
}

func (p *LLMPlannerAgent) Replan(ctx context.Context, completed []*models.PlanStep, failed *models.PlanStep, reason string) ([]*models.PlanStep, error) {
	completedJSON, _ := json.Marshal(completed)
	failedJSON, _ := json.Marshal(failed)
	prompt := fmt.Sprintf(
		"A step failed and needs revision. Revise only the failed step.\n\nCompleted steps: %s\nFailed step: %s\nFailure reason: %s",
		completedJSON, failedJSON, reason)
	output, err := p.converse(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return output.Steps, nil
}

// converse runs the discovery loop: tool calls are executed against the
// planner MCP endpoint until the model emits the plan JSON. Every discovery
// call and its response body come back on the output so the caller can
// replay them into the policy state. After the iteration budget the model is
// asked to conclude without tools.
func (p *LLMPlannerAgent) converse(ctx context.Context, prompt string) (*models.PlannerOutput, error) {
	var tools []llm.ToolSpec
	var available []string
	endpointByTool := map[string]string{}
	if p.mcpConfig != nil && p.mcpConfig.PlannerEndpoint != "" {
		toolset, err := mcp.BuildPlannerToolset(ctx, p.mcpClient, p.mcpConfig, p.headers)
		if err != nil {
			return nil, err
		}
		for _, tool := range toolset.Tools {
			tools = append(tools, llm.ToolSpec{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  map[string]any{"type": "object"},
			})
			available = append(available, tool.Name)
			endpointByTool[tool.Name] = toolset.Endpoint
		}
	}

	var discovery []models.DiscoveryCall
	finish := func(text string) (*models.PlannerOutput, error) {
		steps, err := parsePlanSteps(text)
		if err != nil {
			return nil, err
		}
		return &models.PlannerOutput{Steps: steps, AvailableTools: available, Discovery: discovery}, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: plannerSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}
	for iteration := 0; iteration < plannerMaxIterations; iteration++ {
		completion, err := p.llm.Generate(ctx, p.model, messages, tools)
		if err != nil {
			return nil, fmt.Errorf("planner generation: %w", err)
		}
		if len(completion.ToolCalls) == 0 {
			return finish(completion.Text)
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})
		for _, call := range completion.ToolCalls {
			result, err := p.mcpClient.CallTool(ctx, endpointByTool[call.Name], call.Name, call.Args)
			if err != nil {
				result = fmt.Sprintf(`{"status":"failed","tool_name":%q,"reason":%q}`, call.Name, err.Error())
			}
			discovery = append(discovery, models.DiscoveryCall{Tool: call.Name, Response: result})
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	// Iteration budget spent; force a conclusion without tools.
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: "Emit the final plan JSON now without calling any more tools.",
	})
	completion, err := p.llm.Generate(ctx, p.model, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("planner forced conclusion: %w", err)
	}
	return finish(completion.Text)
}

func parsePlanSteps(text string) ([]*models.PlanStep, error) {
	payload := extractJSONObject(text)
	var output models.PlannerOutput
	if err := json.Unmarshal([]byte(payload), &output); err != nil {
		return nil, fmt.Errorf("parsing planner output: %w", err)
	}
	for _, step := range output.Steps {
		if step.Status == "" {
			step.Status = models.StepStatusPending
		}
	}
	return output.Steps, nil
}

// extractJSONObject strips markdown fences and surrounding prose around the
// first top-level JSON object.
func extractJSONObject(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if end := strings.LastIndex(trimmed, "```"); end >= 0 {
			trimmed = trimmed[:end]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}
