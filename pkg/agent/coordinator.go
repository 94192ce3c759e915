package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Shubhamnegi/agent-core/pkg/llm"
	"github.com/Shubhamnegi/agent-core/pkg/policy"
	"github.com/Shubhamnegi/agent-core/pkg/tools"
)

const coordinatorMaxIterations = 12

const transferToolName = "transfer_to_agent"

const coordinatorSystemPrompt = `You are the orchestration coordinator. You never solve tasks
yourself; you delegate through transfer_to_agent. Available specialists:
  planner      - discovers applicable skills and produces the execution plan
  executor     - runs the current plan step by step
  memory       - searches, reads, and saves the user's memories
  communicator - delivers results over Slack or email
Delegate until the request is fulfilled, then answer the user with the final result text. If a
transfer comes back blocked, follow the required_agent or required_tool hint in the block.`

// TransferHandler runs one delegated specialist turn. It returns the stream
// events the specialist produced, plus the summary text handed back to the
// coordinator model.
type TransferHandler func(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, message string) ([]StreamEvent, string, error)

// Coordinator is the root LLM loop of the agent graph. Every delegation is
// checked against the policy engine before the handler runs; vetoed transfers
// are surfaced back to the model as blocked tool results.
type Coordinator struct {
	llm      llm.Client
	model    string
	engine   *policy.Engine
	handlers map[string]TransferHandler
	logger   *slog.Logger
}

func NewCoordinator(client llm.Client, model string, engine *policy.Engine, handlers map[string]TransferHandler) *Coordinator {
	return &Coordinator{
		llm:      client,
		model:    model,
		engine:   engine,
		handlers: handlers,
		logger:   slog.Default().With("component", "coordinator"),
	}
}

func transferToolSpec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        transferToolName,
		Description: "Delegate the current request to a specialist agent.",
		Parameters: objectSchema(map[string]any{
			"agent_name": map[string]any{
				"type": "string",
				"enum": []string{policy.AgentPlanner, policy.AgentExecutor, policy.AgentMemory, policy.AgentCommunicator},
			},
			"message": map[string]any{"type": "string"},
		}, "agent_name", "message"),
	}
}

// Run drives the coordinator until it produces a final text answer, returning
// the full event stream of the request: coordinator turns interleaved with
// the delegated specialists' events.
func (c *Coordinator) Run(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, message string) ([]StreamEvent, error) {
	specs := []llm.ToolSpec{transferToolSpec()}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: coordinatorSystemPrompt},
		{Role: llm.RoleUser, Content: message},
	}
	var events []StreamEvent
	for iteration := 0; iteration < coordinatorMaxIterations; iteration++ {
		// One prompt event per model call, carrying the turn that drives it.
		c.engine.OnPrompt(ctx, tc, policy.AgentCoordinator, messages[len(messages)-1].Content, []string{transferToolName})
		completion, err := c.llm.Generate(ctx, c.model, messages, specs)
		if err != nil {
			return events, fmt.Errorf("coordinator generation: %w", err)
		}
		c.engine.OnLLMResponse(ctx, tc, policy.AgentCoordinator, completion.Text, flattenToolCalls(completion.ToolCalls))

		if len(completion.ToolCalls) == 0 {
			events = append(events, StreamEvent{Author: policy.AgentCoordinator, IsFinal: true, Text: completion.Text})
			return events, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})
		for _, call := range completion.ToolCalls {
			dest := stringArg(call.Args, "agent_name")
			delegated := stringArg(call.Args, "message")

			turn := StreamEvent{
				Author:        policy.AgentCoordinator,
				FunctionCalls: []FunctionCall{{Name: call.Name, Args: call.Args}},
			}
			result, subEvents := c.transfer(ctx, tc, rc, dest, delegated)
			turn.FunctionResponses = []FunctionResponse{{Name: call.Name, Response: result}}
			events = append(events, turn)
			events = append(events, subEvents...)

			serialized, _ := json.Marshal(result)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    string(serialized),
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	events = append(events, StreamEvent{
		Author:  policy.AgentCoordinator,
		IsFinal: true,
		Text:    "Stopped: delegation budget exhausted.",
	})
	return events, nil
}

// transfer runs one policy-checked delegation. Blocked transfers and handler
// failures come back as structured results so the model can adapt.
func (c *Coordinator) transfer(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, dest, message string) (map[string]any, []StreamEvent) {
	if block := c.engine.CheckTransfer(tc, policy.AgentCoordinator, dest); block != nil {
		c.logger.Info("transfer blocked", "dest", dest, "reason", block.Reason)
		return block.ToMap(), nil
	}
	handler, ok := c.handlers[dest]
	if !ok {
		return map[string]any{
			"status": "failed",
			"reason": fmt.Sprintf("unknown agent %q", dest),
		}, nil
	}
	c.engine.RecordTransfer(tc, policy.AgentCoordinator, dest)

	subEvents, summary, err := handler(ctx, tc, rc, message)
	if err != nil {
		c.logger.Error("delegated agent failed", "dest", dest, "error", err)
		return map[string]any{
			"status": "failed",
			"agent":  dest,
			"reason": err.Error(),
		}, subEvents
	}
	return map[string]any{
		"status": "ok",
		"agent":  dest,
		"result": summary,
	}, subEvents
}

// SubAgentHandler adapts a SubAgent loop into a coordinator transfer handler.
// The summary is the sub-agent's final text.
func SubAgentHandler(sub *SubAgent) TransferHandler {
	return func(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, message string) ([]StreamEvent, string, error) {
		events, err := sub.Run(ctx, tc, rc, message)
		if err != nil {
			return events, "", err
		}
		summary := ""
		for _, event := range events {
			if event.IsFinal {
				summary = event.Text
			}
		}
		return events, summary, nil
	}
}
