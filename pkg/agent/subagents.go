package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Shubhamnegi/agent-core/pkg/llm"
	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/policy"
	"github.com/Shubhamnegi/agent-core/pkg/tools"
)

const subAgentMaxIterations = 10

// localTool binds a tool spec offered to the model to its in-process adapter.
type localTool struct {
	spec llm.ToolSpec
	run  func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error)
}

// SubAgent is an LLM loop over a fixed local tool set. Each tool call passes
// through the policy engine before execution; blocked calls are fed back to
// the model as structured results.
type SubAgent struct {
	name   string
	llm    llm.Client
	model  string
	engine *policy.Engine
	system string
	tools  []localTool
	logger *slog.Logger
}

// Run drives the loop until the model answers with text, emitting one stream
// event per model turn.
func (a *SubAgent) Run(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, prompt string) ([]StreamEvent, error) {
	specs := make([]llm.ToolSpec, 0, len(a.tools))
	names := make([]string, 0, len(a.tools))
	byName := make(map[string]localTool, len(a.tools))
	for _, tool := range a.tools {
		specs = append(specs, tool.spec)
		names = append(names, tool.spec.Name)
		byName[tool.spec.Name] = tool
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: a.system},
		{Role: llm.RoleUser, Content: prompt},
	}
	var events []StreamEvent
	for iteration := 0; iteration < subAgentMaxIterations; iteration++ {
		// One prompt event per model call, carrying the turn that drives it.
		a.engine.OnPrompt(ctx, tc, a.name, messages[len(messages)-1].Content, names)
		completion, err := a.llm.Generate(ctx, a.model, messages, specs)
		if err != nil {
			return events, fmt.Errorf("%s generation: %w", a.name, err)
		}
		a.engine.OnLLMResponse(ctx, tc, a.name, completion.Text, flattenToolCalls(completion.ToolCalls))

		if len(completion.ToolCalls) == 0 {
			events = append(events, StreamEvent{Author: a.name, IsFinal: true, Text: completion.Text})
			return events, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})
		event := StreamEvent{Author: a.name}
		for _, call := range completion.ToolCalls {
			event.FunctionCalls = append(event.FunctionCalls, FunctionCall{Name: call.Name, Args: call.Args})
			result := a.dispatch(ctx, tc, rc, call, byName)
			event.FunctionResponses = append(event.FunctionResponses, FunctionResponse{Name: call.Name, Response: result})

			serialized, _ := json.Marshal(result)
			a.engine.RecordToolResponse(tc, a.name, call.Name, string(serialized))
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    string(serialized),
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
		events = append(events, event)
	}

	events = append(events, StreamEvent{Author: a.name, IsFinal: true, Text: "Stopped: tool iteration budget exhausted."})
	return events, nil
}

func (a *SubAgent) dispatch(ctx context.Context, tc *policy.TraceContext, rc *tools.RuntimeContext, call llm.ToolCall, byName map[string]localTool) any {
	if block := a.engine.CheckToolCall(tc, a.name, call.Name, call.Args); block != nil {
		return block.ToMap()
	}
	tool, ok := byName[call.Name]
	if !ok {
		return policy.NormalizeToolError(call.Name, fmt.Errorf("unknown tool %q", call.Name))
	}
	a.engine.RecordToolCall(tc, a.name, call.Name)
	result, err := tool.run(ctx, rc, call.Args)
	if err != nil {
		a.logger.Error("tool failed", "tool", call.Name, "error", err)
		return policy.NormalizeToolError(call.Name, err)
	}
	return policy.WrapToolResult(call.Name, result)
}

func flattenToolCalls(calls []llm.ToolCall) []map[string]any {
	if len(calls) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(calls))
	for _, call := range calls {
		out = append(out, map[string]any{"name": call.Name, "args": call.Args})
	}
	return out
}

const memorySystemPrompt = `You are the memory specialist. Use the memory tools to search, read,
and save memories for the current user, then report what you found or stored in one short
paragraph. Save durable user facts with save_user_memory and reusable action outcomes with
save_action_memory.`

// NewMemorySubAgent builds the sub-agent holding the reserved memory tools.
func NewMemorySubAgent(client llm.Client, model string, engine *policy.Engine) *SubAgent {
	return &SubAgent{
		name:   policy.AgentMemory,
		llm:    client,
		model:  model,
		engine: engine,
		system: memorySystemPrompt,
		tools:  memoryToolset(),
		logger: slog.Default().With("component", "memory_subagent"),
	}
}

const communicatorSystemPrompt = `You are the communication specialist. Deliver messages over the
configured channels (Slack, email) using the tools provided, then report delivery status.`

// NewCommunicatorSubAgent builds the sub-agent holding the outbound
// communication tools.
func NewCommunicatorSubAgent(client llm.Client, model string, engine *policy.Engine) *SubAgent {
	return &SubAgent{
		name:   policy.AgentCommunicator,
		llm:    client,
		model:  model,
		engine: engine,
		system: communicatorSystemPrompt,
		tools:  communicationToolset(),
		logger: slog.Default().With("component", "communicator_subagent"),
	}
}

func memoryToolset() []localTool {
	return []localTool{
		{
			spec: llm.ToolSpec{
				Name:        "write_memory",
				Description: "Persist structured session data under a logical key. Requires a return_spec describing the data shape.",
				Parameters: objectSchema(map[string]any{
					"key":         map[string]any{"type": "string"},
					"data":        map[string]any{"type": "object"},
					"return_spec": map[string]any{"type": "object"},
				}, "key", "data", "return_spec"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				return tools.WriteMemory(ctx, rc, stringArg(args, "key"), objectArg(args, "data"), objectArg(args, "return_spec"))
			},
		},
		{
			spec: llm.ToolSpec{
				Name:        "read_memory",
				Description: "Read a memory record by its namespaced key, optionally releasing its lock.",
				Parameters: objectSchema(map[string]any{
					"namespaced_key": map[string]any{"type": "string"},
					"release_lock":   map[string]any{"type": "boolean"},
				}, "namespaced_key"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				return tools.ReadMemory(ctx, rc, stringArg(args, "namespaced_key"), boolArg(args, "release_lock"))
			},
		},
		{
			spec: llm.ToolSpec{
				Name:        "save_user_memory",
				Description: "Save a durable cross-session user fact or preference from JSON text. Duplicates are skipped.",
				Parameters: objectSchema(map[string]any{
					"key":              map[string]any{"type": "string"},
					"memory_json":      map[string]any{"type": "string"},
					"return_spec_json": map[string]any{"type": "string"},
				}, "key", "memory_json"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				return tools.SaveUserMemory(ctx, rc, stringArg(args, "key"), stringArg(args, "memory_json"), stringArg(args, "return_spec_json"))
			},
		},
		{
			spec: llm.ToolSpec{
				Name:        "save_action_memory",
				Description: "Save a reusable action outcome from JSON text. Duplicates are skipped.",
				Parameters: objectSchema(map[string]any{
					"key":              map[string]any{"type": "string"},
					"memory_json":      map[string]any{"type": "string"},
					"return_spec_json": map[string]any{"type": "string"},
				}, "key", "memory_json"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				return tools.SaveActionMemory(ctx, rc, stringArg(args, "key"), stringArg(args, "memory_json"), stringArg(args, "return_spec_json"))
			},
		},
		{
			spec: llm.ToolSpec{
				Name:        "search_relevant_memory",
				Description: "Search stored memories by semantic relevance within a scope (session or user).",
				Parameters: objectSchema(map[string]any{
					"query": map[string]any{"type": "string"},
					"scope": map[string]any{"type": "string", "enum": []string{"session", "user"}},
					"top_k": map[string]any{"type": "integer"},
				}, "query"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				scope := models.MemoryScope(stringArg(args, "scope"))
				if !scope.IsValid() {
					scope = models.ScopeUser
				}
				return tools.SearchRelevantMemory(ctx, rc, stringArg(args, "query"), scope, intArg(args, "top_k"))
			},
		},
	}
}

func communicationToolset() []localTool {
	return []localTool{
		{
			spec: llm.ToolSpec{
				Name:        "send_slack_message",
				Description: "Send a Slack message, optionally with Block Kit blocks, a file upload, or a thread timestamp.",
				Parameters: objectSchema(map[string]any{
					"channel":     map[string]any{"type": "string"},
					"text":        map[string]any{"type": "string"},
					"blocks_json": map[string]any{"type": "string"},
					"file_path":   map[string]any{"type": "string"},
					"file_name":   map[string]any{"type": "string"},
					"thread_ts":   map[string]any{"type": "string"},
				}, "channel", "text"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				return tools.SendSlackMessage(ctx, rc,
					stringArg(args, "channel"), stringArg(args, "text"), stringArg(args, "blocks_json"),
					stringArg(args, "file_path"), stringArg(args, "file_name"), stringArg(args, "thread_ts"))
			},
		},
		{
			spec: llm.ToolSpec{
				Name:        "read_slack_messages",
				Description: "Read recent messages from a Slack channel.",
				Parameters: objectSchema(map[string]any{
					"channel":       map[string]any{"type": "string"},
					"limit":         map[string]any{"type": "integer"},
					"include_files": map[string]any{"type": "boolean"},
				}, "channel"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				return tools.ReadSlackMessages(ctx, rc, stringArg(args, "channel"), intArg(args, "limit"), boolArg(args, "include_files"))
			},
		},
		{
			spec: llm.ToolSpec{
				Name:        "send_email_smtp",
				Description: "Send an email over the configured SMTP transport. Recipient lists are comma separated.",
				Parameters: objectSchema(map[string]any{
					"to_emails":             map[string]any{"type": "string"},
					"subject":               map[string]any{"type": "string"},
					"body_text":             map[string]any{"type": "string"},
					"body_html":             map[string]any{"type": "string"},
					"cc_emails":             map[string]any{"type": "string"},
					"bcc_emails":            map[string]any{"type": "string"},
					"attachment_paths_json": map[string]any{"type": "string"},
				}, "to_emails", "subject", "body_text"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				return tools.SendEmailSMTP(ctx, rc,
					stringArg(args, "to_emails"), stringArg(args, "subject"),
					stringArg(args, "body_text"), stringArg(args, "body_html"),
					stringArg(args, "cc_emails"), stringArg(args, "bcc_emails"),
					stringArg(args, "attachment_paths_json"))
			},
		},
	}
}

// infraToolset exposes the temp-file and sandboxed extraction tools offered
// to the execution specialist alongside its MCP skills.
func infraToolset() []localTool {
	return []localTool{
		{
			spec: llm.ToolSpec{
				Name:        "write_temp",
				Description: "Spill large text into a registered temp file and get back its file id.",
				Parameters: objectSchema(map[string]any{
					"data": map[string]any{"type": "string"},
				}, "data"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				return tools.WriteTemp(rc, stringArg(args, "data"))
			},
		},
		{
			spec: llm.ToolSpec{
				Name:        "read_lines",
				Description: "Read up to n lines of a registered temp file starting at a zero-based line offset.",
				Parameters: objectSchema(map[string]any{
					"file_id": map[string]any{"type": "string"},
					"start":   map[string]any{"type": "integer"},
					"n":       map[string]any{"type": "integer"},
				}, "file_id"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				n := intArg(args, "n")
				if n <= 0 {
					n = 20
				}
				return tools.ReadLines(rc, stringArg(args, "file_id"), intArg(args, "start"), n)
			},
		},
		{
			spec: llm.ToolSpec{
				Name:        "exec_python",
				Description: "Run a restricted extraction script against a registered temp file; the script must assign a result variable.",
				Parameters: objectSchema(map[string]any{
					"script":  map[string]any{"type": "string"},
					"file_id": map[string]any{"type": "string"},
				}, "script", "file_id"),
			},
			run: func(ctx context.Context, rc *tools.RuntimeContext, args map[string]any) (map[string]any, error) {
				return tools.ExecPython(ctx, rc, stringArg(args, "script"), stringArg(args, "file_id"))
			},
		},
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

func boolArg(args map[string]any, key string) bool {
	value, _ := args[key].(bool)
	return value
}

func intArg(args map[string]any, key string) int {
	switch value := args[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	}
	return 0
}

func objectArg(args map[string]any, key string) map[string]any {
	value, _ := args[key].(map[string]any)
	return value
}
