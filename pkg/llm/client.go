// Package llm provides the model client capability used by every sub-agent:
// given a message history and an available-tool set, return either text or
// tool calls. The OpenAI-compatible implementation also backs embedding
// generation for the indexed memory store.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a conversation.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolSpec describes a callable tool offered to the model. Parameters is a
// JSON-schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Completion is a model response: either final text or tool calls to execute.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// Client is the generate capability.
type Client interface {
	Generate(ctx context.Context, model string, messages []Message, tools []ToolSpec) (*Completion, error)
}
