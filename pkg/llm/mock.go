package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

// ScriptedClient replays a fixed sequence of completions. Used by tests and
// the mock agent profile.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []*Completion
	Calls     []ScriptedCall
}

// ScriptedCall records one Generate invocation for assertions.
type ScriptedCall struct {
	Model    string
	Messages []Message
	Tools    []ToolSpec
}

func NewScriptedClient(responses ...*Completion) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

func (c *ScriptedClient) Generate(ctx context.Context, model string, messages []Message, tools []ToolSpec) (*Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, ScriptedCall{Model: model, Messages: messages, Tools: tools})
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("scripted client exhausted after %d calls", len(c.Calls))
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return next, nil
}

// HashEmbedder produces deterministic vectors from a text hash. It gives the
// in-memory profile and tests real embedding semantics (same text, same
// vector) without a model call.
type HashEmbedder struct {
	Dims int
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := e.Dims
	if dims <= 0 {
		dims = 768
	}
	vector := make([]float32, dims)
	seed := sha256.Sum256([]byte(text))
	for i := range vector {
		chunk := sha256.Sum256(append(seed[:], byte(i), byte(i>>8)))
		bits := binary.BigEndian.Uint32(chunk[:4])
		vector[i] = float32(bits%2000)/1000.0 - 1.0
	}
	return vector, nil
}
