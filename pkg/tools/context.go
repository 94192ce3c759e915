// Package tools implements the tool adapters offered to sub-agents: memory
// write/read/save/search, Slack and SMTP communication, and the temp-file and
// sandboxed extraction tools. Every tool takes the explicit per-request
// RuntimeContext instead of ambient state.
package tools

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Shubhamnegi/agent-core/pkg/config"
	"github.com/Shubhamnegi/agent-core/pkg/largeresponse"
	"github.com/Shubhamnegi/agent-core/pkg/sandbox"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// RuntimeContext is the request-scoped state tools operate on. It is created
// by the runtime orchestrator at request start and discarded at request end.
type RuntimeContext struct {
	TenantID  string
	UserID    string
	SessionID string
	PlanID    string

	Memory    storage.MemoryRepository
	Comm      *config.CommunicationConfig
	TempFiles *largeresponse.TempFileRegistry
	Sandbox   *sandbox.Executor
}

// NewTaskID mints a plan-scoped task id for a tool-originated memory write.
func (rc *RuntimeContext) NewTaskID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return rc.PlanID + ":" + hex[:8]
}
