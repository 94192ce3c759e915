package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Agent roles with per-role model assignments.
const (
	RoleCoordinator  = "coordinator"
	RolePlanner      = "planner"
	RoleExecutor     = "executor"
	RoleMemory       = "memory"
	RoleCommunicator = "communicator"
)

// AgentModels maps each agent role to a model identifier. Roles without an
// entry fall back to the default model.
type AgentModels struct {
	Coordinator  string `json:"coordinator"`
	Planner      string `json:"planner"`
	Executor     string `json:"executor"`
	Memory       string `json:"memory"`
	Communicator string `json:"communicator"`

	defaultModel string
}

// LoadAgentModels reads agent_models.json from path. An empty path yields a
// config where every role uses defaultModel.
func LoadAgentModels(path, defaultModel string) (*AgentModels, error) {
	models := &AgentModels{defaultModel: defaultModel}
	if path == "" {
		return models, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent models config: %w", err)
	}
	if err := json.Unmarshal(raw, models); err != nil {
		return nil, fmt.Errorf("parsing agent models config: %w", err)
	}
	return models, nil
}

// ModelFor resolves the model identifier for a role.
func (m *AgentModels) ModelFor(role string) string {
	var model string
	switch role {
	case RoleCoordinator:
		model = m.Coordinator
	case RolePlanner:
		model = m.Planner
	case RoleExecutor:
		model = m.Executor
	case RoleMemory:
		model = m.Memory
	case RoleCommunicator:
		model = m.Communicator
	}
	if model == "" {
		return m.defaultModel
	}
	return model
}
