package mcp

import (
	"context"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Toolset is a filtered view of one endpoint's tools, offered to an agent.
type Toolset struct {
	Endpoint string
	Tools    []*mcpsdk.Tool
}

// BuildPlannerToolset connects the designated planner endpoint and returns
// its tools filtered to the planner tool filter (default find_relevant_skill
// and load_instructions).
func BuildPlannerToolset(ctx context.Context, client *Client, cfg *Config, requestHeaders http.Header) (*Toolset, error) {
	endpoint, err := cfg.Endpoint(cfg.PlannerEndpoint)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx, endpoint.Name, requestHeaders); err != nil {
		return nil, err
	}
	tools, err := client.ListTools(ctx, endpoint.Name)
	if err != nil {
		return nil, err
	}
	filter := endpoint.PlannerToolFilter
	if len(filter) == 0 {
		filter = DefaultPlannerToolFilter
	}
	return &Toolset{
		Endpoint: endpoint.Name,
		Tools:    filterTools(tools, filter),
	}, nil
}

// BuildExecutorToolsets connects every endpoint and returns each endpoint's
// tools restricted to the skills the planner selected for the current step.
func BuildExecutorToolsets(ctx context.Context, client *Client, cfg *Config, skills []string, requestHeaders http.Header) ([]*Toolset, error) {
	var toolsets []*Toolset
	for i := range cfg.Endpoints {
		endpoint := &cfg.Endpoints[i]
		if err := client.Connect(ctx, endpoint.Name, requestHeaders); err != nil {
			return nil, err
		}
		tools, err := client.ListTools(ctx, endpoint.Name)
		if err != nil {
			return nil, err
		}
		filtered := filterTools(tools, skills)
		if len(filtered) == 0 {
			continue
		}
		toolsets = append(toolsets, &Toolset{Endpoint: endpoint.Name, Tools: filtered})
	}
	return toolsets, nil
}

func filterTools(tools []*mcpsdk.Tool, allowed []string) []*mcpsdk.Tool {
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}
	var out []*mcpsdk.Tool
	for _, tool := range tools {
		if allowedSet[tool.Name] {
			out = append(out, tool)
		}
	}
	return out
}
