// Package mcp connects the planner and executor agents to remote tool
// providers over the Model Context Protocol. Endpoints are declared in a
// JSON or YAML config file; URLs and auth header values can be indirected
// through environment variables or per-request headers.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Transport names accepted in the endpoints config.
const (
	TransportStreamableHTTP = "streamable_http"
	TransportSSE            = "sse"
	TransportStdio          = "stdio"
)

// Resolution error kinds.
var (
	ErrEndpointURLMissing    = errors.New("mcp_endpoint_url_missing")
	ErrStdioCommandMissing   = errors.New("mcp_stdio_command_missing")
	ErrTransportNotSupported = errors.New("mcp_transport_not_supported")
	ErrEndpointNotFound      = errors.New("mcp_endpoint_not_found")
)

// DefaultPlannerToolFilter is the planner's toolset when the endpoint does
// not declare its own filter.
var DefaultPlannerToolFilter = []string{"find_relevant_skill", "load_instructions"}

// AuthHeaderRule declares one outbound auth header. The value is resolved
// from the incoming request header first, then from the environment.
type AuthHeaderRule struct {
	Name          string `json:"name" yaml:"name"`
	RequestHeader string `json:"request_header,omitempty" yaml:"request_header,omitempty"`
	Env           string `json:"env,omitempty" yaml:"env,omitempty"`
}

// EndpointConfig declares one MCP endpoint.
type EndpointConfig struct {
	Name              string            `json:"name" yaml:"name"`
	Transport         string            `json:"transport,omitempty" yaml:"transport,omitempty"`
	URL               string            `json:"url,omitempty" yaml:"url,omitempty"`
	URLEnv            string            `json:"url_env,omitempty" yaml:"url_env,omitempty"`
	Command           string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args              []string          `json:"args,omitempty" yaml:"args,omitempty"`
	StdioEnv          map[string]string `json:"stdio_env,omitempty" yaml:"stdio_env,omitempty"`
	PlannerToolFilter []string          `json:"planner_tool_filter,omitempty" yaml:"planner_tool_filter,omitempty"`
	AuthHeaders       []AuthHeaderRule  `json:"auth_headers,omitempty" yaml:"auth_headers,omitempty"`
}

// transportName normalizes the configured transport; streamable_http is the
// default.
func (e EndpointConfig) transportName() string {
	if e.Transport == "" {
		return TransportStreamableHTTP
	}
	return e.Transport
}

// Config is the MCP endpoints document.
type Config struct {
	PlannerEndpoint string           `json:"planner_endpoint" yaml:"planner_endpoint"`
	Endpoints       []EndpointConfig `json:"endpoints" yaml:"endpoints"`
}

// LoadConfig reads the MCP endpoints config, JSON or YAML by extension. An
// empty path yields an empty config so the runtime can run without any MCP
// endpoints.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mcp config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, cfg)
	default:
		err = json.Unmarshal(raw, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing mcp config: %w", err)
	}
	return cfg, nil
}

// Endpoint returns the named endpoint config.
func (c *Config) Endpoint(name string) (*EndpointConfig, error) {
	for i := range c.Endpoints {
		if c.Endpoints[i].Name == name {
			return &c.Endpoints[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEndpointNotFound, name)
}
