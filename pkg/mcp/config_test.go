package mcp

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeConfig(t, "endpoints.json", `{
		"planner_endpoint": "skills",
		"endpoints": [
			{"name": "skills", "url": "http://skills.internal/mcp"},
			{"name": "aws", "transport": "sse", "url_env": "AWS_MCP_URL"}
		]
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "skills", cfg.PlannerEndpoint)
	require.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, TransportStreamableHTTP, cfg.Endpoints[0].transportName())
	assert.Equal(t, TransportSSE, cfg.Endpoints[1].transportName())
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, "endpoints.yaml", `
planner_endpoint: skills
endpoints:
  - name: skills
    url: http://skills.internal/mcp
    planner_tool_filter:
      - find_relevant_skill
  - name: local
    transport: stdio
    command: mcp-local
    args: ["--verbose"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "skills", cfg.PlannerEndpoint)
	require.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, []string{"find_relevant_skill"}, cfg.Endpoints[0].PlannerToolFilter)
	assert.Equal(t, "mcp-local", cfg.Endpoints[1].Command)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Endpoints)
}

func TestConfig_EndpointNotFound(t *testing.T) {
	cfg := &Config{Endpoints: []EndpointConfig{{Name: "skills"}}}

	_, err := cfg.Endpoint("missing")
	assert.ErrorIs(t, err, ErrEndpointNotFound)

	endpoint, err := cfg.Endpoint("skills")
	require.NoError(t, err)
	assert.Equal(t, "skills", endpoint.Name)
}

func TestResolver_TransportErrors(t *testing.T) {
	resolver := NewResolver(&Config{})

	tests := []struct {
		name     string
		endpoint EndpointConfig
		wantErr  error
	}{
		{
			name:     "http endpoint without url",
			endpoint: EndpointConfig{Name: "aws"},
			wantErr:  ErrEndpointURLMissing,
		},
		{
			name:     "stdio endpoint without command",
			endpoint: EndpointConfig{Name: "local", Transport: TransportStdio},
			wantErr:  ErrStdioCommandMissing,
		},
		{
			name:     "unknown transport",
			endpoint: EndpointConfig{Name: "x", Transport: "grpc"},
			wantErr:  ErrTransportNotSupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Transport(&tt.endpoint, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolver_URLEnvFallback(t *testing.T) {
	t.Setenv("AWS_MCP_URL", "http://aws.internal/mcp")
	resolver := NewResolver(&Config{})

	transport, err := resolver.Transport(&EndpointConfig{Name: "aws", URLEnv: "AWS_MCP_URL"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, transport)
}

func TestResolveAuthHeaders_Precedence(t *testing.T) {
	t.Setenv("SKILLS_TOKEN", "env-token")
	rules := []AuthHeaderRule{
		{Name: "Authorization", RequestHeader: "X-Forwarded-Auth", Env: "SKILLS_TOKEN"},
	}

	// Request header wins over the environment.
	headers := http.Header{}
	headers.Set("X-Forwarded-Auth", "request-token")
	resolved := resolveAuthHeaders(rules, headers)
	assert.Equal(t, "request-token", resolved["Authorization"])

	// Environment is the fallback.
	resolved = resolveAuthHeaders(rules, http.Header{})
	assert.Equal(t, "env-token", resolved["Authorization"])

	// Nothing resolvable yields no header.
	os.Unsetenv("SKILLS_TOKEN")
	resolved = resolveAuthHeaders(rules, http.Header{})
	assert.Empty(t, resolved)
}
