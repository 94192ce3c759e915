package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Shubhamnegi/agent-core/pkg/version"
)

// DefaultSessionTimeout bounds MCP session establishment.
const DefaultSessionTimeout = 60 * time.Second

// Client manages MCP SDK sessions, one per endpoint. A Client is scoped to a
// single request; sessions may still be touched from multiple goroutines, so
// access is guarded.
type Client struct {
	cfg            *Config
	resolver       *Resolver
	sessionTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession

	logger *slog.Logger
}

func NewClient(cfg *Config, sessionTimeout time.Duration) *Client {
	if sessionTimeout <= 0 {
		sessionTimeout = DefaultSessionTimeout
	}
	return &Client{
		cfg:            cfg,
		resolver:       NewResolver(cfg),
		sessionTimeout: sessionTimeout,
		sessions:       make(map[string]*mcpsdk.ClientSession),
		logger:         slog.Default().With("component", "mcp_client"),
	}
}

// Connect establishes a session with the named endpoint. Returns nil when
// already connected.
func (c *Client) Connect(ctx context.Context, endpointName string, requestHeaders http.Header) error {
	c.mu.RLock()
	_, exists := c.sessions[endpointName]
	c.mu.RUnlock()
	if exists {
		return nil
	}

	endpoint, err := c.cfg.Endpoint(endpointName)
	if err != nil {
		return err
	}
	transport, err := c.resolver.Transport(endpoint, requestHeaders)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.sessionTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)
	session, err := client.Connect(connectCtx, transport, nil)
	if err != nil {
		// Close the transport if it holds resources (stdio child processes).
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return fmt.Errorf("connecting to endpoint %q: %w", endpointName, err)
	}

	c.mu.Lock()
	c.sessions[endpointName] = session
	c.mu.Unlock()
	c.logger.Info("MCP endpoint connected", "endpoint", endpointName)
	return nil
}

// ListTools returns the tools advertised by the named endpoint.
func (c *Client) ListTools(ctx context.Context, endpointName string) ([]*mcpsdk.Tool, error) {
	session, err := c.session(endpointName)
	if err != nil {
		return nil, err
	}
	result, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing tools from %q: %w", endpointName, err)
	}
	tools := result.Tools
	if tools == nil {
		tools = []*mcpsdk.Tool{}
	}
	return tools, nil
}

// CallTool executes a tool on the named endpoint and returns the result
// content concatenated as text.
func (c *Client) CallTool(ctx context.Context, endpointName, toolName string, args map[string]any) (string, error) {
	session, err := c.session(endpointName)
	if err != nil {
		return "", err
	}
	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("calling tool %q on %q: %w", toolName, endpointName, err)
	}
	var text string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tc.Text
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tool %q on %q failed: %s", toolName, endpointName, text)
	}
	return text, nil
}

// Close shuts down every session.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, session := range c.sessions {
		if err := session.Close(); err != nil {
			c.logger.Warn("failed to close MCP session", "endpoint", name, "error", err)
		}
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
}

func (c *Client) session(endpointName string) (*mcpsdk.ClientSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	session, ok := c.sessions[endpointName]
	if !ok {
		return nil, fmt.Errorf("%w: no session for %s", ErrEndpointNotFound, endpointName)
	}
	return session, nil
}
