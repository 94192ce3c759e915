package mcp

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resolver turns endpoint configs plus per-request headers into connectable
// SDK transports.
type Resolver struct {
	cfg *Config
}

func NewResolver(cfg *Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Transport resolves the SDK transport for endpoint. requestHeaders come from
// the inbound HTTP request and take precedence over the environment when
// resolving auth header values.
func (r *Resolver) Transport(endpoint *EndpointConfig, requestHeaders http.Header) (mcpsdk.Transport, error) {
	switch endpoint.transportName() {
	case TransportStdio:
		return r.stdioTransport(endpoint)
	case TransportStreamableHTTP:
		url, err := r.resolveURL(endpoint)
		if err != nil {
			return nil, err
		}
		return &mcpsdk.StreamableClientTransport{
			Endpoint:   url,
			HTTPClient: r.httpClient(endpoint, requestHeaders),
		}, nil
	case TransportSSE:
		url, err := r.resolveURL(endpoint)
		if err != nil {
			return nil, err
		}
		return &mcpsdk.SSEClientTransport{
			Endpoint:   url,
			HTTPClient: r.httpClient(endpoint, requestHeaders),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrTransportNotSupported, endpoint.Transport)
	}
}

func (r *Resolver) resolveURL(endpoint *EndpointConfig) (string, error) {
	if endpoint.URL != "" {
		return endpoint.URL, nil
	}
	if endpoint.URLEnv != "" {
		if url := os.Getenv(endpoint.URLEnv); url != "" {
			return url, nil
		}
	}
	return "", fmt.Errorf("%w: endpoint %s", ErrEndpointURLMissing, endpoint.Name)
}

func (r *Resolver) stdioTransport(endpoint *EndpointConfig) (mcpsdk.Transport, error) {
	if endpoint.Command == "" {
		return nil, fmt.Errorf("%w: endpoint %s", ErrStdioCommandMissing, endpoint.Name)
	}
	cmd := exec.Command(endpoint.Command, endpoint.Args...)
	env := os.Environ()
	for k, v := range endpoint.StdioEnv {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}

// httpClient wraps the default transport with the endpoint's resolved auth
// headers; nil when there is nothing to add.
func (r *Resolver) httpClient(endpoint *EndpointConfig, requestHeaders http.Header) *http.Client {
	headers := resolveAuthHeaders(endpoint.AuthHeaders, requestHeaders)
	if len(headers) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerInjectingTransport{
			base:    http.DefaultTransport,
			headers: headers,
		},
	}
}

// resolveAuthHeaders applies the precedence rule: the inbound request header
// (matched case-insensitively) wins over the environment variable.
func resolveAuthHeaders(rules []AuthHeaderRule, requestHeaders http.Header) map[string]string {
	out := map[string]string{}
	for _, rule := range rules {
		if rule.RequestHeader != "" && requestHeaders != nil {
			if value := requestHeaders.Get(rule.RequestHeader); value != "" {
				out[rule.Name] = value
				continue
			}
		}
		if rule.Env != "" {
			if value := os.Getenv(rule.Env); value != "" {
				out[rule.Name] = value
			}
		}
	}
	return out
}

// headerInjectingTransport adds resolved auth headers to every outbound
// request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for name, value := range t.headers {
		req.Header.Set(name, value)
	}
	return t.base.RoundTrip(req)
}
