// Package opensearch implements the storage ports on OpenSearch indices.
// Plans, memory, events, souls, and sessions each get their own index under a
// configurable prefix; memory uses a knn_vector field for semantic search.
// Nested volatile maps are flattened to canonical-JSON string fields so the
// index mappings stay strict.
package opensearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Config selects the cluster and index layout.
type Config struct {
	URL           string
	IndexPrefix   string
	EmbeddingDims int
	RetentionDays int
}

// Client wraps the OpenSearch connection shared by all repositories.
type Client struct {
	os     *opensearchgo.Client
	cfg    Config
	logger *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("opensearch url is required")
	}
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = "agent"
	}
	osClient, err := opensearchgo.NewClient(opensearchgo.Config{
		Addresses: []string{cfg.URL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating opensearch client: %w", err)
	}
	return &Client{
		os:     osClient,
		cfg:    cfg,
		logger: slog.Default().With("component", "opensearch"),
	}, nil
}

func (c *Client) indexName(suffix string) string {
	return c.cfg.IndexPrefix + "_" + suffix
}

func (c *Client) MemoryIndex() string   { return c.indexName("memory") }
func (c *Client) EventsIndex() string   { return c.indexName("events") }
func (c *Client) PlansIndex() string    { return c.indexName("plans") }
func (c *Client) SoulsIndex() string    { return c.indexName("souls") }
func (c *Client) SessionsIndex() string { return c.indexName("sessions") }

// EnsureIndices creates every index with its mapping when missing, and
// installs the event retention policy.
func (c *Client) EnsureIndices(ctx context.Context) error {
	indices := map[string]string{
		c.MemoryIndex():   memoryMapping(c.cfg.EmbeddingDims),
		c.EventsIndex():   eventsMapping,
		c.PlansIndex():    plansMapping,
		c.SoulsIndex():    soulsMapping,
		c.SessionsIndex(): sessionsMapping,
	}
	for name, mapping := range indices {
		if err := c.ensureIndex(ctx, name, mapping); err != nil {
			return err
		}
	}
	if err := c.ensureRetentionPolicy(ctx); err != nil {
		// ISM may be unavailable on minimal clusters; the cleanup service
		// still enforces retention with delete-by-query.
		c.logger.Warn("event retention policy not installed", "error", err)
	}
	return nil
}

func (c *Client) ensureIndex(ctx context.Context, name, mapping string) error {
	exists := opensearchapi.IndicesExistsRequest{Index: []string{name}}
	res, err := exists.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("checking index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	create := opensearchapi.IndicesCreateRequest{
		Index: name,
		Body:  strings.NewReader(mapping),
	}
	res, err = create.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Concurrent startup can race on creation.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("creating index %s: %s", name, string(body))
	}
	c.logger.Info("created index", "index", name)
	return nil
}

// ensureRetentionPolicy installs an ISM policy that deletes event documents
// past the retention window.
func (c *Client) ensureRetentionPolicy(ctx context.Context) error {
	days := c.cfg.RetentionDays
	if days <= 0 {
		days = 30
	}
	policyID := c.cfg.IndexPrefix + "_events_retention"
	body := fmt.Sprintf(`{
  "policy": {
    "description": "delete trace events after %dd",
    "default_state": "hot",
    "states": [
      {
        "name": "hot",
        "actions": [],
        "transitions": [{"state_name": "delete", "conditions": {"min_index_age": "%dd"}}]
      },
      {"name": "delete", "actions": [{"delete": {}}], "transitions": []}
    ],
    "ism_template": [{"index_patterns": ["%s*"], "priority": 100}]
  }
}`, days, days, c.EventsIndex())

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		"/_plugins/_ism/policies/"+policyID, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.os.Perform(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	// 409 means the policy already exists.
	if res.StatusCode >= 400 && res.StatusCode != http.StatusConflict {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("installing retention policy: %s", string(raw))
	}
	return nil
}
