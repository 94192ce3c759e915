package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// indexDoc validates doc against the index schema and upserts it under id.
// Writes refresh immediately so follow-up reads in the same plan see them.
func (c *Client) indexDoc(ctx context.Context, index, suffix, id string, doc map[string]any) error {
	if err := validateDocument(index, suffix, doc); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document for %s: %w", index, err)
	}
	req := opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       strings.NewReader(string(raw)),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("indexing into %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("indexing into %s: %s", index, string(body))
	}
	return nil
}

// getDoc fetches the _source of id, or storage.ErrNotFound.
func (c *Client) getDoc(ctx context.Context, index, id string) (map[string]any, error) {
	req := opensearchapi.GetRequest{Index: index, DocumentID: id}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, storage.ErrNotFound
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("fetching from %s: %s", index, string(body))
	}
	var envelope struct {
		Found  bool           `json:"found"`
		Source map[string]any `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding get response from %s: %w", index, err)
	}
	if !envelope.Found {
		return nil, storage.ErrNotFound
	}
	return envelope.Source, nil
}

// search runs a query body against index and returns the hit sources.
func (c *Client) search(ctx context.Context, index, body string) ([]map[string]any, error) {
	req := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  strings.NewReader(body),
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("searching %s: %s", index, string(raw))
	}
	var envelope struct {
		Hits struct {
			Hits []struct {
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding search response from %s: %w", index, err)
	}
	out := make([]map[string]any, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}

// deleteByQuery removes matching documents and returns the deleted count.
func (c *Client) deleteByQuery(ctx context.Context, index, body string) (int, error) {
	req := opensearchapi.DeleteByQueryRequest{
		Index: []string{index},
		Body:  strings.NewReader(body),
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return 0, fmt.Errorf("delete by query on %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("delete by query on %s: %s", index, string(raw))
	}
	var envelope struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return 0, fmt.Errorf("decoding delete response from %s: %w", index, err)
	}
	return envelope.Deleted, nil
}

func stringField(doc map[string]any, field string) string {
	s, _ := doc[field].(string)
	return s
}

func decodeJSONField(doc map[string]any, field string) map[string]any {
	raw := stringField(doc, field)
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
