package opensearch

import (
	"context"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/canonical"
)

// SoulRepository stores one persona document per tenant, keyed by tenant id.
type SoulRepository struct {
	client *Client
}

func NewSoulRepository(client *Client) *SoulRepository {
	return &SoulRepository{client: client}
}

func (r *SoulRepository) Upsert(ctx context.Context, tenantID, userID string, payload map[string]any) error {
	doc := map[string]any{
		"tenant_id":    tenantID,
		"user_id":      userID,
		"payload_json": canonical.MustMarshal(payload),
		"updated_at":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	return r.client.indexDoc(ctx, r.client.SoulsIndex(), "souls", tenantID, doc)
}
