package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/canonical"
	"github.com/Shubhamnegi/agent-core/pkg/models"
)

// EventRepository appends trace events to the events index. Payloads are
// flattened to canonical JSON; timestamps are kept strictly increasing within
// this writer so trace order survives same-millisecond bursts.
type EventRepository struct {
	client *Client

	mu     sync.Mutex
	lastTS time.Time
	now    func() time.Time
}

func NewEventRepository(client *Client) *EventRepository {
	return &EventRepository{client: client, now: time.Now}
}

func (r *EventRepository) Append(ctx context.Context, event *models.EventRecord) error {
	if event.EventID == "" {
		event.EventID = models.NewEventID()
	}
	r.mu.Lock()
	ts := event.TS
	if ts.IsZero() {
		ts = r.now().UTC()
	}
	if !ts.After(r.lastTS) {
		ts = r.lastTS.Add(time.Nanosecond)
	}
	r.lastTS = ts
	r.mu.Unlock()
	event.TS = ts

	doc := map[string]any{
		"event_id":     event.EventID,
		"event_type":   event.EventType,
		"tenant_id":    event.TenantID,
		"session_id":   event.SessionID,
		"plan_id":      event.PlanID,
		"task_id":      event.TaskID,
		"payload_json": canonical.MustMarshal(event.Payload),
		"ts":           ts.Format(time.RFC3339Nano),
	}
	return r.client.indexDoc(ctx, r.client.EventsIndex(), "events", event.EventID, doc)
}

func (r *EventRepository) ListByPlan(ctx context.Context, planID string) ([]*models.EventRecord, error) {
	query := map[string]any{
		"size":  10000,
		"query": map[string]any{"term": map[string]any{"plan_id": planID}},
		"sort":  []any{map[string]any{"ts": map[string]any{"order": "asc"}}},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	hits, err := r.client.search(ctx, r.client.EventsIndex(), string(body))
	if err != nil {
		return nil, err
	}
	events := make([]*models.EventRecord, 0, len(hits))
	for _, hit := range hits {
		event := &models.EventRecord{
			EventID:   stringField(hit, "event_id"),
			EventType: stringField(hit, "event_type"),
			TenantID:  stringField(hit, "tenant_id"),
			SessionID: stringField(hit, "session_id"),
			PlanID:    stringField(hit, "plan_id"),
			TaskID:    stringField(hit, "task_id"),
			Payload:   decodeJSONField(hit, "payload_json"),
		}
		if t, err := time.Parse(time.RFC3339Nano, stringField(hit, "ts")); err == nil {
			event.TS = t
		}
		events = append(events, event)
	}
	return events, nil
}

func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := fmt.Sprintf(`{"query":{"range":{"ts":{"lt":%q}}}}`,
		cutoff.UTC().Format(time.RFC3339Nano))
	return r.client.deleteByQuery(ctx, r.client.EventsIndex(), query)
}
