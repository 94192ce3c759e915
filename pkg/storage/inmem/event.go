package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/models"
)

// EventRepository is an append-only in-memory trace log. Append stamps ids
// and timestamps and keeps timestamps strictly increasing so trace order is
// stable even when events arrive within the same clock tick.
type EventRepository struct {
	mu     sync.RWMutex
	events []*models.EventRecord
	lastTS time.Time
	now    func() time.Time
}

func NewEventRepository() *EventRepository {
	return &EventRepository{now: time.Now}
}

func (r *EventRepository) Append(ctx context.Context, event *models.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.EventID == "" {
		event.EventID = models.NewEventID()
	}
	ts := event.TS
	if ts.IsZero() {
		ts = r.now().UTC()
	}
	if !ts.After(r.lastTS) {
		ts = r.lastTS.Add(time.Nanosecond)
	}
	event.TS = ts
	r.lastTS = ts
	r.events = append(r.events, event)
	return nil
}

func (r *EventRepository) ListByPlan(ctx context.Context, planID string) ([]*models.EventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.EventRecord
	for _, event := range r.events {
		if event.PlanID == planID {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	deleted := 0
	for _, event := range r.events {
		if event.TS.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	r.events = kept
	return deleted, nil
}

// All returns every stored event in append order, for tests.
func (r *EventRepository) All() []*models.EventRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.EventRecord, len(r.events))
	copy(out, r.events)
	return out
}
