package opensearch

import (
	"context"
	"errors"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/canonical"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// SessionStore persists session records keyed by session id.
type SessionStore struct {
	client *Client
	now    func() time.Time
}

func NewSessionStore(client *Client) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

func (s *SessionStore) Ensure(ctx context.Context, tenantID, userID, sessionID string) (bool, error) {
	_, err := s.Get(ctx, sessionID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	now := s.now().UTC()
	record := &storage.SessionRecord{
		SessionID: sessionID,
		TenantID:  tenantID,
		UserID:    userID,
		State:     map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Upsert(ctx, record); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SessionStore) Upsert(ctx context.Context, record *storage.SessionRecord) error {
	now := s.now().UTC()
	record.UpdatedAt = now
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	doc := map[string]any{
		"session_id": record.SessionID,
		"tenant_id":  record.TenantID,
		"user_id":    record.UserID,
		"state_json": canonical.MustMarshal(record.State),
		"created_at": record.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	return s.client.indexDoc(ctx, s.client.SessionsIndex(), "sessions", record.SessionID, doc)
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*storage.SessionRecord, error) {
	doc, err := s.client.getDoc(ctx, s.client.SessionsIndex(), sessionID)
	if err != nil {
		return nil, err
	}
	record := &storage.SessionRecord{
		SessionID: stringField(doc, "session_id"),
		TenantID:  stringField(doc, "tenant_id"),
		UserID:    stringField(doc, "user_id"),
		State:     decodeJSONField(doc, "state_json"),
	}
	if record.State == nil {
		record.State = map[string]any{}
	}
	if t, err := time.Parse(time.RFC3339Nano, stringField(doc, "created_at")); err == nil {
		record.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, stringField(doc, "updated_at")); err == nil {
		record.UpdatedAt = t
	}
	return record, nil
}
