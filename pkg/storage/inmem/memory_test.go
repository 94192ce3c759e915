package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

func writeReq(label string) storage.WriteRequest {
	return storage.WriteRequest{
		TenantID:  "acme",
		SessionID: "sess-1",
		TaskID:    "task_0a1b2c3d4e",
		Label:     label,
		Value:     map[string]any{"intent": "report"},
		Shape:     map[string]any{"intent": "string"},
		Scope:     models.ScopeSession,
	}
}

func TestMemoryRepository_WriteBuildsNamespacedKey(t *testing.T) {
	repo := NewMemoryRepository()

	key, err := repo.Write(context.Background(), writeReq("step_0_output"))
	require.NoError(t, err)
	assert.Equal(t, "acme:sess-1:task_0a1b2c3d4e:step_0_output", key)

	record, ok := repo.Get(key)
	require.True(t, ok)
	assert.Equal(t, models.ScopeSession, record.Scope)
	assert.Equal(t, "step_0_output", record.Key)
}

func TestMemoryRepository_WriteRejectsColonLabel(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.Write(context.Background(), writeReq("bad:label"))
	assert.ErrorIs(t, err, storage.ErrInvalidMemoryLabel)
}

func TestMemoryRepository_WriteChecksContractBeforeLocking(t *testing.T) {
	repo := NewMemoryRepository()
	req := writeReq("step_0_output")
	req.Value = map[string]any{"wrong": true}

	_, err := repo.Write(context.Background(), req)
	var violation *storage.ContractViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "intent", violation.Field)

	// A failed contract check never takes the lock.
	key := models.BuildNamespacedKey(req.TenantID, req.SessionID, req.TaskID, req.Label)
	assert.False(t, repo.Locks().Held(key))
}

func TestMemoryRepository_UpsertPreservesCreatedAt(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }

	key, err := repo.Write(context.Background(), writeReq("step_0_output"))
	require.NoError(t, err)

	repo.now = func() time.Time { return base.Add(time.Hour) }
	req := writeReq("step_0_output")
	req.Value = map[string]any{"intent": "updated"}
	_, err = repo.Write(context.Background(), req)
	require.NoError(t, err)

	record, ok := repo.Get(key)
	require.True(t, ok)
	assert.Equal(t, base, record.CreatedAt)
	assert.Equal(t, base.Add(time.Hour), record.UpdatedAt)
	assert.Equal(t, "updated", record.Value["intent"])
}

func TestMemoryRepository_ReadReleasesLock(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	key, err := repo.Write(ctx, writeReq("step_0_output"))
	require.NoError(t, err)
	require.True(t, repo.Locks().Held(key))

	value, err := repo.Read(ctx, key, true)
	require.NoError(t, err)
	assert.Equal(t, "report", value["intent"])
	assert.False(t, repo.Locks().Held(key))
}

func TestMemoryRepository_ReadUnknownKey(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.Read(context.Background(), "acme:sess-1:task_x:missing", false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryRepository_SearchFilters(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	reqA := writeReq("cost_summary")
	reqA.Value = map[string]any{"intent": "cost analysis"}
	_, err := repo.Write(ctx, reqA)
	require.NoError(t, err)

	reqB := writeReq("user_pref")
	reqB.Scope = models.ScopeUser
	reqB.Value = map[string]any{"intent": "prefers terse replies"}
	_, err = repo.Write(ctx, reqB)
	require.NoError(t, err)

	reqC := writeReq("other_session")
	reqC.SessionID = "sess-2"
	reqC.Value = map[string]any{"intent": "cost analysis"}
	_, err = repo.Write(ctx, reqC)
	require.NoError(t, err)

	tests := []struct {
		name     string
		req      storage.SearchRequest
		wantKeys []string
	}{
		{
			name:     "session scope filters by session id",
			req:      storage.SearchRequest{TenantID: "acme", SessionID: "sess-1", Query: "cost", Scope: models.ScopeSession, TopK: 5},
			wantKeys: []string{"cost_summary"},
		},
		{
			name:     "user scope ignores session",
			req:      storage.SearchRequest{TenantID: "acme", Query: "terse", Scope: models.ScopeUser, TopK: 5},
			wantKeys: []string{"user_pref"},
		},
		{
			name:     "other tenant sees nothing",
			req:      storage.SearchRequest{TenantID: "globex", Query: "cost", Scope: models.ScopeSession, TopK: 5},
			wantKeys: nil,
		},
		{
			name:     "no query matches everything in scope",
			req:      storage.SearchRequest{TenantID: "acme", SessionID: "sess-2", Scope: models.ScopeSession, TopK: 5},
			wantKeys: []string{"other_session"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := repo.Search(ctx, tt.req)
			require.NoError(t, err)
			var keys []string
			for _, record := range records {
				keys = append(keys, record.Key)
			}
			assert.Equal(t, tt.wantKeys, keys)
		})
	}
}

func TestMemoryRepository_SearchTopK(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i, label := range []string{"first", "second", "third"} {
		tick := base.Add(time.Duration(i) * time.Minute)
		repo.now = func() time.Time { return tick }
		req := writeReq(label)
		_, err := repo.Write(ctx, req)
		require.NoError(t, err)
	}

	records, err := repo.Search(ctx, storage.SearchRequest{
		TenantID: "acme", SessionID: "sess-1", Scope: models.ScopeSession, TopK: 2,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Newest first.
	assert.Equal(t, "third", records[0].Key)
	assert.Equal(t, "second", records[1].Key)
}
