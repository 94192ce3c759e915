package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/plan"
	"github.com/Shubhamnegi/agent-core/pkg/storage/inmem"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRunner struct {
	lastReq *models.AgentRunRequest
	resp    *models.AgentRunResponse
	err     error
}

func (r *stubRunner) Run(ctx context.Context, req *models.AgentRunRequest) (*models.AgentRunResponse, error) {
	r.lastReq = req
	return r.resp, r.err
}

type apiFixture struct {
	server *Server
	runner *stubRunner
	plans  *inmem.PlanRepository
	events *inmem.EventRepository
	souls  *inmem.SoulRepository
}

func newAPIFixture() *apiFixture {
	runner := &stubRunner{resp: &models.AgentRunResponse{
		Status:   "complete",
		Response: "done",
		PlanID:   "plan_adk_000000000001",
	}}
	plans := inmem.NewPlanRepository()
	events := inmem.NewEventRepository()
	souls := inmem.NewSoulRepository()
	server := NewServer(runner, plans, events, souls, inmem.NewMemoryRepository(), nil)
	return &apiFixture{server: server, runner: runner, plans: plans, events: events, souls: souls}
}

func doJSON(t *testing.T, server *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	fx := newAPIFixture()
	w := doJSON(t, fx.server, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

func TestRunAgent(t *testing.T) {
	fx := newAPIFixture()
	body := `{"tenant_id": "acme", "user_id": "user-1", "session_id": "sess-1", "message": "hello"}`

	w := doJSON(t, fx.server, http.MethodPost, "/agent/run", body, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.AgentRunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "complete", resp.Status)
	assert.Equal(t, "plan_adk_000000000001", resp.PlanID)
	assert.Equal(t, "acme", fx.runner.lastReq.TenantID)
}

func TestRunAgent_HeadersOverrideBody(t *testing.T) {
	fx := newAPIFixture()
	body := `{"tenant_id": "body-tenant", "user_id": "body-user", "session_id": "body-sess", "message": "hello"}`

	w := doJSON(t, fx.server, http.MethodPost, "/agent/run", body, map[string]string{
		"X-Tenant-Id":  "header-tenant",
		"X-Session-Id": "header-sess",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "header-tenant", fx.runner.lastReq.TenantID)
	assert.Equal(t, "body-user", fx.runner.lastReq.UserID)
	assert.Equal(t, "header-sess", fx.runner.lastReq.SessionID)
}

func TestRunAgent_MissingIdentity(t *testing.T) {
	fx := newAPIFixture()
	body := `{"message": "hello"}`

	w := doJSON(t, fx.server, http.MethodPost, "/agent/run", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunAgent_MissingMessage(t *testing.T) {
	fx := newAPIFixture()
	body := `{"tenant_id": "acme", "user_id": "u", "session_id": "s"}`

	w := doJSON(t, fx.server, http.MethodPost, "/agent/run", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunAgent_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{
			name:       "validation error maps to 422",
			err:        &plan.ValidationError{Reason: plan.ReasonEmptyPlan},
			wantStatus: http.StatusUnprocessableEntity,
			wantReason: plan.ReasonEmptyPlan,
		},
		{
			name:       "unexpected error maps to opaque 500",
			err:        assert.AnError,
			wantStatus: http.StatusInternalServerError,
			wantReason: "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newAPIFixture()
			fx.runner.err = tt.err
			body := `{"tenant_id": "acme", "user_id": "u", "session_id": "s", "message": "hello"}`

			w := doJSON(t, fx.server, http.MethodPost, "/agent/run", body, nil)
			assert.Equal(t, tt.wantStatus, w.Code)

			var parsed map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
			assert.Equal(t, "failed", parsed["status"])
			assert.Equal(t, tt.wantReason, parsed["reason"])
		})
	}
}

func TestRequestIDEchoed(t *testing.T) {
	fx := newAPIFixture()

	w := doJSON(t, fx.server, http.MethodGet, "/health", "", map[string]string{
		"X-Request-Id": "req-123",
	})
	assert.Equal(t, "req-123", w.Header().Get("X-Request-Id"))

	// A request without the header gets a minted id.
	w = doJSON(t, fx.server, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestGetPlan(t *testing.T) {
	fx := newAPIFixture()
	p := models.NewPlan("acme", "user-1", "sess-1", []*models.PlanStep{
		{StepIndex: 1, Task: "analyze", Status: models.StepStatusPending},
	})
	require.NoError(t, fx.plans.Save(context.Background(), p))

	w := doJSON(t, fx.server, http.MethodGet, "/agent/plans/"+p.PlanID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var fetched models.Plan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, p.PlanID, fetched.PlanID)
}

func TestGetPlan_NotFound(t *testing.T) {
	fx := newAPIFixture()

	w := doJSON(t, fx.server, http.MethodGet, "/agent/plans/plan_missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error": "Plan not found"}`, w.Body.String())
}

func TestGetPlanTrace(t *testing.T) {
	fx := newAPIFixture()
	require.NoError(t, fx.events.Append(context.Background(), &models.EventRecord{
		EventType: models.EventStepStarted,
		PlanID:    "plan_abc",
		Payload:   map[string]any{"step_index": 1},
	}))

	w := doJSON(t, fx.server, http.MethodGet, "/agent/plans/plan_abc/trace", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var parsed struct {
		PlanID string                `json:"plan_id"`
		Events []*models.EventRecord `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	assert.Equal(t, "plan_abc", parsed.PlanID)
	require.Len(t, parsed.Events, 1)
	assert.Equal(t, models.EventStepStarted, parsed.Events[0].EventType)
}

func TestUpsertSoul(t *testing.T) {
	fx := newAPIFixture()
	body := `{"user_id": "user-1", "payload": {"persona": "finops assistant"}}`

	w := doJSON(t, fx.server, http.MethodPut, "/agent/souls/acme", body, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	payload, ok := fx.souls.Get("acme")
	require.True(t, ok)
	assert.Equal(t, "finops assistant", payload["persona"])
}

func TestUpsertSoul_MissingFields(t *testing.T) {
	fx := newAPIFixture()

	w := doJSON(t, fx.server, http.MethodPut, "/agent/souls/acme", `{"user_id": "u"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryMemory_RequiresIndexedBackend(t *testing.T) {
	fx := newAPIFixture()

	w := doJSON(t, fx.server, http.MethodGet, "/agent/memory/query?tenant_id=acme&query=costs", "", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
