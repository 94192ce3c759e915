package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/plan"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// Health handles GET /health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RunAgentRequest is the request body for POST /agent/run. Identity fields
// may also arrive as X-Tenant-Id / X-User-Id / X-Session-Id headers, which
// take precedence.
type RunAgentRequest struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

// RunAgent handles POST /agent/run.
func (s *Server) RunAgent(c *gin.Context) {
	var body RunAgentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req := &models.AgentRunRequest{
		TenantID:  headerOverride(c, "X-Tenant-Id", body.TenantID),
		UserID:    headerOverride(c, "X-User-Id", body.UserID),
		SessionID: headerOverride(c, "X-Session-Id", body.SessionID),
		Message:   body.Message,
	}
	if req.TenantID == "" || req.UserID == "" || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id, user_id, and session_id are required"})
		return
	}

	response, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		s.writeRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// writeRunError maps structured runtime failures to 422 and everything else
// to an opaque 500.
func (s *Server) writeRunError(c *gin.Context, err error) {
	var validationErr *plan.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusUnprocessableEntity, validationErr.Failure())
		return
	}
	var limitErr *plan.ReplanLimitError
	if errors.As(err, &limitErr) {
		c.JSON(http.StatusUnprocessableEntity, limitErr.Failure())
		return
	}
	s.logger.Error("agent run failed", "error", err, "request_id", c.GetString("request_id"))
	c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "reason": "internal_error"})
}

// GetPlan handles GET /agent/plans/:id.
func (s *Server) GetPlan(c *gin.Context) {
	p, err := s.plans.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetPlanTrace handles GET /agent/plans/:id/trace.
func (s *Server) GetPlanTrace(c *gin.Context) {
	planID := c.Param("id")
	events, err := s.events.ListByPlan(c.Request.Context(), planID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan_id": planID, "events": events})
}

// UpsertSoulRequest is the request body for PUT /agent/souls/:tenant_id.
type UpsertSoulRequest struct {
	UserID  string         `json:"user_id" binding:"required"`
	Payload map[string]any `json:"payload" binding:"required"`
}

// UpsertSoul handles PUT /agent/souls/:tenant_id.
func (s *Server) UpsertSoul(c *gin.Context) {
	var body UpsertSoulRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.souls.Upsert(c.Request.Context(), c.Param("tenant_id"), body.UserID, body.Payload); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// QueryMemory handles GET /agent/memory/query. It requires the indexed
// backend: an embedder plus a kNN-capable memory store.
func (s *Server) QueryMemory(c *gin.Context) {
	searcher, ok := s.memory.(storage.KNNSearcher)
	if !ok || s.embedder == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "memory query requires the indexed storage backend"})
		return
	}
	tenantID := c.Query("tenant_id")
	query := c.Query("query")
	if tenantID == "" || query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and query are required"})
		return
	}
	scope := models.MemoryScope(c.DefaultQuery("scope", string(models.ScopeUser)))
	if !scope.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be session or user"})
		return
	}
	topK, err := strconv.Atoi(c.DefaultQuery("top_k", "5"))
	if err != nil || topK < 1 {
		topK = 5
	}

	vector, err := s.embedder.Embed(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	records, err := searcher.KNNSearch(c.Request.Context(), tenantID, scope, vector, topK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "scope": scope, "results": records, "count": len(records)})
}

func headerOverride(c *gin.Context, header, fallback string) string {
	if value := c.GetHeader(header); value != "" {
		return value
	}
	return fallback
}
