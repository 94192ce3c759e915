// Package api exposes the HTTP surface: agent runs, plan and trace lookup,
// soul upserts, indexed memory queries, and health.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shubhamnegi/agent-core/pkg/models"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// AgentRunner is the runtime entrypoint the server delegates agent runs to.
type AgentRunner interface {
	Run(ctx context.Context, req *models.AgentRunRequest) (*models.AgentRunResponse, error)
}

// Server is the HTTP server.
type Server struct {
	runner   AgentRunner
	plans    storage.PlanRepository
	events   storage.EventRepository
	souls    storage.SoulRepository
	memory   storage.MemoryRepository
	embedder storage.Embedder
	logger   *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// NewServer wires the HTTP surface. Embedder may be nil; the memory query
// endpoint then reports not implemented.
func NewServer(runner AgentRunner, plans storage.PlanRepository, events storage.EventRepository, souls storage.SoulRepository, memory storage.MemoryRepository, embedder storage.Embedder) *Server {
	s := &Server{
		runner:   runner,
		plans:    plans,
		events:   events,
		souls:    souls,
		memory:   memory,
		embedder: embedder,
		logger:   slog.Default().With("component", "api"),
	}
	s.engine = s.buildRouter()
	return s
}

// Router returns the configured gin engine; exposed for tests.
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Start runs the HTTP server on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(s.logger))

	router.GET("/health", s.Health)
	router.POST("/agent/run", s.RunAgent)
	router.GET("/agent/plans/:id", s.GetPlan)
	router.GET("/agent/plans/:id/trace", s.GetPlanTrace)
	router.PUT("/agent/souls/:tenant_id", s.UpsertSoul)
	router.GET("/agent/memory/query", s.QueryMemory)
	return router
}
