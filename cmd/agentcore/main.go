// agent-core orchestration server. Accepts user requests over HTTP and
// drives them through the coordinator graph: planning, policy-gated
// delegation, step execution with bounded replanning, and memory-backed
// response synthesis.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Shubhamnegi/agent-core/pkg/agent"
	"github.com/Shubhamnegi/agent-core/pkg/api"
	"github.com/Shubhamnegi/agent-core/pkg/cleanup"
	"github.com/Shubhamnegi/agent-core/pkg/config"
	"github.com/Shubhamnegi/agent-core/pkg/largeresponse"
	"github.com/Shubhamnegi/agent-core/pkg/llm"
	"github.com/Shubhamnegi/agent-core/pkg/mcp"
	"github.com/Shubhamnegi/agent-core/pkg/policy"
	"github.com/Shubhamnegi/agent-core/pkg/runtime"
	"github.com/Shubhamnegi/agent-core/pkg/sandbox"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
	"github.com/Shubhamnegi/agent-core/pkg/storage/inmem"
	"github.com/Shubhamnegi/agent-core/pkg/storage/opensearch"
	"github.com/Shubhamnegi/agent-core/pkg/version"
)

func setupLogging() {
	level := slog.LevelInfo
	switch os.Getenv("AGENT_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetLogLoggerLevel(level)
}

func main() {
	setupLogging()
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, continuing with existing environment")
	}

	settings, err := config.LoadSettings()
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting agent-core",
		"version", version.Full(),
		"port", settings.Port,
		"storage_backend", settings.StorageBackend)

	ctx := context.Background()

	agentModels, err := config.LoadAgentModels(settings.ModelsConfigPath, settings.ModelName)
	if err != nil {
		slog.Error("Failed to load agent models config", "error", err)
		os.Exit(1)
	}
	comm, err := config.LoadCommunicationConfig(settings.CommunicationConfigPath)
	if err != nil {
		slog.Error("Failed to load communication config", "error", err)
		os.Exit(1)
	}

	// 1. Storage backend
	var (
		plans    storage.PlanRepository
		memory   storage.MemoryRepository
		events   storage.EventRepository
		souls    storage.SoulRepository
		sessions storage.SessionStore
		embedder storage.Embedder
	)
	switch settings.StorageBackend {
	case config.StorageOpenSearch:
		embedder = llm.NewOpenAIEmbedder(settings.LLMAPIKey, settings.LLMBaseURL, settings.EmbeddingModelName, settings.EmbeddingDims)
		osClient, err := opensearch.NewClient(opensearch.Config{
			URL:           settings.OpenSearchURL,
			IndexPrefix:   settings.OpenSearchPrefix,
			EmbeddingDims: settings.EmbeddingDims,
			RetentionDays: settings.EventsRetentionDays,
		})
		if err != nil {
			slog.Error("Failed to create OpenSearch client", "error", err)
			os.Exit(1)
		}
		if err := osClient.EnsureIndices(ctx); err != nil {
			slog.Error("Failed to ensure OpenSearch indices", "error", err)
			os.Exit(1)
		}
		plans = opensearch.NewPlanRepository(osClient)
		memory = opensearch.NewMemoryRepository(osClient, embedder)
		events = opensearch.NewEventRepository(osClient)
		souls = opensearch.NewSoulRepository(osClient)
		sessions = opensearch.NewSessionStore(osClient)
		slog.Info("Connected to OpenSearch", "url", settings.OpenSearchURL, "prefix", settings.OpenSearchPrefix)
	default:
		plans = inmem.NewPlanRepository()
		memory = inmem.NewMemoryRepository()
		events = inmem.NewEventRepository()
		souls = inmem.NewSoulRepository()
		sessions = inmem.NewSessionStore()
		slog.Info("Using in-memory storage")
	}

	// 2. Large-response pipeline and sandbox
	tempRoot := filepath.Join(os.TempDir(), settings.AppName)
	tempFiles, err := largeresponse.NewTempFileRegistry(tempRoot)
	if err != nil {
		slog.Error("Failed to create temp file registry", "root", tempRoot, "error", err)
		os.Exit(1)
	}
	sandboxExec := sandbox.NewExecutor(tempFiles.Root())
	pipeline := largeresponse.NewPipeline(tempFiles, sandboxExec, events)

	// 3. MCP endpoints
	var mcpConfig *mcp.Config
	if settings.MCPConfigPath != "" {
		mcpConfig, err = mcp.LoadConfig(settings.MCPConfigPath)
		if err != nil {
			slog.Error("Failed to load MCP config", "path", settings.MCPConfigPath, "error", err)
			os.Exit(1)
		}
		slog.Info("MCP endpoints configured", "count", len(mcpConfig.Endpoints))
	}
	mcpClient := mcp.NewClient(mcpConfig, settings.MCPSessionTimeout)
	defer mcpClient.Close()

	// 4. Agents: model-backed when an API key is present, deterministic mocks
	// otherwise.
	var (
		llmClient llm.Client
		planner   agent.PlannerAgent
		executor  agent.ExecutorAgent
	)
	if settings.LLMAPIKey != "" {
		client := llm.NewOpenAIClient(settings.LLMAPIKey, settings.LLMBaseURL)
		llmClient = client
		planner = agent.NewLLMPlannerAgent(client, agentModels.ModelFor(config.RolePlanner), mcpClient, mcpConfig, nil)
		executor = agent.NewLLMExecutorAgent(client, agentModels.ModelFor(config.RoleExecutor), mcpClient, mcpConfig, nil, pipeline)
		slog.Info("Model-backed agents initialized", "default_model", settings.ModelName)
	} else {
		planner = agent.NewMockPlannerAgent()
		executor = agent.NewMockExecutorAgent()
		slog.Warn("No LLM API key configured, using mock agents")
	}

	// 5. Runtime
	engine := policy.NewEngine(events)
	flow := runtime.NewExecutionFlow(planner, executor, plans, memory, events, settings.MaxReplans, settings.MaxPlanSteps)
	orchestrator := runtime.NewOrchestrator(runtime.OrchestratorDeps{
		Sessions:    sessions,
		Events:      events,
		Engine:      engine,
		Flow:        flow,
		LLM:         llmClient,
		AgentModels: agentModels,
		Memory:      memory,
		Comm:        comm,
		TempFiles:   tempFiles,
		Sandbox:     sandboxExec,
	})

	// 6. Background retention sweeps
	cleanupSvc := cleanup.NewService(events, tempFiles,
		time.Duration(settings.EventsRetentionDays)*24*time.Hour,
		settings.TempFileMaxAge)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	// 7. HTTP server
	server := api.NewServer(orchestrator, plans, events, souls, memory, embedder)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", settings.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}
