// Package config loads runtime settings from the environment and the JSON
// configuration files (agent models, communication, MCP endpoints path).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage backend identifiers.
const (
	StorageInMemory   = "in_memory"
	StorageOpenSearch = "opensearch"
)

// Settings is the environment-driven runtime configuration. Every field has a
// default so a bare process starts with the in-memory profile.
type Settings struct {
	AppName string
	Port    int

	MaxPlanSteps int
	MaxReplans   int

	StorageBackend      string
	OpenSearchURL       string
	OpenSearchPrefix    string
	EmbeddingDims       int
	EventsRetentionDays int

	ModelName          string
	EmbeddingModelName string
	ModelsConfigPath   string
	LLMAPIKey          string
	LLMBaseURL         string

	SkillServiceURL string
	SkillServiceKey string

	CommunicationConfigPath string

	MCPConfigPath     string
	MCPSessionTimeout time.Duration

	TempFileMaxAge time.Duration
}

// LoadSettings reads the AGENT_* environment surface.
func LoadSettings() (*Settings, error) {
	s := &Settings{
		AppName:                 getEnv("AGENT_APP_NAME", "agent-core"),
		Port:                    getEnvInt("AGENT_PORT", 8080),
		MaxPlanSteps:            getEnvInt("AGENT_MAX_PLAN_STEPS", 10),
		MaxReplans:              getEnvInt("AGENT_MAX_REPLANS", 3),
		StorageBackend:          getEnv("AGENT_STORAGE_BACKEND", StorageInMemory),
		OpenSearchURL:           getEnv("AGENT_OPENSEARCH_URL", ""),
		OpenSearchPrefix:        getEnv("AGENT_OPENSEARCH_INDEX_PREFIX", "agent"),
		EmbeddingDims:           getEnvInt("AGENT_EMBEDDING_DIMS", 768),
		EventsRetentionDays:     getEnvInt("AGENT_EVENTS_RETENTION_DAYS", 30),
		ModelName:               getEnv("AGENT_MODEL_NAME", "gpt-4o-mini"),
		EmbeddingModelName:      getEnv("AGENT_EMBEDDING_MODEL_NAME", "text-embedding-3-small"),
		ModelsConfigPath:        getEnv("AGENT_MODELS_CONFIG_PATH", ""),
		LLMAPIKey:               getEnv("AGENT_LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
		LLMBaseURL:              getEnv("AGENT_LLM_BASE_URL", ""),
		SkillServiceURL:         getEnv("AGENT_SKILL_SERVICE_URL", ""),
		SkillServiceKey:         getEnv("AGENT_SKILL_SERVICE_KEY", ""),
		CommunicationConfigPath: getEnv("AGENT_COMMUNICATION_CONFIG_PATH", ""),
		MCPConfigPath:           getEnv("AGENT_MCP_CONFIG_PATH", ""),
		MCPSessionTimeout:       getEnvDuration("AGENT_MCP_SESSION_TIMEOUT", 60*time.Second),
		TempFileMaxAge:          getEnvDuration("AGENT_TEMP_FILE_MAX_AGE", 300*time.Second),
	}
	if s.StorageBackend != StorageInMemory && s.StorageBackend != StorageOpenSearch {
		return nil, fmt.Errorf("unknown storage backend %q", s.StorageBackend)
	}
	if s.StorageBackend == StorageOpenSearch && s.OpenSearchURL == "" {
		return nil, fmt.Errorf("AGENT_OPENSEARCH_URL is required for the opensearch backend")
	}
	return s, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// getEnvDuration accepts both Go duration strings ("60s") and bare seconds
// ("60").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if value, err := time.ParseDuration(raw); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
