package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// SlackConfig configures the Slack adapter. The token can be inlined or named
// by env var; BotToken wins when both are set.
type SlackConfig struct {
	BotToken    string `json:"bot_token"`
	BotTokenEnv string `json:"bot_token_env"`
	BaseURL     string `json:"base_url"`
}

// Token resolves the bot token, falling back to SLACK_BOT_TOKEN.
func (c SlackConfig) Token() string {
	if c.BotToken != "" {
		return c.BotToken
	}
	env := c.BotTokenEnv
	if env == "" {
		env = "SLACK_BOT_TOKEN"
	}
	return os.Getenv(env)
}

// SMTPConfig configures the email adapter.
type SMTPConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	PasswordEnv string `json:"password_env"`
	UseTLS      bool   `json:"use_tls"`
	UseSSL      bool   `json:"use_ssl"`
	FromEmail   string `json:"from_email"`
	FromName    string `json:"from_name"`
}

// ResolvedPassword resolves the SMTP password, falling back to SMTP_PASSWORD.
func (c SMTPConfig) ResolvedPassword() string {
	if c.Password != "" {
		return c.Password
	}
	env := c.PasswordEnv
	if env == "" {
		env = "SMTP_PASSWORD"
	}
	return os.Getenv(env)
}

// Configured reports whether the full sending configuration is present.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port != 0 && c.FromEmail != ""
}

// CommunicationConfig is the communication_config.json document.
type CommunicationConfig struct {
	Slack SlackConfig `json:"slack"`
	SMTP  SMTPConfig  `json:"smtp"`
}

// LoadCommunicationConfig reads communication_config.json. An empty path
// yields an unconfigured document, which makes the communication tools return
// not_configured instead of failing.
func LoadCommunicationConfig(path string) (*CommunicationConfig, error) {
	cfg := &CommunicationConfig{}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading communication config: %w", err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing communication config: %w", err)
	}
	return cfg, nil
}
