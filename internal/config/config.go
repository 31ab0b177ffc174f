package config

import (
	"fmt"
	"net/url"
)

// Config is the main opsagent configuration
type Config struct {
	LLM      LLMConfig      `json:"llm" mapstructure:"llm"`
	Agent    AgentConfig    `json:"agent" mapstructure:"agent"`
	Workflow WorkflowConfig `json:"workflow" mapstructure:"workflow"`
	Alerts   AlertsConfig   `json:"alerts" mapstructure:"alerts"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	DataDir  string         `json:"data_dir" mapstructure:"data_dir"`
}

// LLMConfig holds completion backend settings
type LLMConfig struct {
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	Model          string `json:"model" mapstructure:"model"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxAttempts    int    `json:"max_attempts" mapstructure:"max_attempts"`
}

// AgentConfig bounds the agent loop
type AgentConfig struct {
	MaxRounds          int    `json:"max_rounds" mapstructure:"max_rounds"`
	MaxConcurrentTools int    `json:"max_concurrent_tools" mapstructure:"max_concurrent_tools"`
	SystemPrompt       string `json:"system_prompt" mapstructure:"system_prompt"`
}

// WorkflowConfig holds confirmation workflow settings
type WorkflowConfig struct {
	WriteTTLMinutes       int    `json:"write_ttl_minutes" mapstructure:"write_ttl_minutes"`
	DestructiveTTLMinutes int    `json:"destructive_ttl_minutes" mapstructure:"destructive_ttl_minutes"`
	SweepIntervalSeconds  int    `json:"sweep_interval_seconds" mapstructure:"sweep_interval_seconds"`
	AuditDBPath           string `json:"audit_db_path" mapstructure:"audit_db_path"`
}

// AlertsConfig holds alert fan-out settings
type AlertsConfig struct {
	Addr              string   `json:"addr" mapstructure:"addr"`
	DefaultSeverities []string `json:"default_severities" mapstructure:"default_severities"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "llama3.1",
			TimeoutSeconds: 120,
			MaxAttempts:    3,
		},
		Agent: AgentConfig{
			MaxRounds:          10,
			MaxConcurrentTools: 4,
		},
		Workflow: WorkflowConfig{
			WriteTTLMinutes:       15,
			DestructiveTTLMinutes: 5,
			SweepIntervalSeconds:  30,
		},
		Alerts: AlertsConfig{
			Addr:              ":8765",
			DefaultSeverities: []string{"high", "critical"},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("llm.base_url is not a valid URL: %w", err)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.max_attempts must be at least 1")
	}
	if c.Agent.MaxRounds < 1 {
		return fmt.Errorf("agent.max_rounds must be at least 1")
	}
	if c.Agent.MaxConcurrentTools < 1 {
		return fmt.Errorf("agent.max_concurrent_tools must be at least 1")
	}
	if c.Workflow.WriteTTLMinutes < 1 || c.Workflow.DestructiveTTLMinutes < 1 {
		return fmt.Errorf("workflow TTLs must be at least 1 minute")
	}
	if c.Workflow.DestructiveTTLMinutes > c.Workflow.WriteTTLMinutes {
		return fmt.Errorf("destructive TTL must not exceed write TTL")
	}
	if c.Workflow.SweepIntervalSeconds < 1 {
		return fmt.Errorf("workflow.sweep_interval_seconds must be at least 1")
	}

	validSeverities := map[string]bool{
		"info": true, "low": true, "medium": true, "high": true, "critical": true,
	}
	for _, sev := range c.Alerts.DefaultSeverities {
		if !validSeverities[sev] {
			return fmt.Errorf("invalid default severity: %s", sev)
		}
	}

	return nil
}
