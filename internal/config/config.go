package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Model    ModelConfig    `toml:"model"`
	Memory   MemoryConfig   `toml:"memory"`
	Search   SearchConfig   `toml:"search"`
	Observer ObserverConfig `toml:"observer"`
	Runtime  RuntimeConfig  `toml:"runtime"`
	MCP      MCPConfig      `toml:"mcp"`
}

type ModelConfig struct {
	Provider    string  `toml:"provider"` // "openai" or "anthropic"
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
	RPM         int     `toml:"rpm"`
}

type MemoryConfig struct {
	// Store selects the turn memory backend: "memory", "sqlite",
	// "postgres", "redis", or "disabled".
	Store       string `toml:"store"`
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
	RedisAddr   string `toml:"redis_addr"`
	RedisDB     int    `toml:"redis_db"`
}

type SearchConfig struct {
	BraveAPIKey  string `toml:"brave_api_key"`
	SerperAPIKey string `toml:"serper_api_key"`
	TavilyAPIKey string `toml:"tavily_api_key"`
}

type ObserverConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
	MaxRecorded int    `toml:"max_recorded"`
}

type RuntimeConfig struct {
	NodeBudget       int `toml:"node_budget"`
	ToolCallLimit    int `toml:"tool_call_limit"`
	ModelTimeoutSec  int `toml:"model_timeout_sec"`
	ToolTimeoutSec   int `toml:"tool_timeout_sec"`
	MemoryTimeoutSec int `toml:"memory_timeout_sec"`
}

type MCPConfig struct {
	// Servers lists commands to launch as MCP tool servers over stdio,
	// e.g. ["npx some-mcp-server"]. Each server's tools are registered
	// under their advertised names.
	Servers []string `toml:"servers"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Model:    ModelConfig{Provider: "openai", Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1"},
		Memory:   MemoryConfig{Store: "sqlite", Path: "relay.db"},
		Observer: ObserverConfig{ServiceName: "relay", MaxRecorded: 1024},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "relay.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("RELAY_MODEL_PROVIDER"); v != "" {
		cfg.Model.Provider = v
	}
	if v := os.Getenv("RELAY_MODEL"); v != "" {
		cfg.Model.Model = v
	}
	if v := os.Getenv("RELAY_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("RELAY_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("RELAY_MEMORY_STORE"); v != "" {
		cfg.Memory.Store = v
	}
	if v := os.Getenv("RELAY_POSTGRES_URL"); v != "" {
		cfg.Memory.PostgresURL = v
	}
	if v := os.Getenv("RELAY_REDIS_ADDR"); v != "" {
		cfg.Memory.RedisAddr = v
	}
	if v := os.Getenv("RELAY_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if v := os.Getenv("RELAY_SERPER_API_KEY"); v != "" {
		cfg.Search.SerperAPIKey = v
	}
	if v := os.Getenv("RELAY_TAVILY_API_KEY"); v != "" {
		cfg.Search.TavilyAPIKey = v
	}
	if os.Getenv("RELAY_OBSERVER_ENABLED") == "true" || os.Getenv("RELAY_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Model.Provider == "anthropic" && cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Model.Provider == "openai" && cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Memory.Store == "postgres" && cfg.Memory.PostgresURL == "" {
		cfg.Memory.Store = "sqlite"
	}

	return cfg
}
