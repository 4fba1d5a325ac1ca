package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for ClaimDesk
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Auth       AuthConfig       `mapstructure:"auth"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Validation ValidationConfig `mapstructure:"validation"`
	RAG        RAGConfig        `mapstructure:"rag"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	BaseURL      string   `mapstructure:"base_url"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds attachment storage configuration
type StorageConfig struct {
	Documents   string `mapstructure:"documents"`
	MaxUploadMB int    `mapstructure:"max_upload_mb"`
}

// AuthConfig describes the trust boundary. Identity is taken from a verified
// HS256 bearer token when JWTSecret is set; TrustHeaders accepts identity
// headers injected by an upstream gateway.
type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	TrustHeaders bool   `mapstructure:"trust_headers"`
}

// LLMConfig holds completion provider configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai, gemini, none
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// ChatConfig holds orchestration settings
type ChatConfig struct {
	HistoryWindow   int           `mapstructure:"history_window"`
	TurnTimeout     time.Duration `mapstructure:"turn_timeout"`
	FallbackMessage string        `mapstructure:"fallback_message"`
	AssessTimeout   time.Duration `mapstructure:"assess_timeout"`
}

// ValidationConfig holds validation engine settings
type ValidationConfig struct {
	AcceptanceThreshold float64 `mapstructure:"acceptance_threshold"`
	ChecklistFile       string  `mapstructure:"checklist_file"`
	AssessConcurrency   int     `mapstructure:"assess_concurrency"`
}

// RAGConfig holds policy retrieval configuration
type RAGConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	PolicyDir string `mapstructure:"policy_dir"`
	ChunkSize int    `mapstructure:"chunk_size"`
	TopK      int    `mapstructure:"top_k"`
}

// RealtimeConfig holds websocket configuration
type RealtimeConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	RequestsPerHour int  `mapstructure:"requests_per_hour"`
	Burst           int  `mapstructure:"burst"`
}

var envReplacer = strings.NewReplacer(".", "_")

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CLAIMDESK")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("database.path", "./data/claimdesk.db")
	v.SetDefault("storage.documents", "./data/uploads")
	v.SetDefault("storage.max_upload_mb", 10)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.trust_headers", false)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 400)
	v.SetDefault("llm.timeout", 20*time.Second)
	v.SetDefault("llm.max_retries", 1)

	v.SetDefault("chat.history_window", 20)
	v.SetDefault("chat.turn_timeout", 45*time.Second)
	v.SetDefault("chat.fallback_message", "Thanks, we've received your message. I'm having trouble preparing a full answer right now, so a member of our team will follow up shortly.")
	v.SetDefault("chat.assess_timeout", 5*time.Second)

	v.SetDefault("validation.acceptance_threshold", 0.7)
	v.SetDefault("validation.checklist_file", "")
	v.SetDefault("validation.assess_concurrency", 4)

	v.SetDefault("rag.enabled", true)
	v.SetDefault("rag.policy_dir", "./data/policies")
	v.SetDefault("rag.chunk_size", 2000)
	v.SetDefault("rag.top_k", 3)

	v.SetDefault("realtime.send_buffer", 64)
	v.SetDefault("realtime.ping_interval", 20*time.Second)
	v.SetDefault("realtime.write_timeout", 10*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_hour", 600)
	v.SetDefault("rate_limit.burst", 20)
}

// Validate checks values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	if c.Validation.AcceptanceThreshold <= 0 || c.Validation.AcceptanceThreshold > 1 {
		return fmt.Errorf("validation.acceptance_threshold must be in (0, 1], got %v", c.Validation.AcceptanceThreshold)
	}
	if c.LLM.MaxRetries < 0 || c.LLM.MaxRetries > 1 {
		return fmt.Errorf("llm.max_retries must be 0 or 1, got %d", c.LLM.MaxRetries)
	}
	if c.Chat.HistoryWindow <= 0 {
		return fmt.Errorf("chat.history_window must be positive, got %d", c.Chat.HistoryWindow)
	}
	switch c.LLM.Provider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MaxUploadBytes returns the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Storage.MaxUploadMB) * 1024 * 1024
}
