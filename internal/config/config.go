// Package config provides configuration management for the Robi backend.
// It loads settings from environment variables with the ROBI_ prefix and
// provides sensible defaults for all configuration options. An optional YAML
// file (ROBI_CONFIG_FILE) is applied on top of the environment values, which
// keeps deployments able to ship a single config file while still allowing
// per-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Robi backend.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Security     SecurityConfig     `yaml:"security"`
	Storage      StorageConfig      `yaml:"storage"`
	LLM          LLMConfig          `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`
	Media        MediaConfig        `yaml:"media"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"` // Server host (default: 0.0.0.0)
	Port int    `yaml:"port"` // Server port (default: 9393)
}

// WebSocketConfig contains limits for the duplex session protocol.
type WebSocketConfig struct {
	AuthTimeout    time.Duration `yaml:"auth_timeout"`     // Deadline for the auth handshake (default: 10s)
	MaxMessageMB   int           `yaml:"max_message_mb"`   // Max inbound message size in MiB (default: 50)
	MessagesPerSec float64       `yaml:"messages_per_sec"` // Sustained inbound message rate per session (default: 20)
	MessageBurst   int           `yaml:"message_burst"`    // Burst allowance for inbound messages (default: 40)
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	APIKey string `yaml:"api_key"` // Shared secret for REST and WebSocket auth
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // "sqlite" or "postgres" (default: sqlite)
	DataPath    string `yaml:"data_path"`    // SQLite data directory (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Postgres connection string (engine=postgres)
}

// LLMConfig contains generative backend configuration.
type LLMConfig struct {
	Provider        string  `yaml:"provider"`          // "gemini" or "ollama" (default: gemini)
	GeminiAPIKey    string  `yaml:"gemini_api_key"`    // Gemini API key
	GeminiModel     string  `yaml:"gemini_model"`      // Gemini model name (default: gemini-2.0-flash-lite)
	MaxOutputTokens int     `yaml:"max_output_tokens"` // Max tokens per response (default: 512)
	Temperature     float64 `yaml:"temperature"`       // Sampling temperature (default: 0.7)
	OllamaURL       string  `yaml:"ollama_url"`        // Ollama API URL (default: http://localhost:11434)
	OllamaModel     string  `yaml:"ollama_model"`      // Ollama model name (default: qwen2.5:7b)
}

// ConversationConfig tunes history compaction.
type ConversationConfig struct {
	CompactionThreshold int `yaml:"compaction_threshold"` // Message count that triggers compaction (default: 20)
	KeepRecent          int `yaml:"keep_recent"`          // Messages kept verbatim after compaction (default: 6)
}

// MediaConfig contains on-disk media storage settings.
type MediaConfig struct {
	Dir             string        `yaml:"dir"`              // Base directory for uploads (default: ./media)
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // How often expired files are purged (default: 1h)
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Development bool   `yaml:"development"` // Console encoder + caller info when true
}

// Load builds the configuration from environment variables, then applies the
// YAML file named by ROBI_CONFIG_FILE (if set) on top. A missing file is an
// error; an unset variable is not.
func Load() (*Config, error) {
	cfg := fromEnv()

	if path := os.Getenv("ROBI_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Security.APIKey == "" {
		return fmt.Errorf("config: ROBI_API_KEY is required")
	}
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: ROBI_POSTGRES_DSN is required for the postgres engine")
	}
	if c.Conversation.KeepRecent >= c.Conversation.CompactionThreshold {
		return fmt.Errorf("config: keep_recent (%d) must be below compaction_threshold (%d)",
			c.Conversation.KeepRecent, c.Conversation.CompactionThreshold)
	}
	return nil
}

// MaxMessageBytes returns the inbound message limit in bytes.
func (c *Config) MaxMessageBytes() int64 {
	return int64(c.WebSocket.MaxMessageMB) * 1024 * 1024
}

func fromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("ROBI_HOST", "0.0.0.0"),
			Port: getEnvInt("ROBI_PORT", 9393),
		},
		WebSocket: WebSocketConfig{
			AuthTimeout:    getEnvDuration("ROBI_WS_AUTH_TIMEOUT", 10*time.Second),
			MaxMessageMB:   getEnvInt("ROBI_WS_MAX_MESSAGE_MB", 50),
			MessagesPerSec: getEnvFloat("ROBI_WS_MESSAGES_PER_SEC", 20),
			MessageBurst:   getEnvInt("ROBI_WS_MESSAGE_BURST", 40),
		},
		Security: SecurityConfig{
			APIKey: getEnv("ROBI_API_KEY", ""),
		},
		Storage: StorageConfig{
			Engine:      getEnv("ROBI_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("ROBI_DATA_PATH", "./data"),
			PostgresDSN: getEnv("ROBI_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:        getEnv("ROBI_LLM_PROVIDER", "gemini"),
			GeminiAPIKey:    getEnv("ROBI_GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("ROBI_GEMINI_MODEL", "gemini-2.0-flash-lite"),
			MaxOutputTokens: getEnvInt("ROBI_GEMINI_MAX_OUTPUT_TOKENS", 512),
			Temperature:     getEnvFloat("ROBI_GEMINI_TEMPERATURE", 0.7),
			OllamaURL:       getEnv("ROBI_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:     getEnv("ROBI_OLLAMA_MODEL", "qwen2.5:7b"),
		},
		Conversation: ConversationConfig{
			CompactionThreshold: getEnvInt("ROBI_COMPACTION_THRESHOLD", 20),
			KeepRecent:          getEnvInt("ROBI_KEEP_RECENT", 6),
		},
		Media: MediaConfig{
			Dir:             getEnv("ROBI_MEDIA_DIR", "./media"),
			CleanupInterval: getEnvDuration("ROBI_MEDIA_CLEANUP_INTERVAL", time.Hour),
		},
		Logging: LoggingConfig{
			Level:       getEnv("ROBI_LOG_LEVEL", "info"),
			Development: getEnvBool("ROBI_LOG_DEVELOPMENT", false),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false
// (case-insensitive). Unparseable values fall back to the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go syntax, e.g.
// "30s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
