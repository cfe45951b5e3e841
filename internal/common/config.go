package common

import (
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Ingest  IngestConfig  `toml:"ingest"`
	LLM     LLMConfig     `toml:"llm"`
	Extract ExtractConfig `toml:"extract"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// StoreConfig holds schema store configuration
type StoreConfig struct {
	DataDir string `toml:"data_dir"`
}

// IngestConfig holds inbox watcher configuration
type IngestConfig struct {
	InboxDir string        `toml:"inbox_dir"`
	Debounce time.Duration `toml:"debounce"`
}

// LLMConfig holds language-model backend configuration
type LLMConfig struct {
	Model       string        `toml:"model"`
	BaseURL     string        `toml:"base_url"`
	APIKey      string        `toml:"api_key"`
	Temperature float32       `toml:"temperature"`
	Timeout     time.Duration `toml:"timeout"`
	MaxRetries  int           `toml:"max_retries"`
}

// ExtractConfig holds engine-level knobs
type ExtractConfig struct {
	// Comma-separated provenance names, most trusted first.
	// Empty means the built-in order LLM,OCR_KV,OCR_TEXT.
	ProvenanceOrder string `toml:"provenance_order"`
}

// LoadConfig loads configuration from environment variables. If CONFIG_FILE
// points at a TOML file it is read first; environment variables override it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{Addr: ":8002"},
		Store:  StoreConfig{DataDir: "./data"},
		Ingest: IngestConfig{InboxDir: "", Debounce: 500 * time.Millisecond},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			BaseURL:     "https://api.openai.com/v1",
			Temperature: 0.0,
			Timeout:     45 * time.Second,
			MaxRetries:  3,
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapError(err, "read config file")
		}
		if err := toml.Unmarshal(b, cfg); err != nil {
			return nil, WrapError(err, "parse config file")
		}
	}

	cfg.Server.Addr = getEnv("HTTP_ADDR", cfg.Server.Addr)
	cfg.Store.DataDir = getEnv("DATA_DIR", cfg.Store.DataDir)
	cfg.Ingest.InboxDir = getEnv("INBOX_DIR", cfg.Ingest.InboxDir)
	cfg.Ingest.Debounce = getEnvAsDuration("INBOX_DEBOUNCE", cfg.Ingest.Debounce)
	cfg.LLM.Model = getEnv("OPENAI_MODEL", cfg.LLM.Model)
	cfg.LLM.BaseURL = getEnv("OPENAI_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Temperature = getEnvAsFloat32("OPENAI_TEMPERATURE", cfg.LLM.Temperature)
	cfg.LLM.Timeout = getEnvAsDuration("OPENAI_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.MaxRetries = getEnvAsInt("OPENAI_MAX_RETRIES", cfg.LLM.MaxRetries)
	cfg.Extract.ProvenanceOrder = getEnv("PROVENANCE_ORDER", cfg.Extract.ProvenanceOrder)

	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Store.DataDir == "" {
		return NewAppError("CONFIG_ERROR", "DATA_DIR is required", ErrInvalidInput)
	}
	return nil
}
