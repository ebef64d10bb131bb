package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects the storage implementation.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`

	StorageBackend string `yaml:"storage_backend"`
	DataRoot       string `yaml:"data_root"`
	DatabaseURL    string `yaml:"database_url"`

	APIKey      string `yaml:"api_key"`
	CORSOrigins string `yaml:"cors_origins"`

	// LLM narration producer. Empty base URL means deterministic
	// fallback narration only.
	LLMBaseURL string `yaml:"llm_base_url"`
	LLMAPIKey  string `yaml:"llm_api_key"`
	LLMModel   string `yaml:"llm_model"`

	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	PreviewMaxAge    time.Duration `yaml:"preview_max_age"`
	LockTTL          int           `yaml:"lock_ttl"`

	TranscriptTail int `yaml:"transcript_tail"`
	ChangelogTail  int `yaml:"changelog_tail"`
}

// Load reads configuration from the environment, then overlays the
// optional YAML file named by TORCHLIGHT_CONFIG.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Environment:      getEnv("ENVIRONMENT", "dev"),
		StorageBackend:   getEnv("STORAGE_BACKEND", BackendFile),
		DataRoot:         getEnv("DATA_ROOT", "./data"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		APIKey:           getEnv("API_KEY", ""),
		CORSOrigins:      getEnv("CORS_ORIGINS", "http://localhost:3000"),
		LLMBaseURL:       getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4o-mini"),
		AutosaveInterval: time.Duration(getEnvInt("AUTOSAVE_INTERVAL", 300)) * time.Second,
		PreviewMaxAge:    time.Duration(getEnvInt("PREVIEW_MAX_AGE", 3600)) * time.Second,
		LockTTL:          getEnvInt("LOCK_TTL", 300),
		TranscriptTail:   getEnvInt("TRANSCRIPT_TAIL", 50),
		ChangelogTail:    getEnvInt("CHANGELOG_TAIL", 50),
	}

	if path := os.Getenv("TORCHLIGHT_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendFile:
	case BackendSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want file or sqlite)", c.StorageBackend)
	}
	if c.LockTTL < 1 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
