// Package config handles configuration loading for SectorPulse.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"          yaml:"llm"`
	Store        StoreConfig        `mapstructure:"store"        yaml:"store"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"    yaml:"retrieval"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	API          APIConfig          `mapstructure:"api"          yaml:"api"`
	Logging      LoggingConfig      `mapstructure:"logging"      yaml:"logging"`
}

// LLMConfig holds decision capability and embedding provider settings.
type LLMConfig struct {
	Primary     string  `mapstructure:"primary"      yaml:"primary"` // "openai" or "ollama"
	OpenAIKey   string  `mapstructure:"openai_key"   yaml:"openai_key"`
	OllamaURL   string  `mapstructure:"ollama_url"   yaml:"ollama_url"`
	Model       string  `mapstructure:"model"        yaml:"model"`
	EmbedModel  string  `mapstructure:"embed_model"  yaml:"embed_model"`
	Temperature float64 `mapstructure:"temperature"  yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"   yaml:"max_tokens"`
}

// StoreConfig holds the SQLite document and cache store settings.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// RetrievalConfig holds recall and score-blend settings.
type RetrievalConfig struct {
	CandidateLimit   int     `mapstructure:"candidate_limit"   yaml:"candidate_limit"`
	SimilarityFloor  float64 `mapstructure:"similarity_floor"  yaml:"similarity_floor"`
	SelectLimit      int     `mapstructure:"select_limit"      yaml:"select_limit"`
	SimilarityWeight float64 `mapstructure:"similarity_weight" yaml:"similarity_weight"`
	SentimentWeight  float64 `mapstructure:"sentiment_weight"  yaml:"sentiment_weight"`
	TrustWeight      float64 `mapstructure:"trust_weight"      yaml:"trust_weight"`
}

// OrchestratorConfig holds decision loop settings.
type OrchestratorConfig struct {
	IterationCap int `mapstructure:"iteration_cap" yaml:"iteration_cap"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.sectorpulse/config.yaml (home directory)
//  3. /etc/sectorpulse/config.yaml (system)
//
// Environment variables override config file values.
// Format: SECTORPULSE_<SECTION>_<KEY>, e.g., SECTORPULSE_LLM_OPENAI_KEY
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".sectorpulse"))
	v.AddConfigPath("/etc/sectorpulse")

	v.SetEnvPrefix("SECTORPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("SECTORPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.primary", "openai")
	v.SetDefault("llm.ollama_url", "http://localhost:11434")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.embed_model", "nomic-embed-text")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 4096)

	// Store defaults
	v.SetDefault("store.path", filepath.Join(homeDir(), ".sectorpulse", "sectorpulse.db"))

	// Retrieval defaults
	v.SetDefault("retrieval.candidate_limit", 100)
	v.SetDefault("retrieval.similarity_floor", 0.5)
	v.SetDefault("retrieval.select_limit", 10)
	v.SetDefault("retrieval.similarity_weight", 0.5)
	v.SetDefault("retrieval.sentiment_weight", 0.3)
	v.SetDefault("retrieval.trust_weight", 0.2)

	// Orchestrator defaults
	v.SetDefault("orchestrator.iteration_cap", 7)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("SECTORPULSE_LLM_OPENAI_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	}
	// Accept the conventional variable too so existing shells just work.
	if cfg.LLM.OpenAIKey == "" {
		cfg.LLM.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
