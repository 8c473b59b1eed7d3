// Package config loads and validates the rankeval YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the rankeval service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix    string `yaml:"key_prefix"`
	ReportTTLSec int    `yaml:"report_ttl_sec"` // 0 = keep forever
}

// EvaluationConfig holds evaluation defaults.
type EvaluationConfig struct {
	KValues       []int `yaml:"k_values"`
	MultiVector   bool  `yaml:"multi_vector"`
	ScoreBlock    int   `yaml:"score_block_size"`
	EmbedParallel int   `yaml:"embed_parallelism"`
	MaxBatchSize  int   `yaml:"max_batch_size"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Provider ProviderConfig `yaml:"provider"`
}

// ProviderConfig holds embedding provider settings (OpenAI-compatible API).
type ProviderConfig struct {
	Name               string `yaml:"name"`
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	Model              string `yaml:"model"`
	Dimensions         int    `yaml:"dimensions"`
	QueryInstruction   string `yaml:"query_instruction"`
	PassageInstruction string `yaml:"passage_instruction"`
	CacheEmbeddings    bool   `yaml:"cache_embeddings"`

	Budget BudgetConfig `yaml:"budget"`
}

// BudgetConfig caps embedding token spend. Zero limits mean unlimited.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"`
	Action            string `yaml:"action"` // warn or reject
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Evaluations of large corpora take a while; the write timeout
		// bounds the whole scoring pass.
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if len(c.Evaluation.KValues) == 0 {
		c.Evaluation.KValues = []int{1, 3, 5, 10, 100}
	}
	if c.Evaluation.ScoreBlock <= 0 {
		c.Evaluation.ScoreBlock = 128
	}
	if c.Evaluation.EmbedParallel <= 0 {
		c.Evaluation.EmbedParallel = 4
	}
	if c.Evaluation.MaxBatchSize <= 0 {
		c.Evaluation.MaxBatchSize = 256
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "rankeval:"
	}
	if c.Embedding.Provider.Budget.Action == "" {
		c.Embedding.Provider.Budget.Action = "warn"
	}
	if c.Storage.ReportTTLSec < 0 {
		c.Storage.ReportTTLSec = 0
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	for _, k := range c.Evaluation.KValues {
		if k <= 0 {
			return fmt.Errorf("evaluation.k_values must be positive, got %d", k)
		}
		if k > 1000 {
			return fmt.Errorf("evaluation.k_values must not exceed 1000, got %d", k)
		}
	}
	if p := c.Embedding.Provider; p.Name != "" {
		if p.APIKey == "" {
			return fmt.Errorf("embedding.provider.api_key is required when a provider is configured")
		}
		if p.Model == "" {
			return fmt.Errorf("embedding.provider.model is required when a provider is configured")
		}
	}
	if a := c.Embedding.Provider.Budget.Action; a != "" && a != "warn" && a != "reject" {
		return fmt.Errorf("embedding.provider.budget.action must be warn or reject, got %q", a)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
