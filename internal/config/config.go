package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/escomatch/internal/domain/gold"
	"github.com/kailas-cloud/escomatch/internal/scoring"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds the escomatch configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Taxonomy  TaxonomyConfig  `yaml:"taxonomy"`
	Matching  MatchingConfig  `yaml:"matching"`
	Rules     RulesConfig     `yaml:"rules"`
	Gold      GoldConfig      `yaml:"gold"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds ops server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	APIKeys         []string `yaml:"api_keys"`
}

// DatabaseConfig holds Redis/Valkey connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// WarehouseConfig holds ClickHouse settings. Disabled when Addr is empty.
type WarehouseConfig struct {
	Addr              string `yaml:"addr"`
	Database          string `yaml:"database"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	ProcessingVersion string `yaml:"processing_version"`
	MaxOpenConns      int    `yaml:"max_open_conns"`
	// WriteMatches also inserts every persisted match into isco_matches.
	WriteMatches bool `yaml:"write_matches"`
}

// Enabled reports whether a warehouse is configured.
func (w WarehouseConfig) Enabled() bool { return w.Addr != "" }

// EmbeddingConfig holds the embedding model settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai (default), gemini
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	BatchSize  int    `yaml:"batch_size"`
	Cache      bool   `yaml:"cache"`
	// CacheTTLHours expires cached vectors; 0 keeps them.
	CacheTTLHours int `yaml:"cache_ttl_hours"`
	// TaskType is the Gemini task hint.
	TaskType            string `yaml:"task_type"`
	QueryInstruction    string `yaml:"query_instruction"`
	DocumentInstruction string `yaml:"document_instruction"`
}

// CacheTTL is the lifetime of a cached vector.
func (e EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLHours) * time.Hour
}

// Timeout is the per-call embedding deadline.
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// TaxonomyConfig locates the taxonomy source and its embedding snapshot.
type TaxonomyConfig struct {
	Source   string `yaml:"source"`
	Language string `yaml:"language"`
	IndexDir string `yaml:"index_dir"`
}

// MatchingConfig holds scoring and batch settings.
type MatchingConfig struct {
	VersionLabel    string             `yaml:"version_label"`
	TopK            int                `yaml:"top_k"`
	Alternatives    *int               `yaml:"alternatives"` // 0 reports none
	Weights         scoring.Weights    `yaml:"weights"`
	FallbackWeights scoring.Weights    `yaml:"fallback_weights"`
	Thresholds      scoring.Thresholds `yaml:"thresholds"`
	Skills          SkillsConfig       `yaml:"skills"`
	Workers         int                `yaml:"workers"`
}

// SkillsConfig holds the skills-signal thresholds. Pointers keep an explicit
// 0 apart from an absent key, so min_score: 0 disables the fallback.
type SkillsConfig struct {
	Match    *float64 `yaml:"match"`
	MinScore *float64 `yaml:"min_score"`
}

// AlternativeCount returns the number of runner-up candidates to report.
func (m MatchingConfig) AlternativeCount() int { return deref(m.Alternatives) }

// Scoring returns the scoring configuration.
func (m MatchingConfig) Scoring() scoring.Config {
	return scoring.Config{
		Weights:    m.Weights,
		Fallback:   m.FallbackWeights,
		Thresholds: m.Thresholds,
		Skills: scoring.SkillsThresholds{
			Match:    deref(m.Skills.Match),
			MinScore: deref(m.Skills.MinScore),
		},
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func ptr[T any](v T) *T { return &v }

// RulesConfig locates the rule files. Empty paths mean no rules of that kind.
type RulesConfig struct {
	Dictionary string `yaml:"dictionary"`
	Forced     string `yaml:"forced"`
	Families   string `yaml:"families"`
}

// GoldConfig holds gold-set harness settings.
type GoldConfig struct {
	Cases    string `yaml:"cases"`
	Postings string `yaml:"postings"`
	Mode     string `yaml:"mode"` // loose (default), strict
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath("", env))
}

// LoadFrom reads {dir}/{env}.yaml. An empty dir searches the default locations.
func LoadFrom(dir, env string) (Config, error) {
	return LoadFile(findConfigPath(dir, env))
}

// LoadFile reads, expands, defaults and validates one config file.
func LoadFile(configPath string) (Config, error) {
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

// GetEnv returns the current environment from ESCOMATCH_ENV or ENV, defaulting to "local".
func GetEnv() string {
	for _, name := range []string{"ESCOMATCH_ENV", "ENV"} {
		if env := os.Getenv(name); env != "" {
			return env
		}
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 9090
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Warehouse.Database == "" {
		c.Warehouse.Database = "default"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOpenAI
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = 10000
	}
	if c.Taxonomy.Language == "" {
		c.Taxonomy.Language = "es"
	}
	if c.Taxonomy.IndexDir == "" {
		c.Taxonomy.IndexDir = "data/index"
	}
	if c.Matching.VersionLabel == "" {
		c.Matching.VersionLabel = "v1"
	}
	if c.Matching.TopK <= 0 {
		c.Matching.TopK = 10
	}
	if c.Matching.Alternatives == nil {
		c.Matching.Alternatives = ptr(3)
	}
	if c.Matching.Weights == (scoring.Weights{}) {
		c.Matching.Weights = scoring.DefaultWeights
	}
	if c.Matching.FallbackWeights == (scoring.Weights{}) {
		c.Matching.FallbackWeights = scoring.DefaultFallbackWeights
	}
	if c.Matching.Thresholds == (scoring.Thresholds{}) {
		c.Matching.Thresholds = scoring.DefaultThresholds()
	}
	if c.Matching.Skills.Match == nil {
		c.Matching.Skills.Match = ptr(scoring.SkillMatchThreshold)
	}
	if c.Matching.Skills.MinScore == nil {
		c.Matching.Skills.MinScore = ptr(scoring.MinSkillsScore)
	}
	if c.Matching.Workers <= 0 {
		c.Matching.Workers = 4
	}
	if c.Gold.Mode == "" {
		c.Gold.Mode = string(gold.ModeLoose)
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
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("embedding.provider must be %q or %q, got %q",
			ProviderOpenAI, ProviderGemini, c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be >= 0, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.CacheTTLHours < 0 {
		return fmt.Errorf("embedding.cache_ttl_hours must be >= 0, got %d", c.Embedding.CacheTTLHours)
	}
	if c.Taxonomy.Source == "" {
		return fmt.Errorf("taxonomy.source is required")
	}
	if n := c.Matching.AlternativeCount(); n < 0 {
		return fmt.Errorf("matching.alternatives must be >= 0, got %d", n)
	}
	if err := c.Matching.Scoring().Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if _, err := gold.ParseMode(c.Gold.Mode); err != nil {
		return fmt.Errorf("gold.mode: %w", err)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(dir, env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if dir != "" {
		return filepath.Join(dir, filename)
	}

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
