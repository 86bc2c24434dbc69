package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kailas-cloud/escomatch/internal/scoring"
)

func validConfig() Config {
	cfg := Config{
		Database:  DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Embedding: EmbeddingConfig{Model: "text-embedding-3-small"},
		Taxonomy:  TaxonomyConfig{Source: "data/esco.csv"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 70000

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingDatabaseAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing addrs")
	}
	if err.Error() != "database.addrs is required" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_Provider(t *testing.T) {
	for _, p := range []string{ProviderOpenAI, ProviderGemini} {
		t.Run(p, func(t *testing.T) {
			cfg := validConfig()
			cfg.Embedding.Provider = p
			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for %q: %v", p, err)
			}
		})
	}

	cfg := validConfig()
	cfg.Embedding.Provider = "nebius"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	expected := `embedding.provider must be "openai" or "gemini", got "nebius"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Matching.Weights = scoring.Weights{Title: 0.5, Skills: 0.5, Description: 0.5}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for weights summing to 1.5")
	}
	if !strings.HasPrefix(err.Error(), "matching:") {
		t.Errorf("expected matching prefix, got %q", err.Error())
	}
}

func TestValidate_FallbackSkillsWeight(t *testing.T) {
	cfg := validConfig()
	cfg.Matching.FallbackWeights = scoring.Weights{Title: 0.8, Skills: 0.1, Description: 0.1}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-zero fallback skills weight")
	}
}

func TestValidate_GoldMode(t *testing.T) {
	cfg := validConfig()
	cfg.Gold.Mode = "strict"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error for strict: %v", err)
	}

	cfg.Gold.Mode = "fuzzy"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown gold mode")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected readiness timeout 10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Embedding.Provider != ProviderOpenAI {
		t.Errorf("expected openai provider, got %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Timeout().Seconds() != 10 {
		t.Errorf("expected 10s embedding timeout, got %v", cfg.Embedding.Timeout())
	}
	if cfg.Matching.VersionLabel != "v1" {
		t.Errorf("expected version label v1, got %q", cfg.Matching.VersionLabel)
	}
	if cfg.Matching.TopK != 10 || cfg.Matching.AlternativeCount() != 3 {
		t.Errorf("expected top_k 10 and alternatives 3, got %d/%d", cfg.Matching.TopK, cfg.Matching.AlternativeCount())
	}
	if cfg.Matching.Scoring() != scoring.DefaultConfig() {
		t.Errorf("expected default scoring config, got %+v", cfg.Matching.Scoring())
	}
	if cfg.Gold.Mode != "loose" {
		t.Errorf("expected loose gold mode, got %q", cfg.Gold.Mode)
	}
	if cfg.Warehouse.Enabled() {
		t.Error("warehouse must be disabled without addr")
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 3000},
		Matching: MatchingConfig{TopK: 25, Weights: scoring.Weights{Title: 1}},
		Taxonomy: TaxonomyConfig{Language: "en"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 3000 {
		t.Errorf("expected port 3000, got %d", cfg.HTTP.Port)
	}
	if cfg.Matching.TopK != 25 {
		t.Errorf("expected top_k 25, got %d", cfg.Matching.TopK)
	}
	if cfg.Matching.Weights != (scoring.Weights{Title: 1}) {
		t.Errorf("weights overridden: %+v", cfg.Matching.Weights)
	}
	if cfg.Taxonomy.Language != "en" {
		t.Errorf("expected language en, got %q", cfg.Taxonomy.Language)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ESCOMATCH_TEST_KEY", "sk-123")

	got := string(expandEnvVars([]byte("a: ${ESCOMATCH_TEST_KEY}\nb: ${ESCOMATCH_TEST_MISSING:-fallback}\nc: ${ESCOMATCH_TEST_MISSING}")))
	want := "a: sk-123\nb: fallback\nc: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ESCOMATCH_TEST_REDIS", "redis:6379")
	yml := `
database:
  addrs: ["${ESCOMATCH_TEST_REDIS}"]
embedding:
  provider: gemini
  model: gemini-embedding-001
  dimensions: 768
taxonomy:
  source: data/occupations_es.csv
matching:
  thresholds:
    confirm: 0.7
    review: 0.55
rules:
  dictionary: config/rules/dictionary.yaml
`
	if err := os.WriteFile(filepath.Join(dir, "test.yaml"), []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(dir, "test")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if len(cfg.Database.Addrs) != 1 || cfg.Database.Addrs[0] != "redis:6379" {
		t.Errorf("unexpected addrs %v", cfg.Database.Addrs)
	}
	if cfg.Embedding.Provider != ProviderGemini || cfg.Embedding.Dimensions != 768 {
		t.Errorf("unexpected embedding %+v", cfg.Embedding)
	}
	if cfg.Matching.Thresholds.Confirm != 0.7 || cfg.Matching.Thresholds.Review != 0.55 {
		t.Errorf("unexpected thresholds %+v", cfg.Matching.Thresholds)
	}
	if got := cfg.Matching.Scoring().Skills.MinScore; got != scoring.MinSkillsScore {
		t.Errorf("absent min_score should default, got %v", got)
	}
	if cfg.Rules.Dictionary != "config/rules/dictionary.yaml" {
		t.Errorf("unexpected rules %+v", cfg.Rules)
	}
}

func TestLoadFrom_ExplicitZerosKept(t *testing.T) {
	dir := t.TempDir()
	yml := `
database:
  addrs: ["localhost:6379"]
embedding:
  model: text-embedding-3-small
taxonomy:
  source: data/occupations_es.csv
matching:
  alternatives: 0
  skills:
    min_score: 0
`
	if err := os.WriteFile(filepath.Join(dir, "test.yaml"), []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(dir, "test")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got := cfg.Matching.AlternativeCount(); got != 0 {
		t.Errorf("expected alternatives 0, got %d", got)
	}
	sc := cfg.Matching.Scoring()
	if sc.Skills.MinScore != 0 {
		t.Errorf("expected min_score 0, got %v", sc.Skills.MinScore)
	}
	if sc.Skills.Match != scoring.SkillMatchThreshold {
		t.Errorf("expected default skill match threshold, got %v", sc.Skills.Match)
	}
}

func TestValidate_NegativeAlternatives(t *testing.T) {
	cfg := validConfig()
	n := -1
	cfg.Matching.Alternatives = &n

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative alternatives")
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	if _, err := LoadFrom(t.TempDir(), "nope"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ESCOMATCH_ENV", "")
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("expected local, got %q", got)
	}

	t.Setenv("ENV", "dev")
	if got := GetEnv(); got != "dev" {
		t.Errorf("expected dev, got %q", got)
	}

	t.Setenv("ESCOMATCH_ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("expected prod, got %q", got)
	}
}
