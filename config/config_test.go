package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/hybrid"
	"github.com/syeo66/cadence/similarity"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	return Load(pflag.NewFlagSet("test", pflag.ContinueOnError), args)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t)
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.DatabasePath != "cadence.db" {
		t.Errorf("DatabasePath = %s, want cadence.db", cfg.DatabasePath)
	}
	if cfg.Similarity != similarity.DefaultWeights() {
		t.Errorf("Similarity = %+v, want defaults", cfg.Similarity)
	}
	if cfg.Hybrid != hybrid.DefaultWeights() {
		t.Errorf("Hybrid = %+v, want defaults", cfg.Hybrid)
	}
	if cfg.Predictor.RefreshInterval != time.Hour {
		t.Errorf("RefreshInterval = %v, want 1h", cfg.Predictor.RefreshInterval)
	}
	if cfg.Recommend.SimilarCacheTTL != 10*time.Minute {
		t.Errorf("SimilarCacheTTL = %v, want 10m", cfg.Recommend.SimilarCacheTTL)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("Unexpected pool defaults: %+v", cfg.Database)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RPS != 20 || cfg.RateLimit.Burst != 40 {
		t.Errorf("Unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if !cfg.Security.HeadersEnabled || cfg.IsDevMode() {
		t.Errorf("Unexpected security defaults: %+v", cfg.Security)
	}
}

func TestFlags(t *testing.T) {
	cfg, err := load(t, "--port", "9090", "--log-level", "debug", "--model-refresh", "5m", "--rate-limit-enabled=false")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.Predictor.RefreshInterval != 5*time.Minute {
		t.Errorf("RefreshInterval = %v, want 5m", cfg.Predictor.RefreshInterval)
	}
	if cfg.RateLimit.Enabled {
		t.Error("Rate limiting should be disabled")
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("CADENCE_PORT", "7070")
	t.Setenv("CADENCE_RATE_LIMIT_RPS", "2.5")
	t.Setenv("CADENCE_HYBRID_POPULARITY", "0.05")

	cfg, err := load(t)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Errorf("Port = %s, want 7070", cfg.Port)
	}
	if cfg.RateLimit.RPS != 2.5 {
		t.Errorf("RPS = %v, want 2.5", cfg.RateLimit.RPS)
	}
	if cfg.Hybrid.Popularity != 0.05 {
		t.Errorf("Hybrid popularity = %v, want 0.05", cfg.Hybrid.Popularity)
	}

	// flags win over the environment
	cfg, err = load(t, "--port", "6060")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if cfg.Port != "6060" {
		t.Errorf("Port = %s, want 6060", cfg.Port)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	content := `
log_level: warn
similarity:
  audio: 0.7
  genre: 0.3
  mood: 0
  artist: 0
  popularity: 0
hybrid:
  collaborative: 0.5
  content: 0.5
  enhanced: 0
  popularity: 0
recommend:
  similar_cache_ttl: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := load(t, "--config", path)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %s, want warn", cfg.LogLevel)
	}
	if cfg.Similarity.Audio != 0.7 || cfg.Similarity.Mood != 0 {
		t.Errorf("Unexpected similarity weights: %+v", cfg.Similarity)
	}
	if cfg.Hybrid.Collaborative != 0.5 || cfg.Hybrid.Enhanced != 0 {
		t.Errorf("Unexpected hybrid weights: %+v", cfg.Hybrid)
	}
	if cfg.Recommend.SimilarCacheTTL != 30*time.Second {
		t.Errorf("SimilarCacheTTL = %v, want 30s", cfg.Recommend.SimilarCacheTTL)
	}
	if cfg.Port != "8080" {
		t.Errorf("Unset keys keep their defaults, got port %s", cfg.Port)
	}

	if _, err := load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")); !errors.IsCategory(err, errors.CategoryConfig) {
		t.Errorf("Expected config error for a missing file, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want *errors.CadenceError
	}{
		{"non numeric port", []string{"--port", "abc"}, nil, errors.ErrInvalidPort},
		{"port out of range", []string{"--port", "70000"}, nil, errors.ErrInvalidPort},
		{"unknown log level", []string{"--log-level", "verbose"}, nil, errors.ErrInvalidLogLevel},
		{"empty database path", []string{"--db-path", ""}, nil, errors.ErrInvalidDatabasePath},
		{"zero rate", []string{"--rate-limit-rps", "0"}, nil, errors.ErrInvalidConfig},
		{"idle above open", nil, map[string]string{"CADENCE_DATABASE_MAX_IDLE_CONNS": "50"}, errors.ErrInvalidConfig},
		{"hybrid weights above 1", nil, map[string]string{"CADENCE_HYBRID_CONTENT": "0.9"}, errors.ErrInvalidConfig},
		{"negative similarity weight", nil, map[string]string{"CADENCE_SIMILARITY_AUDIO": "-1"}, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(t, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUnknownFlag(t *testing.T) {
	if _, err := load(t, "--upstream", "http://localhost"); !errors.IsCategory(err, errors.CategoryConfig) {
		t.Errorf("Expected config error for unknown flag, got %v", err)
	}
}
