package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/spigell/cv-ranker/internal/secrets"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()

	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		t.Fatalf("bind env: %v", err)
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Ranking.InitialCandidates != 150 {
		t.Fatalf("expected 150 initial candidates, got %d", cfg.Ranking.InitialCandidates)
	}
	if cfg.Ranking.FinalRanking != 20 {
		t.Fatalf("expected final ranking 20, got %d", cfg.Ranking.FinalRanking)
	}
	if cfg.Chunking.Size != 1000 || cfg.Chunking.Overlap != 200 {
		t.Fatalf("unexpected chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Ranking.Timeout != 60*time.Second {
		t.Fatalf("expected 60s ranking timeout, got %s", cfg.Ranking.Timeout)
	}
	if cfg.AI.SummaryTemperature != 0.3 {
		t.Fatalf("expected summary temperature 0.3, got %v", cfg.AI.SummaryTemperature)
	}
	if !cfg.AI.Summaries {
		t.Fatalf("expected summaries enabled by default")
	}
}

func TestLoadDoesNotCrossWireProviderKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("AZURE_API_KEY", "azure-key")
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AI.APIKey != "" {
		t.Fatalf("ai.api-key picked up a provider variable: %q", cfg.AI.APIKey)
	}
	if cfg.Embedding.APIKey != "" {
		t.Fatalf("embedding.api-key picked up a provider variable: %q", cfg.Embedding.APIKey)
	}

	cases := map[string]string{
		"gemini": "gemini-key",
		"azure":  "azure-key",
		"openai": "openai-key",
	}
	for provider, want := range cases {
		got, err := secrets.Load(secrets.Source{
			Name:  provider,
			Value: cfg.AI.APIKey,
			File:  cfg.AI.APIKeyFile,
			Env:   ProviderKeyEnv(provider),
		})
		if err != nil {
			t.Fatalf("%s key: %v", provider, err)
		}
		if got != want {
			t.Fatalf("%s resolved %q, want %q", provider, got, want)
		}
	}
}

func TestLoadProviderNeutralKeys(t *testing.T) {
	t.Setenv("AZURE_API_KEY", "azure-key")
	t.Setenv("AI_API_KEY", "shared-ai")
	t.Setenv("EMBEDDING_API_KEY", "shared-embedding")

	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AI.APIKey != "shared-ai" {
		t.Fatalf("expected AI_API_KEY to bind, got %q", cfg.AI.APIKey)
	}
	if cfg.Embedding.APIKey != "shared-embedding" {
		t.Fatalf("expected EMBEDDING_API_KEY to bind, got %q", cfg.Embedding.APIKey)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("INITIAL_CANDIDATES", "40")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CV_DIR", "/data/cvs")
	t.Setenv("DEPLOYMENT_NAME", "gpt-4o")

	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Ranking.InitialCandidates != 40 {
		t.Fatalf("expected 40 initial candidates, got %d", cfg.Ranking.InitialCandidates)
	}
	if cfg.Chunking.Size != 500 {
		t.Fatalf("expected chunk size 500, got %d", cfg.Chunking.Size)
	}
	if cfg.Sources.Dir != "/data/cvs" {
		t.Fatalf("expected cv dir override, got %q", cfg.Sources.Dir)
	}
	if cfg.AI.Model != "gpt-4o" {
		t.Fatalf("expected model override, got %q", cfg.AI.Model)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
ranking:
  final-ranking: 5
  timeout: 15s
ai:
  provider: Azure
  endpoint: https://example.openai.azure.com
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v := newViper(t)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Ranking.FinalRanking != 5 {
		t.Fatalf("expected final ranking 5, got %d", cfg.Ranking.FinalRanking)
	}
	if cfg.Ranking.Timeout != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %s", cfg.Ranking.Timeout)
	}
	if cfg.AI.Provider != "azure" {
		t.Fatalf("expected provider to be normalized, got %q", cfg.AI.Provider)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero initial candidates", mutate: func(c *Config) { c.Ranking.InitialCandidates = 0 }},
		{name: "negative final ranking", mutate: func(c *Config) { c.Ranking.FinalRanking = -1 }},
		{name: "zero chunk size", mutate: func(c *Config) { c.Chunking.Size = 0 }},
		{name: "negative overlap", mutate: func(c *Config) { c.Chunking.Overlap = -5 }},
		{name: "empty store dir", mutate: func(c *Config) { c.Store.Dir = " " }},
		{name: "unknown embedding provider", mutate: func(c *Config) { c.Embedding.Provider = "faiss" }},
		{name: "unknown ai provider", mutate: func(c *Config) { c.AI.Provider = "bard" }},
		{name: "azure without endpoint", mutate: func(c *Config) { c.AI.Provider = "azure"; c.AI.Endpoint = "" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadDotEnvSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CV_RANKER_TEST_VALUE=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("CV_RANKER_TEST_VALUE", "")
	os.Unsetenv("CV_RANKER_TEST_VALUE")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("CV_RANKER_TEST_VALUE"); got != "from-dotenv" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}

func validConfig() Config {
	return Config{
		Store:    StoreConfig{Dir: "db"},
		Chunking: ChunkingConfig{Size: 1000, Overlap: 200},
		Embedding: EmbeddingConfig{
			Provider: "static",
		},
		Ranking: RankingConfig{
			InitialCandidates:   150,
			FinalRanking:        20,
			ProfileCandidates:   20,
			JobDescriptionLimit: 2000,
		},
		AI: AIConfig{Provider: "gemini"},
	}
}
