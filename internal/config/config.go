package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the root configuration of cv-ranker.
type Config struct {
	JobDescription string          `mapstructure:"job-description"`
	Sources        SourcesConfig   `mapstructure:"sources"`
	Store          StoreConfig     `mapstructure:"store"`
	Chunking       ChunkingConfig  `mapstructure:"chunking"`
	Embedding      EmbeddingConfig `mapstructure:"embedding"`
	Ranking        RankingConfig   `mapstructure:"ranking"`
	AI             AIConfig        `mapstructure:"ai"`
}

type SourcesConfig struct {
	Dir         string `mapstructure:"dir"`
	ExcludeFile string `mapstructure:"exclude-file"`
	Workers     int    `mapstructure:"workers"`
}

type StoreConfig struct {
	Dir             string `mapstructure:"dir"`
	EfSearch        int    `mapstructure:"ef-search"`
	ExactSearchRows int    `mapstructure:"exact-search-rows"`
}

type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base-url"`
	APIKey     string        `mapstructure:"api-key"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheSize  int           `mapstructure:"cache-size"`
}

type RankingConfig struct {
	InitialCandidates   int           `mapstructure:"initial-candidates"`
	FinalRanking        int           `mapstructure:"final-ranking"`
	ProfileCandidates   int           `mapstructure:"profile-candidates"`
	JobDescriptionLimit int           `mapstructure:"job-description-limit"`
	Timeout             time.Duration `mapstructure:"timeout"`
	RefreshDelay        time.Duration `mapstructure:"refresh-delay"`
}

type AIConfig struct {
	Provider           string        `mapstructure:"provider"`
	Model              string        `mapstructure:"model"`
	Endpoint           string        `mapstructure:"endpoint"`
	APIVersion         string        `mapstructure:"api-version"`
	APIKey             string        `mapstructure:"api-key"`
	APIKeyFile         string        `mapstructure:"api-key-file"`
	Project            string        `mapstructure:"project"`
	Location           string        `mapstructure:"location"`
	RankingTemperature float32       `mapstructure:"ranking-temperature"`
	SummaryTemperature float32       `mapstructure:"summary-temperature"`
	MaxRetries         int           `mapstructure:"max-retries"`
	MaxLogLength       int           `mapstructure:"max-log-length"`
	Timeout            time.Duration `mapstructure:"timeout"`
	Summaries          bool          `mapstructure:"summaries"`
}

var (
	embeddingProviders = []string{"gemini", "openai", "static"}
	aiProviders        = []string{"gemini", "vertex", "openai", "azure"}
)

// envBindings maps configuration keys to the environment variables that
// override them. The names follow the ones used by existing deployments.
var envBindings = map[string][]string{
	"job-description":            {"JOB_DESCRIPTION_PATH"},
	"sources.dir":                {"CV_DIR"},
	"store.dir":                  {"CV_RANKER_DB_DIR"},
	"chunking.size":              {"CHUNK_SIZE"},
	"chunking.overlap":           {"CHUNK_OVERLAP"},
	"ranking.initial-candidates": {"INITIAL_CANDIDATES"},
	"ranking.final-ranking":      {"FINAL_RANKING"},
	"embedding.model":            {"EMBEDDING_MODEL"},
	"embedding.api-key":          {"EMBEDDING_API_KEY"},
	"ai.model":                   {"DEPLOYMENT_NAME"},
	"ai.endpoint":                {"AZURE_ENDPOINT"},
	"ai.api-version":             {"AZURE_API_VERSION"},
	"ai.api-key":                 {"AI_API_KEY"},
}

// ProviderKeyEnv returns the provider specific environment variables holding
// an API key. They are consulted after the inline and file keys so that one
// provider's credentials never reach another provider.
func ProviderKeyEnv(provider string) []string {
	switch strings.ToLower(provider) {
	case "gemini", "":
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case "azure":
		return []string{"AZURE_API_KEY"}
	case "openai":
		return []string{"OPENAI_API_KEY"}
	default:
		return nil
	}
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("job-description", "")

	v.SetDefault("sources.dir", "cvs")
	v.SetDefault("sources.exclude-file", "")
	v.SetDefault("sources.workers", 4)

	v.SetDefault("store.dir", "db")
	v.SetDefault("store.ef-search", 200)
	v.SetDefault("store.exact-search-rows", 10000)

	v.SetDefault("chunking.size", 1000)
	v.SetDefault("chunking.overlap", 200)

	v.SetDefault("embedding.provider", "gemini")
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("embedding.base-url", "")
	v.SetDefault("embedding.api-key", "")
	v.SetDefault("embedding.api-key-file", "")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.cache-size", 256)

	v.SetDefault("ranking.initial-candidates", 150)
	v.SetDefault("ranking.final-ranking", 20)
	v.SetDefault("ranking.profile-candidates", 20)
	v.SetDefault("ranking.job-description-limit", 2000)
	v.SetDefault("ranking.timeout", 60*time.Second)
	v.SetDefault("ranking.refresh-delay", 2*time.Second)

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.endpoint", "")
	v.SetDefault("ai.api-version", "")
	v.SetDefault("ai.api-key", "")
	v.SetDefault("ai.api-key-file", "")
	v.SetDefault("ai.project", "")
	v.SetDefault("ai.location", "")
	v.SetDefault("ai.ranking-temperature", 0)
	v.SetDefault("ai.summary-temperature", 0.3)
	v.SetDefault("ai.max-retries", 3)
	v.SetDefault("ai.max-log-length", 200)
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.summaries", true)
}

// BindEnv wires the environment overrides into v.
func BindEnv(v *viper.Viper) error {
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("binding %s environment variables: %w", strings.Join(names, ", "), err)
		}
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files. Missing files are
// skipped and variables already present in the environment win.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", file, err)
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}
	return nil
}

// Load decodes all settings known to v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	c.JobDescription = strings.TrimSpace(c.JobDescription)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Ranking.InitialCandidates <= 0:
		return errors.New("ranking.initial-candidates must be positive")
	case c.Ranking.FinalRanking <= 0:
		return errors.New("ranking.final-ranking must be positive")
	case c.Ranking.ProfileCandidates <= 0:
		return errors.New("ranking.profile-candidates must be positive")
	case c.Ranking.JobDescriptionLimit <= 0:
		return errors.New("ranking.job-description-limit must be positive")
	case c.Chunking.Size <= 0:
		return errors.New("chunking.size must be positive")
	case c.Chunking.Overlap < 0:
		return errors.New("chunking.overlap must not be negative")
	case strings.TrimSpace(c.Store.Dir) == "":
		return errors.New("store.dir is required")
	}

	if !oneOf(c.Embedding.Provider, embeddingProviders) {
		return fmt.Errorf("unsupported embedding provider %q (expected one of %s)", c.Embedding.Provider, strings.Join(embeddingProviders, ", "))
	}
	if !oneOf(c.AI.Provider, aiProviders) {
		return fmt.Errorf("unsupported ai provider %q (expected one of %s)", c.AI.Provider, strings.Join(aiProviders, ", "))
	}
	if c.AI.Provider == "azure" && strings.TrimSpace(c.AI.Endpoint) == "" {
		return errors.New("ai.endpoint (AZURE_ENDPOINT) is required for the azure provider")
	}

	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
