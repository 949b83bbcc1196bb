package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/ai/gemini"
	"github.com/spigell/cv-ranker/internal/ai/openai"
	"github.com/spigell/cv-ranker/internal/config"
	"github.com/spigell/cv-ranker/internal/cv"
	"github.com/spigell/cv-ranker/internal/embed"
	"github.com/spigell/cv-ranker/internal/filtering"
	"github.com/spigell/cv-ranker/internal/logger"
	"github.com/spigell/cv-ranker/internal/ranking"
	"github.com/spigell/cv-ranker/internal/secrets"
	"github.com/spigell/cv-ranker/internal/store"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// application holds the wired components shared by the commands.
type application struct {
	config   *config.Config
	logger   *zap.Logger
	reasoner ai.Reasoner
	store    *store.Store
	manager  *store.Manager
	engine   *ranking.Engine
}

// newApplication builds every component from the loaded configuration. The
// index is not touched; commands decide whether to load or build it.
func newApplication(ctx context.Context) (*application, error) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	logger.Info("starting the cv-ranker", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(cfg), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	reasoner, client, err := newReasoner(ctx, cfg.AI, logger)
	if err != nil {
		logger.Warn("reasoner is not available, rankings fall back to vector similarity", zap.Error(err))
	}

	if !strings.EqualFold(cfg.Embedding.Provider, "gemini") || cfg.Embedding.APIKey != "" || cfg.Embedding.APIKeyFile != "" {
		client = nil
	}
	embedder, err := embed.New(ctx, cfg.Embedding, client, logger)
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}

	st, err := store.New(store.Options{
		Dir:             cfg.Store.Dir,
		Dimensions:      embedder.Dimensions(),
		EfSearch:        cfg.Store.EfSearch,
		ExactSearchRows: cfg.Store.ExactSearchRows,
	}, logger)
	if err != nil {
		return nil, err
	}

	cleaner, err := cv.NewCleaner()
	if err != nil {
		return nil, err
	}

	ingestor := cv.NewIngestor(embedder, cleaner, cv.IngestOptions{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
		Workers:      cfg.Sources.Workers,
	}, logger)

	var enricher *store.Enricher
	if cfg.AI.Summaries && reasoner != nil {
		enricher = store.NewEnricher(cv.NewSummarizer(reasoner, cfg.AI.SummaryTemperature), cfg.Sources.Workers, logger)
	}

	manager := store.NewManager(st, ingestor, enricher, &filtering.Config{ExcludeFile: cfg.Sources.ExcludeFile}, logger)

	engine := ranking.NewEngine(st, embedder, reasoner, cleaner, ranking.Options{
		InitialCandidates:   cfg.Ranking.InitialCandidates,
		FinalRanking:        cfg.Ranking.FinalRanking,
		ProfileCandidates:   cfg.Ranking.ProfileCandidates,
		JobDescriptionLimit: cfg.Ranking.JobDescriptionLimit,
		Temperature:         cfg.AI.RankingTemperature,
		Timeout:             cfg.Ranking.Timeout,
		MaxLogLength:        cfg.AI.MaxLogLength,
	}, logger)

	return &application{
		config:   cfg,
		logger:   logger,
		reasoner: reasoner,
		store:    st,
		manager:  manager,
		engine:   engine,
	}, nil
}

// initialize loads the index or builds it from the sources directory.
func (a *application) initialize(ctx context.Context) error {
	return a.manager.Initialize(ctx, a.config.Sources.Dir)
}

// rank ranks against the configured job description document.
func (a *application) rank(ctx context.Context) (*ranking.Result, error) {
	if a.config.JobDescription == "" {
		return nil, fmt.Errorf("%w: set job-description, --job or JOB_DESCRIPTION_PATH", ranking.ErrInvalidJobDescription)
	}
	return a.engine.RankFile(ctx, a.config.JobDescription)
}

func (a *application) jobDescriptionText() string {
	if a.config.JobDescription == "" {
		return ""
	}
	text, err := cv.ExtractText(a.config.JobDescription)
	if err != nil {
		a.logger.Warn("reading job description", zap.Error(err))
		return ""
	}
	return text
}

// newReasoner builds the language model client for cfg.Provider. The genai
// client is returned as well so the Gemini embedder can share it.
func newReasoner(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (ai.Reasoner, *genai.Client, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))

	switch provider {
	case "gemini", "vertex", "":
		gcfg := gemini.Config{
			Model:        cfg.Model,
			Project:      cfg.Project,
			Location:     cfg.Location,
			MaxRetries:   cfg.MaxRetries,
			MaxLogLength: cfg.MaxLogLength,
		}
		if provider == "vertex" {
			if cfg.Project == "" {
				return nil, nil, errors.New("ai.project is required for the vertex provider")
			}
		} else {
			gcfg.Project = ""
			apiKey, err := secrets.Load(secrets.Source{
				Name:  "gemini api key",
				Value: cfg.APIKey,
				File:  cfg.APIKeyFile,
				Env:   config.ProviderKeyEnv("gemini"),
			})
			if err != nil {
				return nil, nil, fmt.Errorf("%w (set ai.api-key-file or GEMINI_API_KEY)", err)
			}
			gcfg.APIKey = apiKey
		}

		generator, err := gemini.NewGenerator(ctx, gcfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return generator, generator.Client(), nil

	case "openai", "azure":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  provider + " api key",
			Value: cfg.APIKey,
			File:  cfg.APIKeyFile,
			Env:   config.ProviderKeyEnv(provider),
		})
		if err != nil {
			return nil, nil, err
		}

		client, err := openai.New(openai.Config{
			Azure:        provider == "azure",
			Endpoint:     cfg.Endpoint,
			APIKey:       apiKey,
			APIVersion:   cfg.APIVersion,
			Model:        cfg.Model,
			Timeout:      cfg.Timeout,
			MaxLogLength: cfg.MaxLogLength,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

func redacted(cfg *config.Config) config.Config {
	out := *cfg
	if out.AI.APIKey != "" {
		out.AI.APIKey = "<redacted>"
	}
	if out.Embedding.APIKey != "" {
		out.Embedding.APIKey = "<redacted>"
	}
	return out
}
