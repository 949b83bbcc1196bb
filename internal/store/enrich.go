package store

import (
	"context"
	"sync"

	"github.com/spigell/cv-ranker/internal/cv"
	"github.com/spigell/cv-ranker/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultEnrichWorkers = 2

type summarizer interface {
	Summarize(ctx context.Context, record *cv.Record) (string, error)
}

// Enricher attaches summaries to stored records. It never fails the caller:
// records whose summary cannot be produced keep an empty one.
type Enricher struct {
	summarizer summarizer
	workers    int
	logger     *zap.Logger
}

func NewEnricher(s summarizer, workers int, log *zap.Logger) *Enricher {
	if workers <= 0 {
		workers = defaultEnrichWorkers
	}
	return &Enricher{summarizer: s, workers: workers, logger: logger.WithStage(log, "summary")}
}

// Enrich summarizes records lacking a summary and stores the results with a
// single persist.
func (e *Enricher) Enrich(ctx context.Context, st *Store, records []*cv.Record) {
	var (
		mu        sync.Mutex
		summaries = make(map[string]string)
		g         errgroup.Group
	)
	g.SetLimit(e.workers)

	for _, rec := range records {
		if rec.Summary != "" {
			continue
		}
		g.Go(func() error {
			summary, err := e.summarizer.Summarize(ctx, rec)
			if err != nil {
				e.logger.Warn("summary generation failed", zap.String(logger.FieldFilename, rec.Filename), zap.Error(err))
				return nil
			}
			if summary == "" {
				return nil
			}

			mu.Lock()
			summaries[rec.Filename] = summary
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// records removed while summarizing are skipped
	for filename := range summaries {
		if !st.Has(filename) {
			delete(summaries, filename)
		}
	}

	if err := st.UpdateSummaries(summaries); err != nil {
		e.logger.Warn("storing summaries failed", zap.Int("summaries", len(summaries)), zap.Error(err))
		return
	}
	if len(summaries) > 0 {
		e.logger.Info("summaries stored", zap.Int("summaries", len(summaries)))
	}
}
