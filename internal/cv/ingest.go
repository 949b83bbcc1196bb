package cv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spigell/cv-ranker/internal/chunking"
	"github.com/spigell/cv-ranker/internal/embed"
	"github.com/spigell/cv-ranker/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int
	Workers      int
}

// Ingestor extracts, cleans, chunks and embeds CV documents.
type Ingestor struct {
	embedder embed.Embedder
	cleaner  *Cleaner
	opts     IngestOptions
	logger   *zap.Logger
	now      func() time.Time
}

func NewIngestor(embedder embed.Embedder, cleaner *Cleaner, opts IngestOptions, log *zap.Logger) *Ingestor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunking.DefaultSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	return &Ingestor{
		embedder: embedder,
		cleaner:  cleaner,
		opts:     opts,
		logger:   logger.WithStage(log, "ingest"),
		now:      time.Now,
	}
}

// Ingest reads src and builds its record.
func (i *Ingestor) Ingest(ctx context.Context, src *Source) (*Record, error) {
	raw, err := ExtractText(src.Path)
	if err != nil {
		return nil, err
	}
	return i.Build(ctx, src.Filename, raw)
}

// Build derives a record from already extracted text. Every chunk and the
// cleaned document are embedded.
func (i *Ingestor) Build(ctx context.Context, filename, raw string) (*Record, error) {
	cleaned := i.cleaner.Clean(raw)
	chunks := chunking.Split(raw, i.opts.ChunkSize, i.opts.ChunkOverlap)

	chunkEmbeddings := make([]ChunkEmbedding, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := i.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embed chunk of %s: %w", filename, err)
		}
		chunkEmbeddings = append(chunkEmbeddings, ChunkEmbedding{Text: chunk, Embedding: vec})
	}

	vec, err := i.embedder.Embed(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", filename, err)
	}

	record := &Record{
		Filename:        filename,
		RawText:         raw,
		CleanedText:     cleaned,
		Embedding:       vec,
		Contact:         ExtractContact(raw),
		Sections:        ExtractSections(raw),
		Chunks:          chunks,
		ChunkEmbeddings: chunkEmbeddings,
		ChunkCount:      len(chunks),
		AddedAt:         i.now().UTC(),
	}

	i.logger.Debug("cv ingested",
		zap.String(logger.FieldFilename, filename),
		zap.Int("chunks", record.ChunkCount),
		zap.Int("sections", len(record.Sections)),
	)

	return record, nil
}

// IngestAll ingests sources concurrently. Documents that fail are logged and
// skipped; only cancellation of ctx is returned as an error. Records come
// back sorted by filename.
func (i *Ingestor) IngestAll(ctx context.Context, sources []*Source) ([]*Record, error) {
	records := make([]*Record, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.opts.Workers)

	for idx, src := range sources {
		g.Go(func() error {
			record, err := i.Ingest(gctx, src)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				level := i.logger.Warn
				if errors.Is(err, ErrExtractionFailed) || errors.Is(err, ErrUnsupportedDocument) {
					level = i.logger.Info
				}
				level("skipping cv", zap.String(logger.FieldFilename, src.Filename), zap.Error(err))
				return nil
			}
			records[idx] = record
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]*Record, 0, len(records))
	for _, record := range records {
		if record != nil {
			result = append(result, record)
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].Filename < result[b].Filename })

	return result, nil
}
