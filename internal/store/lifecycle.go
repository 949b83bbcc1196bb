package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spigell/cv-ranker/internal/cv"
	"github.com/spigell/cv-ranker/internal/filtering"
	"github.com/spigell/cv-ranker/internal/logger"
	"go.uber.org/zap"
)

// Result reports the outcome of adding a CV.
type Result struct {
	Success bool
	Message string
	Err     error
}

// RemoveResult reports the outcome of removing a CV.
type RemoveResult struct {
	Removed bool
	Message string
}

type ingestor interface {
	Build(ctx context.Context, filename, raw string) (*cv.Record, error)
	IngestAll(ctx context.Context, sources []*cv.Source) ([]*cv.Record, error)
}

// Manager drives the index lifecycle: initial build, adds, removes and syncs
// with the source directory.
type Manager struct {
	store    *Store
	ingestor ingestor
	enricher *Enricher
	filters  *filtering.Config
	logger   *zap.Logger
}

// NewManager wires a lifecycle manager. enricher may be nil to skip summaries.
func NewManager(store *Store, ing ingestor, enricher *Enricher, filters *filtering.Config, log *zap.Logger) *Manager {
	if filters == nil {
		filters = &filtering.Config{}
	}
	return &Manager{
		store:    store,
		ingestor: ing,
		enricher: enricher,
		filters:  filters,
		logger:   logger.WithStage(log, "lifecycle"),
	}
}

func (m *Manager) Store() *Store { return m.store }

// Has reports whether filename is indexed.
func (m *Manager) Has(filename string) bool { return m.store.Has(filename) }

// Initialize loads the persisted store, or builds it from sourceDir when
// nothing usable is on disk.
func (m *Manager) Initialize(ctx context.Context, sourceDir string) error {
	err := m.store.Load()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStoreCorruption):
		m.logger.Warn("persisted store is unusable, rebuilding from sources", zap.Error(err))
	case errors.Is(err, os.ErrNotExist):
		m.logger.Info("no persisted store found, building from sources", zap.String("dir", sourceDir))
	default:
		return fmt.Errorf("load store: %w", err)
	}

	return m.Rebuild(ctx, sourceDir)
}

// Rebuild ingests every document in sourceDir and replaces the store content.
func (m *Manager) Rebuild(ctx context.Context, sourceDir string) error {
	steps := filtering.Default()
	filtering.DisableByName(steps, "indexed", "full rebuild")

	records, err := m.ingestDir(ctx, sourceDir, steps)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w in %s", ErrNoValidDocuments, sourceDir)
	}

	if err := m.store.Replace(records); err != nil {
		return err
	}
	m.logger.Info("store built", zap.Int("records", m.store.Len()))

	m.enrich(ctx, records)
	return nil
}

// Sync adds documents from sourceDir that are not stored yet and returns
// their filenames.
func (m *Manager) Sync(ctx context.Context, sourceDir string) ([]string, error) {
	records, err := m.ingestDir(ctx, sourceDir, filtering.Default())
	if err != nil {
		return nil, err
	}

	added := make([]string, 0, len(records))
	stored := make([]*cv.Record, 0, len(records))
	for _, rec := range records {
		if err := m.store.Add(rec); err != nil {
			if errors.Is(err, ErrDuplicateFilename) {
				continue
			}
			return added, err
		}
		added = append(added, rec.Filename)
		stored = append(stored, rec)
	}

	m.enrich(ctx, stored)
	return added, nil
}

func (m *Manager) ingestDir(ctx context.Context, sourceDir string, steps []filtering.Filter) ([]*cv.Record, error) {
	sources, err := filtering.Discover(sourceDir)
	if err != nil {
		return nil, err
	}

	deps := filtering.Deps{Logger: m.logger, Index: m.store}
	sources, err = filtering.Run(ctx, m.filters, deps, steps, sources)
	if err != nil {
		return nil, fmt.Errorf("filtering sources: %w", err)
	}

	return m.ingestor.IngestAll(ctx, sources.Items)
}

// Add ingests the file at path under filename. Failures are reported in the
// result rather than returned.
func (m *Manager) Add(ctx context.Context, path, filename string) Result {
	if filename == "" {
		filename = cv.NewSource(path).Filename
	}
	log := m.logger.With(zap.String(logger.FieldFilename, filename))

	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return m.failed(log, fmt.Sprintf("Invalid CV path: %s", path), fmt.Errorf("%w: %s", os.ErrNotExist, path))
	}
	if !cv.IsDocument(filename) || !cv.IsDocument(path) {
		return m.failed(log, fmt.Sprintf("Invalid CV path: %s", path), fmt.Errorf("%w: %s", cv.ErrUnsupportedDocument, filename))
	}

	// checked before any embedding work, and again under the store lock
	if m.store.Has(filename) {
		return m.failed(log, fmt.Sprintf("CV %s already exists in the system", filename), fmt.Errorf("%w: %s", ErrDuplicateFilename, filename))
	}

	raw, err := cv.ExtractText(path)
	if err != nil {
		return m.failed(log, fmt.Sprintf("Could not extract text from %s", filename), err)
	}

	rec, err := m.ingestor.Build(ctx, filename, raw)
	if err != nil {
		return m.failed(log, fmt.Sprintf("Error adding CV: %v", err), err)
	}

	if err := m.store.Add(rec); err != nil {
		if errors.Is(err, ErrDuplicateFilename) {
			return m.failed(log, fmt.Sprintf("CV %s already exists in the system", filename), err)
		}
		return m.failed(log, fmt.Sprintf("Error adding CV: %v", err), err)
	}

	log.Info("cv added", zap.Int("records", m.store.Len()))
	m.enrich(ctx, []*cv.Record{rec})

	return Result{Success: true, Message: "CV added successfully"}
}

// Remove deletes filename from the store. A missing filename is not an error.
func (m *Manager) Remove(_ context.Context, filename string) (RemoveResult, error) {
	log := m.logger.With(zap.String(logger.FieldFilename, filename))

	removed, err := m.store.Remove(filename)
	if err != nil {
		return RemoveResult{Message: fmt.Sprintf("Error removing CV: %v", err)}, err
	}
	if !removed {
		log.Info("cv not found in the system")
		return RemoveResult{Message: "not found"}, nil
	}

	log.Info("cv removed", zap.Int("records", m.store.Len()))
	return RemoveResult{Removed: true, Message: fmt.Sprintf("CV %s removed", filename)}, nil
}

func (m *Manager) failed(log *zap.Logger, message string, err error) Result {
	log.Warn("cv not added", zap.String("reason", message), zap.Error(err))
	return Result{Success: false, Message: message, Err: err}
}

func (m *Manager) enrich(ctx context.Context, records []*cv.Record) {
	if m.enricher == nil || len(records) == 0 {
		return
	}
	m.enricher.Enrich(ctx, m.store, records)
}
