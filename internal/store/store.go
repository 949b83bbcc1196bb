// Package store keeps CV records and their vector index in step, on disk and
// in memory.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/spigell/cv-ranker/internal/cv"
	"github.com/spigell/cv-ranker/internal/logger"
	"go.uber.org/zap"
)

var (
	ErrDuplicateFilename = errors.New("cv already exists")
	ErrNoValidDocuments  = errors.New("no valid documents")
	ErrStoreCorruption   = errors.New("store is corrupted")
	ErrNotFound          = errors.New("cv not found")
)

type Options struct {
	Dir        string
	Dimensions int
	EfSearch   int
	// ExactSearchRows is the store size up to which Search scans every row.
	ExactSearchRows int
}

// Match is a record returned by Search with its distance to the query.
type Match struct {
	Record   *cv.Record
	Distance float32
}

// Store owns the records and the index over their embeddings. Row i of the
// index always encodes records[i].Embedding. Records are never modified in
// place, so pointers handed out by reads stay valid after later mutations.
type Store struct {
	mu         sync.RWMutex
	dir        string
	dims       int
	efSearch   int
	exactRows  int
	generation uuid.UUID
	records    []*cv.Record
	byName     map[string]int
	index      *Index
	logger     *zap.Logger

	// swapped in tests
	persistFn func(dir string, generation uuid.UUID, dims int, records []*cv.Record, index *Index) error
}

func New(opts Options, log *zap.Logger) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("store directory is required")
	}
	if opts.Dimensions <= 0 {
		return nil, errors.New("store dimensions must be positive")
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = DefaultEfSearch
	}

	s := &Store{
		dir:       opts.Dir,
		dims:      opts.Dimensions,
		efSearch:  opts.EfSearch,
		exactRows: opts.ExactSearchRows,
		byName:    make(map[string]int),
		logger:    logger.WithStage(log, "store"),
		persistFn: writePair,
	}
	s.index = s.newIndex()
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Dimensions() int { return s.dims }

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Has(filename string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byName[filename]
	return ok
}

func (s *Store) Get(filename string) (*cv.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byName[filename]
	if !ok {
		return nil, false
	}
	return s.records[i], true
}

// Snapshot returns the records in row order.
func (s *Store) Snapshot() []*cv.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*cv.Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Filenames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.records))
	for i, rec := range s.records {
		names[i] = rec.Filename
	}
	return names
}

// Search returns the k records nearest to vector, closest first.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.index.Search(vector, k)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		matches = append(matches, Match{Record: s.records[hit.Row], Distance: hit.Distance})
	}
	return matches, nil
}

// Add appends rec and persists. A duplicate filename is rejected with
// ErrDuplicateFilename; a persist failure leaves the store unchanged.
func (s *Store) Add(rec *cv.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[rec.Filename]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFilename, rec.Filename)
	}
	if len(rec.Embedding) != s.dims {
		return fmt.Errorf("cv %s has %d dimensions, store expects %d", rec.Filename, len(rec.Embedding), s.dims)
	}

	if err := s.index.Add(rec.Embedding); err != nil {
		return err
	}
	s.records = append(s.records, rec)
	s.byName[rec.Filename] = len(s.records) - 1

	if err := s.persistLocked(); err != nil {
		s.records = s.records[:len(s.records)-1]
		delete(s.byName, rec.Filename)
		if rerr := s.rebuildLocked(); rerr != nil {
			s.logger.Error("failed to restore index after persist failure", zap.Error(rerr))
		}
		return err
	}

	return nil
}

// Remove deletes filename and rebuilds the index from the remaining rows.
// It reports false when filename is not stored.
func (s *Store) Remove(filename string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.byName[filename]
	if !ok {
		return false, nil
	}

	records := make([]*cv.Record, 0, len(s.records)-1)
	records = append(records, s.records[:pos]...)
	records = append(records, s.records[pos+1:]...)

	index, err := s.buildIndex(records)
	if err != nil {
		return false, err
	}

	prevRecords, prevIndex, prevNames := s.records, s.index, s.byName
	s.setLocked(records, index)

	if err := s.persistLocked(); err != nil {
		s.records, s.index, s.byName = prevRecords, prevIndex, prevNames
		return false, err
	}

	return true, nil
}

// Replace swaps the whole content for records and persists. Later records
// with an already seen filename are dropped.
func (s *Store) Replace(records []*cv.Record) error {
	unique := make([]*cv.Record, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if seen[rec.Filename] {
			s.logger.Warn("dropping duplicate cv", zap.String(logger.FieldFilename, rec.Filename))
			continue
		}
		seen[rec.Filename] = true
		unique = append(unique, rec)
	}

	index, err := s.buildIndex(unique)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prevRecords, prevIndex, prevNames, prevGen := s.records, s.index, s.byName, s.generation
	s.setLocked(unique, index)

	if err := s.persistLocked(); err != nil {
		s.records, s.index, s.byName, s.generation = prevRecords, prevIndex, prevNames, prevGen
		return err
	}
	return nil
}

// UpdateSummary stores summary on filename's record.
func (s *Store) UpdateSummary(filename, summary string) error {
	return s.UpdateSummaries(map[string]string{filename: summary})
}

// UpdateSummaries stores summaries keyed by filename and persists once.
// Unknown filenames fail the whole update with ErrNotFound.
func (s *Store) UpdateSummaries(summaries map[string]string) error {
	if len(summaries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*cv.Record, len(s.records))
	copy(records, s.records)

	for filename, summary := range summaries {
		pos, ok := s.byName[filename]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		records[pos] = records[pos].WithSummary(summary)
	}

	prevRecords := s.records
	s.records = records
	if err := s.persistLocked(); err != nil {
		s.records = prevRecords
		return err
	}
	return nil
}

// Persist writes the current pair to disk.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Load replaces the in-memory content with the persisted pair. When only the
// index is unreadable it is rebuilt from the stored embeddings and written
// back. A missing pair returns an error matching os.ErrNotExist.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := readPair(s.dir, s.efSearch)
	if err != nil {
		return err
	}

	index, resized := snap.index, false
	if snap.dims != s.dims {
		if len(snap.records) > 0 {
			return fmt.Errorf("%w: stored embeddings have %d dimensions, embedder produces %d", ErrStoreCorruption, snap.dims, s.dims)
		}
		// an empty pair holds no vectors, so it takes the current size
		s.logger.Info("empty store written with other dimensions, resizing", zap.Int("stored", snap.dims), zap.Int("dimensions", s.dims))
		index, resized = s.newIndex(), true
	}
	if index == nil {
		s.logger.Warn("index file unreadable, rebuilding from metadata", zap.Error(snap.indexErr))
		if index, err = s.buildIndex(snap.records); err != nil {
			return fmt.Errorf("%w: %w", ErrStoreCorruption, err)
		}
	}

	s.setLocked(snap.records, index)
	s.generation = snap.generation

	if snap.index == nil || resized {
		if err := s.persistLocked(); err != nil {
			return fmt.Errorf("persist rebuilt index: %w", err)
		}
	}

	s.logger.Info("store loaded", zap.Int("records", len(s.records)), zap.String("generation", s.generation.String()))
	return nil
}

// Exists reports whether a persisted pair is present in the store directory.
func (s *Store) Exists() bool {
	return pairExists(s.dir)
}

func (s *Store) buildIndex(records []*cv.Record) (*Index, error) {
	vectors := make([][]float32, len(records))
	for i, rec := range records {
		vectors[i] = rec.Embedding
	}
	index, err := BuildIndex(vectors, s.dims, s.efSearch)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	index.SetExactRows(s.exactRows)
	return index, nil
}

func (s *Store) newIndex() *Index {
	index := NewIndex(s.dims, s.efSearch)
	index.SetExactRows(s.exactRows)
	return index
}

func (s *Store) rebuildLocked() error {
	index, err := s.buildIndex(s.records)
	if err != nil {
		return err
	}
	s.index = index
	return nil
}

func (s *Store) setLocked(records []*cv.Record, index *Index) {
	byName := make(map[string]int, len(records))
	for i, rec := range records {
		byName[rec.Filename] = i
	}
	index.SetExactRows(s.exactRows)
	s.records, s.index, s.byName = records, index, byName
}

func (s *Store) persistLocked() error {
	if s.index.Len() != len(s.records) {
		return fmt.Errorf("%w: index holds %d rows, store holds %d records", ErrStoreCorruption, s.index.Len(), len(s.records))
	}

	generation := uuid.New()
	if err := s.persistFn(s.dir, generation, s.dims, s.records, s.index); err != nil {
		return fmt.Errorf("persist store: %w", err)
	}
	s.generation = generation

	s.logger.Debug("store persisted", zap.Int("records", len(s.records)), zap.String("generation", generation.String()))
	return nil
}

// IsNotExist reports whether err means no persisted pair was found.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
