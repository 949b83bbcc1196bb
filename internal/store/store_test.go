package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spigell/cv-ranker/internal/cv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func record(name string, vec ...float32) *cv.Record {
	email := name + "@example.com"
	return &cv.Record{
		Filename:    name,
		RawText:     "raw " + name,
		CleanedText: "clean " + name,
		Embedding:   vec,
		Contact:     &cv.Contact{Email: &email},
		Sections:    map[string]string{cv.SectionSkills: "Skills: Go"},
		Chunks:      []string{"raw " + name},
		ChunkCount:  1,
	}
}

func newStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := New(Options{Dir: dir, Dimensions: 2}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func assertInvariant(t *testing.T, s *Store) {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()
	require.Equal(t, len(s.records), s.index.Len())
	for i, rec := range s.records {
		assert.Equal(t, i, s.byName[rec.Filename])
	}
}

func TestStoreSearchUsesExactRows(t *testing.T) {
	t.Parallel()

	s, err := New(Options{Dir: t.TempDir(), Dimensions: 2, ExactSearchRows: 3}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, s.index.exactRows)

	require.NoError(t, s.Replace([]*cv.Record{record("a.pdf", 0, 0), record("b.pdf", 1, 1)}))
	assert.Equal(t, 3, s.index.exactRows)

	_, err = s.Remove("a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, s.index.exactRows)
}

func TestStoreAddAndSearch(t *testing.T) {
	t.Parallel()

	s := newStore(t, t.TempDir())

	require.NoError(t, s.Add(record("a.pdf", 0, 0)))
	require.NoError(t, s.Add(record("b.pdf", 1, 1)))
	require.NoError(t, s.Add(record("c.pdf", 5, 5)))
	assertInvariant(t, s)

	matches, err := s.Search(context.Background(), []float32{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "b.pdf", matches[0].Record.Filename)
	assert.Equal(t, float32(0), matches[0].Distance)
	assert.Equal(t, "a.pdf", matches[1].Record.Filename)
	assert.Equal(t, float32(2), matches[1].Distance)

	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, s.Filenames())
	assert.True(t, s.Has("c.pdf"))
	assert.True(t, s.Exists())
}

func TestStoreRejectsDuplicates(t *testing.T) {
	t.Parallel()

	s := newStore(t, t.TempDir())
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))

	err := s.Add(record("a.pdf", 1, 1))
	require.ErrorIs(t, err, ErrDuplicateFilename)
	assert.Equal(t, 1, s.Len())
	assertInvariant(t, s)

	// filenames are case sensitive
	require.NoError(t, s.Add(record("A.pdf", 1, 1)))
	assert.Equal(t, 2, s.Len())
}

func TestStoreRejectsWrongDimensions(t *testing.T) {
	t.Parallel()

	s := newStore(t, t.TempDir())
	require.Error(t, s.Add(record("a.pdf", 1, 2, 3)))
	assert.Equal(t, 0, s.Len())
}

func TestStoreRemove(t *testing.T) {
	t.Parallel()

	s := newStore(t, t.TempDir())
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))
	require.NoError(t, s.Add(record("b.pdf", 1, 1)))
	require.NoError(t, s.Add(record("c.pdf", 2, 2)))

	removed, err := s.Remove("b.pdf")
	require.NoError(t, err)
	assert.True(t, removed)
	assertInvariant(t, s)
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, s.Filenames())

	matches, err := s.Search(context.Background(), []float32{1, 1}, 10)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "b.pdf", m.Record.Filename)
	}

	removed, err = s.Remove("missing.pdf")
	require.NoError(t, err)
	assert.False(t, removed)

	for _, name := range []string{"a.pdf", "c.pdf"} {
		_, err := s.Remove(name)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, s.Len())
	assertInvariant(t, s)

	matches, err = s.Search(context.Background(), []float32{1, 1}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStorePersistFailureRollsBack(t *testing.T) {
	t.Parallel()

	s := newStore(t, t.TempDir())
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))
	require.NoError(t, s.Add(record("b.pdf", 1, 1)))

	failure := errors.New("disk full")
	s.persistFn = func(string, uuid.UUID, int, []*cv.Record, *Index) error { return failure }

	require.ErrorIs(t, s.Add(record("c.pdf", 2, 2)), failure)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, s.Filenames())
	assertInvariant(t, s)

	_, err := s.Remove("a.pdf")
	require.ErrorIs(t, err, failure)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, s.Filenames())
	assertInvariant(t, s)

	require.ErrorIs(t, s.UpdateSummary("a.pdf", "summary"), failure)
	rec, ok := s.Get("a.pdf")
	require.True(t, ok)
	assert.Empty(t, rec.Summary)

	matches, err := s.Search(context.Background(), []float32{2, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, "b.pdf", matches[0].Record.Filename)
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))
	require.NoError(t, s.Add(record("b.pdf", 3, 4)))
	require.NoError(t, s.UpdateSummary("b.pdf", "Go engineer"))

	loaded := newStore(t, dir)
	require.NoError(t, loaded.Load())
	assertInvariant(t, loaded)

	assert.Equal(t, s.Filenames(), loaded.Filenames())
	rec, ok := loaded.Get("b.pdf")
	require.True(t, ok)
	assert.Equal(t, "Go engineer", rec.Summary)
	assert.Equal(t, "b.pdf@example.com", rec.Contact.EmailOrEmpty())
	assert.Nil(t, rec.Contact.Phone)
	assert.Equal(t, []float32{3, 4}, rec.Embedding)

	matches, err := loaded.Search(context.Background(), []float32{3, 4}, 1)
	require.NoError(t, err)
	assert.Equal(t, "b.pdf", matches[0].Record.Filename)
}

func TestStoreLoadMissing(t *testing.T) {
	t.Parallel()

	err := newStore(t, t.TempDir()).Load()
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.True(t, IsNotExist(err))
}

func TestStoreLoadDetectsGenerationMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))

	stale, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)

	require.NoError(t, s.UpdateSummary("a.pdf", "new generation"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), stale, 0o644))

	err = newStore(t, dir).Load()
	require.ErrorIs(t, err, ErrStoreCorruption)
}

func TestStoreLoadDetectsCountMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))

	gen := uuid.New()
	index, err := BuildIndex([][]float32{{0, 0}, {1, 1}}, 2, 0)
	require.NoError(t, err)
	require.NoError(t, writePair(dir, gen, 2, []*cv.Record{record("a.pdf", 0, 0)}, index))

	err = newStore(t, dir).Load()
	require.ErrorIs(t, err, ErrStoreCorruption)
}

func TestStoreLoadRebuildsBrokenIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))
	require.NoError(t, s.Add(record("b.pdf", 1, 1)))

	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), []byte("not an index"), 0o644))

	loaded := newStore(t, dir)
	require.NoError(t, loaded.Load())
	assertInvariant(t, loaded)
	assert.Equal(t, 2, loaded.Len())

	// the rebuilt index was written back
	again := newStore(t, dir)
	require.NoError(t, again.Load())
	assert.Equal(t, 2, again.Len())
}

func TestStoreLoadRejectsBrokenMetadata(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))

	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("garbage"), 0o644))

	err := newStore(t, dir).Load()
	require.ErrorIs(t, err, ErrStoreCorruption)
}

func TestStoreLoadRejectsOtherDimensions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))

	wide, err := New(Options{Dir: dir, Dimensions: 3}, zap.NewNop())
	require.NoError(t, err)
	require.ErrorIs(t, wide.Load(), ErrStoreCorruption)
}

func TestStoreLoadResizesEmptyStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))
	removed, err := s.Remove("a.pdf")
	require.NoError(t, err)
	require.True(t, removed)

	wide, err := New(Options{Dir: dir, Dimensions: 3}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, wide.Load())
	assert.Equal(t, 3, wide.index.Dims())

	matches, err := wide.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, wide.Add(record("b.pdf", 1, 0, 0)))
	assertInvariant(t, wide)

	// the resized pair is what a later load sees
	again, err := New(Options{Dir: dir, Dimensions: 3}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, again.Load())
	assert.Equal(t, []string{"b.pdf"}, again.Filenames())
}

func TestStoreReplaceDropsDuplicates(t *testing.T) {
	t.Parallel()

	s := newStore(t, t.TempDir())
	require.NoError(t, s.Replace([]*cv.Record{
		record("a.pdf", 0, 0),
		record("b.pdf", 1, 1),
		record("a.pdf", 9, 9),
	}))
	assertInvariant(t, s)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, s.Filenames())

	rec, _ := s.Get("a.pdf")
	assert.Equal(t, []float32{0, 0}, rec.Embedding)
}

func TestStoreUpdateSummariesUnknown(t *testing.T) {
	t.Parallel()

	s := newStore(t, t.TempDir())
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))
	require.ErrorIs(t, s.UpdateSummaries(map[string]string{"x.pdf": "?"}), ErrNotFound)
	require.NoError(t, s.UpdateSummaries(nil))
}

func TestStoreSnapshotIsStable(t *testing.T) {
	t.Parallel()

	s := newStore(t, t.TempDir())
	require.NoError(t, s.Add(record("a.pdf", 0, 0)))

	snap := s.Snapshot()
	require.NoError(t, s.UpdateSummary("a.pdf", "later"))
	_, err := s.Remove("a.pdf")
	require.NoError(t, err)

	require.Len(t, snap, 1)
	assert.Empty(t, snap[0].Summary)
	assert.Equal(t, "a.pdf", snap[0].Filename)
}
