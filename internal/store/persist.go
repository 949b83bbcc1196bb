package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spigell/cv-ranker/internal/cv"
)

const (
	IndexFile    = "cv_index.hnsw"
	MetadataFile = "cv_metadata.gob"
	lockFile     = ".cv-ranker.lock"

	formatVersion = 1
)

var indexMagic = [4]byte{'C', 'V', 'I', 'X'}

// indexHeader precedes the exported graph in the index file.
type indexHeader struct {
	Magic      [4]byte
	Version    uint16
	Generation [16]byte
	Count      uint32
	Dims       uint32
}

type metadataFile struct {
	Version    int
	Generation uuid.UUID
	Dims       int
	Records    []*cv.Record
}

// snapshot is a loaded index and metadata pair.
type snapshot struct {
	generation uuid.UUID
	dims       int
	records    []*cv.Record
	index      *Index
	// indexErr is set when the metadata was fine but the index was not.
	indexErr error
}

func lockDir(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return flock.New(filepath.Join(dir, lockFile)), nil
}

// writePair writes the index first, then the metadata. Each file is replaced
// atomically; both carry the same generation.
func writePair(dir string, generation uuid.UUID, dims int, records []*cv.Record, index *Index) error {
	fl, err := lockDir(dir)
	if err != nil {
		return err
	}
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	defer fl.Unlock()

	header := indexHeader{
		Magic:      indexMagic,
		Version:    formatVersion,
		Generation: generation,
		Count:      uint32(index.Len()),
		Dims:       uint32(dims),
	}

	err = writeAtomic(filepath.Join(dir, IndexFile), func(w io.Writer) error {
		if err := binary.Write(w, binary.LittleEndian, header); err != nil {
			return fmt.Errorf("write index header: %w", err)
		}
		return index.Export(w)
	})
	if err != nil {
		return err
	}

	meta := metadataFile{
		Version:    formatVersion,
		Generation: generation,
		Dims:       dims,
		Records:    records,
	}
	return writeAtomic(filepath.Join(dir, MetadataFile), func(w io.Writer) error {
		if err := gob.NewEncoder(w).Encode(meta); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		return nil
	})
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", filepath.Base(path), err)
	}
	tmpPath := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	buf := bufio.NewWriter(tmp)
	if err := write(buf); err != nil {
		return cleanup(err)
	}
	if err := buf.Flush(); err != nil {
		return cleanup(fmt.Errorf("write %s: %w", filepath.Base(path), err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("sync %s: %w", filepath.Base(path), err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// pairExists reports whether either file of the pair is present.
func pairExists(dir string) bool {
	for _, name := range []string{IndexFile, MetadataFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// readPair loads the persisted pair. A missing pair returns os.ErrNotExist.
// Unreadable metadata, or an index that contradicts it, is ErrStoreCorruption;
// an index that merely fails to decode is reported through snapshot.indexErr
// so the caller can rebuild it from the metadata embeddings.
func readPair(dir string, efSearch int) (*snapshot, error) {
	if !pairExists(dir) {
		return nil, os.ErrNotExist
	}

	fl, err := lockDir(dir)
	if err != nil {
		return nil, err
	}
	if err := fl.RLock(); err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	defer fl.Unlock()

	meta, err := readMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreCorruption, err)
	}

	seen := make(map[string]bool, len(meta.Records))
	for i, rec := range meta.Records {
		if rec == nil || rec.Filename == "" {
			return nil, fmt.Errorf("%w: metadata record %d is empty", ErrStoreCorruption, i)
		}
		if seen[rec.Filename] {
			return nil, fmt.Errorf("%w: duplicate filename %q in metadata", ErrStoreCorruption, rec.Filename)
		}
		seen[rec.Filename] = true
		if len(rec.Embedding) != meta.Dims {
			return nil, fmt.Errorf("%w: record %q has %d dimensions, expected %d", ErrStoreCorruption, rec.Filename, len(rec.Embedding), meta.Dims)
		}
	}

	snap := &snapshot{
		generation: meta.Generation,
		dims:       meta.Dims,
		records:    meta.Records,
	}

	header, index, err := readIndex(filepath.Join(dir, IndexFile), meta.Dims, efSearch)
	switch {
	case err != nil:
		snap.indexErr = err
	case header.Generation != meta.Generation:
		return nil, fmt.Errorf("%w: index generation %s does not match metadata generation %s",
			ErrStoreCorruption, uuid.UUID(header.Generation), meta.Generation)
	case int(header.Count) != len(meta.Records):
		return nil, fmt.Errorf("%w: index holds %d rows, metadata holds %d records",
			ErrStoreCorruption, header.Count, len(meta.Records))
	default:
		snap.index = index
	}

	return snap, nil
}

func readMetadata(path string) (*metadataFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta metadataFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if meta.Version != formatVersion {
		return nil, fmt.Errorf("unsupported metadata version %d", meta.Version)
	}
	if meta.Dims <= 0 && len(meta.Records) > 0 {
		return nil, errors.New("metadata has no dimensions")
	}
	return &meta, nil
}

func readIndex(path string, dims, efSearch int) (*indexHeader, *Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var header indexHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, nil, fmt.Errorf("read index header: %w", err)
	}
	if header.Magic != indexMagic {
		return nil, nil, errors.New("index file has an unknown format")
	}
	if header.Version != formatVersion {
		return nil, nil, fmt.Errorf("unsupported index version %d", header.Version)
	}
	if int(header.Dims) != dims {
		return nil, nil, fmt.Errorf("index has %d dimensions, metadata has %d", header.Dims, dims)
	}

	index, err := ImportIndex(r, int(header.Count), dims, efSearch)
	if err != nil {
		return nil, nil, err
	}
	return &header, index, nil
}
