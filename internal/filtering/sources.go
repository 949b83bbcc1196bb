package filtering

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spigell/cv-ranker/internal/cv"
)

// Sources is the list of CV files still queued for ingestion.
type Sources struct {
	Items []*cv.Source
}

// Discover lists the regular files directly inside dir, sorted by name.
func Discover(dir string) (*Sources, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading cv directory: %w", err)
	}

	s := &Sources{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		s.Items = append(s.Items, cv.NewSource(filepath.Join(dir, entry.Name())))
	}

	sort.Slice(s.Items, func(i, j int) bool { return s.Items[i].Filename < s.Items[j].Filename })
	return s, nil
}

func (s *Sources) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}

// Exclude drops every source matching drop and returns the dropped filenames.
func (s *Sources) Exclude(drop func(*cv.Source) bool) []string {
	var excluded []string
	kept := s.Items[:0]
	for _, src := range s.Items {
		if drop(src) {
			excluded = append(excluded, src.Filename)
			continue
		}
		kept = append(kept, src)
	}
	s.Items = kept
	return excluded
}

func (s *Sources) Filenames() []string {
	names := make([]string, 0, s.Len())
	for _, src := range s.Items {
		names = append(names, src.Filename)
	}
	return names
}
