package filtering

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-ranker/internal/cv"
)

const forceFlagSetMsg = "force flag is set"

type documentsFilter struct{}

// NewDocuments creates a filter that removes files the extractor cannot read.
func NewDocuments() Filter {
	return &documentsFilter{}
}

func (f *documentsFilter) Name() string { return "documents" }

func (f *documentsFilter) Disable(string) {}

func (f *documentsFilter) IsEnabled() bool { return true }

func (f *documentsFilter) Validate(*Config) error { return nil }

func (f *documentsFilter) Apply(_ context.Context, deps Deps, s *Sources) (*Sources, Step, error) {
	initial := s.Len()
	excluded := s.Exclude(func(src *cv.Source) bool { return !cv.IsDocument(src.Filename) })
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding files that are not cv documents",
			zap.Strings("excluded_files", excluded),
			zap.Int("files_left", s.Len()),
		)
	}

	return s, Step{Initial: initial, Dropped: len(excluded), Left: s.Len()}, nil
}

func (f *documentsFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: true, Details: map[string]string{"extensions": ".pdf,.txt,.md"}}
}

type hiddenFilter struct{}

// NewHidden creates a filter that removes dotfiles and editor lock files.
func NewHidden() Filter {
	return &hiddenFilter{}
}

func (f *hiddenFilter) Name() string { return "hidden" }

func (f *hiddenFilter) Disable(string) {}

func (f *hiddenFilter) IsEnabled() bool { return true }

func (f *hiddenFilter) Validate(*Config) error { return nil }

func (f *hiddenFilter) Apply(_ context.Context, deps Deps, s *Sources) (*Sources, Step, error) {
	initial := s.Len()
	excluded := s.Exclude(func(src *cv.Source) bool {
		name := filepath.Base(src.Filename)
		return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding hidden files", zap.Strings("excluded_files", excluded))
	}

	return s, Step{Initial: initial, Dropped: len(excluded), Left: s.Len()}, nil
}

type indexedFilter struct {
	disabled bool
	reason   string
}

// NewIndexed creates a filter that removes files already present in the store.
func NewIndexed() Filter {
	return &indexedFilter{}
}

func (f *indexedFilter) Name() string { return "indexed" }

func (f *indexedFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *indexedFilter) IsEnabled() bool { return !f.disabled }

func (f *indexedFilter) Validate(*Config) error { return nil }

func (f *indexedFilter) Apply(_ context.Context, deps Deps, s *Sources) (*Sources, Step, error) {
	initial := s.Len()
	if deps.Index == nil {
		return s, Step{}, fmt.Errorf("store is required")
	}

	excluded := s.Exclude(func(src *cv.Source) bool { return deps.Index.Has(src.Filename) })
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding files already in the store",
			zap.Int("excluded_files", len(excluded)),
			zap.Int("files_left", s.Len()),
		)
	}

	return s, Step{Initial: initial, Dropped: len(excluded), Left: s.Len()}, nil
}

func (f *indexedFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"skip_indexed": strconv.FormatBool(!f.disabled)},
	}
}

type excludeFileFilter struct {
	path string
}

// NewExcludeFile creates a filter that removes files listed in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(string) {}

func (f *excludeFileFilter) IsEnabled() bool { return true }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, s *Sources) (*Sources, Step, error) {
	initial := s.Len()
	if f.path == "" {
		return s, Step{Initial: initial, Dropped: 0, Left: s.Len()}, nil
	}

	excluded, err := LoadExcluded(f.path)
	if err != nil {
		return s, Step{}, fmt.Errorf("getting excluded files from file: %w", err)
	}

	removed := s.Exclude(func(src *cv.Source) bool { return excluded.Contains(src.Filename) })
	if deps.Logger != nil && len(removed) > 0 {
		deps.Logger.Info("excluding files based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_files", removed),
			zap.Int("files_left", s.Len()),
		)
	}

	return s, Step{Initial: initial, Dropped: len(removed), Left: s.Len()}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
