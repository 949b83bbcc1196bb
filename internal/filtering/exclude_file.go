package filtering

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ExcludedSources is the on-disk list of CV files never to ingest again.
type ExcludedSources struct {
	Items []ExcludedSource `json:"items"`
}

type ExcludedSource struct {
	Filename   string    `json:"filename"`
	Reason     string    `json:"reason,omitempty"`
	ExcludedAt time.Time `json:"excluded_at"`
}

// LoadExcluded reads an exclude file. A missing or empty file is an empty list.
func LoadExcluded(path string) (*ExcludedSources, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ExcludedSources{}, nil
		}
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedSources{}, nil
	}

	var excluded ExcludedSources
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &excluded, nil
}

// Append records filename unless it is already listed.
func (e *ExcludedSources) Append(filename, reason string, at time.Time) bool {
	if e.Contains(filename) {
		return false
	}
	e.Items = append(e.Items, ExcludedSource{Filename: filename, Reason: reason, ExcludedAt: at.UTC()})
	return true
}

func (e *ExcludedSources) Contains(filename string) bool {
	for _, item := range e.Items {
		if item.Filename == filename {
			return true
		}
	}
	return false
}

func (e *ExcludedSources) Filenames() []string {
	names := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		names = append(names, item.Filename)
	}
	return names
}

// Save writes the list to path.
func (e *ExcludedSources) Save(path string) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
