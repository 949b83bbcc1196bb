package filtering

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeIndex map[string]bool

func (f fakeIndex) Has(name string) bool { return f[name] }

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("content"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestDiscoverSortsRegularFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "b.pdf", "a.txt")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	sources, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if got := strings.Join(sources.Filenames(), ","); got != "a.txt,b.pdf" {
		t.Fatalf("unexpected sources: %s", got)
	}
	if sources.Items[0].Path != filepath.Join(dir, "a.txt") {
		t.Fatalf("unexpected path: %s", sources.Items[0].Path)
	}

	if _, err := Discover(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestRunDefaultSteps(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "alice.pdf", "bob.txt", "carol.md", "notes.docx", ".DS_Store", "~$alice.pdf", "dave.pdf")

	excludePath := filepath.Join(dir, "exclude.json")
	excluded := &ExcludedSources{}
	excluded.Append("carol.md", "withdrew", time.Now())
	if err := excluded.Save(excludePath); err != nil {
		t.Fatalf("save exclude file: %v", err)
	}

	sources, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	core, logs := observer.New(zap.InfoLevel)
	deps := Deps{Logger: zap.New(core), Index: fakeIndex{"dave.pdf": true}}

	result, err := Run(context.Background(), &Config{ExcludeFile: excludePath}, deps, Default(), sources)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := strings.Join(result.Filenames(), ","); got != "alice.pdf,bob.txt" {
		t.Fatalf("unexpected sources: %s", got)
	}
	if logs.FilterMessage("filter step").Len() != 4 {
		t.Fatalf("expected one log entry per step, got %d", logs.FilterMessage("filter step").Len())
	}
}

func TestRunWithIndexedDisabled(t *testing.T) {
	t.Parallel()

	steps := Default()
	DisableByName(steps, "indexed", forceFlagSetMsg)

	sources := &Sources{}
	sources.Items = append(sources.Items, newSource("alice.pdf"), newSource("bob.pdf"))

	result, err := Run(context.Background(), &Config{}, Deps{}, steps, sources)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Len() != 2 {
		t.Fatalf("expected both sources, got %v", result.Filenames())
	}

	for _, status := range Describe(steps) {
		if status.Name == "indexed" && (status.Enabled || status.Reason != forceFlagSetMsg) {
			t.Fatalf("unexpected indexed status: %+v", status)
		}
	}
}

func TestIndexedRequiresStore(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), nil, Deps{}, []Filter{NewIndexed()}, &Sources{})
	if err == nil {
		t.Fatal("expected error without store")
	}
}

func TestExcludedSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "exclude.json")

	missing, err := LoadExcluded(path)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if len(missing.Items) != 0 {
		t.Fatalf("expected empty list, got %+v", missing)
	}

	if !missing.Append("a.pdf", "", time.Now()) {
		t.Fatal("expected first append to succeed")
	}
	if missing.Append("a.pdf", "again", time.Now()) {
		t.Fatal("expected duplicate append to be ignored")
	}
	if err := missing.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadExcluded(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.Filenames(); len(got) != 1 || got[0] != "a.pdf" {
		t.Fatalf("unexpected filenames: %v", got)
	}

	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadExcluded(path); err == nil {
		t.Fatal("expected decode error")
	}
}
