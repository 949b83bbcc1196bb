package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spigell/cv-ranker/internal/cv"
	"github.com/spigell/cv-ranker/internal/ranking"
	"github.com/spigell/cv-ranker/internal/store"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index in sync with the CV directory and re-rank after every change",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := mustApplication(ctx)
		if err := watch(ctx, cmd, a); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Fatal("watching", zap.Error(err))
		}
		a.logger.Info("exiting", zap.String("reason", "interrupted"))
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func watch(ctx context.Context, cmd *cobra.Command, a *application) error {
	dir := a.config.Sources.Dir
	logger := a.logger.With(zap.String("dir", dir))

	if err := a.initialize(ctx); err != nil {
		return fmt.Errorf("initializing the index: %w", err)
	}
	if added, err := a.manager.Sync(ctx, dir); err != nil {
		return fmt.Errorf("syncing the index: %w", err)
	} else if len(added) > 0 {
		logger.Info("index synced", zap.Strings("added", added))
	}

	refresher := ranking.NewRefresher(func(ctx context.Context) (*ranking.Result, error) {
		result, err := a.rank(ctx)
		if err != nil {
			return nil, err
		}
		if err := printRanking(cmd.OutOrStdout(), result, formatTable); err != nil {
			logger.Warn("printing ranking", zap.Error(err))
		}
		return result, nil
	}, a.config.Ranking.RefreshDelay, logger)

	if _, err := refresher.Refresh(ctx); err != nil {
		logger.Warn("initial ranking failed", zap.Error(err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	logger.Info("watching for cv changes")

	pending := newPendingFiles(a.config.Ranking.RefreshDelay)
	ticker := time.NewTicker(settleTick)
	defer ticker.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return refresher.Run(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if handleEvent(ctx, a.manager, pending, event, time.Now(), logger) {
					refresher.Trigger()
				}
			case now := <-ticker.C:
				changed := false
				for _, path := range pending.due(now) {
					if applyChange(ctx, a.manager, path, logger) {
						changed = true
					}
				}
				if changed {
					refresher.Trigger()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				logger.Warn("watcher error", zap.Error(err))
			}
		}
	})

	return g.Wait()
}

const settleTick = 250 * time.Millisecond

// cvIndex is the part of the index lifecycle the watcher drives.
type cvIndex interface {
	Has(filename string) bool
	Add(ctx context.Context, path, filename string) store.Result
	Remove(ctx context.Context, filename string) (store.RemoveResult, error)
}

// pendingFiles holds created or written documents until no event has touched
// them for the settle delay, so a file is indexed once it is fully written.
type pendingFiles struct {
	settle time.Duration
	last   map[string]time.Time
}

func newPendingFiles(settle time.Duration) *pendingFiles {
	return &pendingFiles{settle: settle, last: make(map[string]time.Time)}
}

func (p *pendingFiles) touch(path string, now time.Time) { p.last[path] = now }

func (p *pendingFiles) drop(path string) { delete(p.last, path) }

// due returns, in path order, the files that settled at now and forgets them.
func (p *pendingFiles) due(now time.Time) []string {
	var ready []string
	for path, at := range p.last {
		if now.Sub(at) >= p.settle {
			ready = append(ready, path)
		}
	}
	slices.Sort(ready)
	for _, path := range ready {
		delete(p.last, path)
	}
	return ready
}

// handleEvent applies one filesystem event and reports whether the index
// changed. Created and written documents are queued in pending.
func handleEvent(ctx context.Context, idx cvIndex, pending *pendingFiles, event fsnotify.Event, now time.Time, logger *zap.Logger) bool {
	filename := filepath.Base(event.Name)
	if strings.HasPrefix(filename, ".") || !cv.IsDocument(filename) {
		return false
	}
	log := logger.With(zap.String("filename", filename), zap.String("op", event.Op.String()))

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		pending.touch(event.Name, now)
		return false
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		pending.drop(event.Name)
		res, err := idx.Remove(ctx, filename)
		if err != nil {
			log.Warn("cv not removed", zap.Error(err))
			return false
		}
		return res.Removed
	default:
		return false
	}
}

// applyChange indexes the settled file at path. A file that is already indexed
// is removed first so the record follows the new content.
func applyChange(ctx context.Context, idx cvIndex, path string, logger *zap.Logger) bool {
	filename := filepath.Base(path)
	log := logger.With(zap.String("filename", filename))

	changed := false
	if idx.Has(filename) {
		res, err := idx.Remove(ctx, filename)
		if err != nil {
			log.Warn("stale cv not removed", zap.Error(err))
			return false
		}
		changed = res.Removed
		log.Info("cv changed, re-indexing")
	}

	res := idx.Add(ctx, path, filename)
	if !res.Success {
		if !errors.Is(res.Err, store.ErrDuplicateFilename) {
			log.Warn("cv not indexed", zap.String("reason", res.Message))
		}
		return changed
	}
	return true
}
