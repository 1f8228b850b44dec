package server

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/internal/engine"
	"github.com/leapstack-labs/leapmeta/internal/server/notifier"
)

// refresh collects sources, reloads pipeline lineage and notifies listeners.
// The result is returned even when some sources failed.
func (s *Server) refresh(ctx context.Context, sources []config.Source) (*engine.CollectResult, error) {
	res, err := s.engine.Collect(ctx, sources)
	if err != nil {
		s.logger.Warn("collection finished with errors", "error", err)
	}
	if res == nil {
		return nil, err
	}
	if _, perr := s.engine.LoadPipelines(ctx, ""); perr != nil && !errors.Is(perr, os.ErrNotExist) {
		s.logger.Warn("failed to reload pipelines", "error", perr)
	}
	s.notify(notifier.KindCollected, res.Run.ID, res.Run.Assets)
	return res, err
}

// fileSources returns the configured sources that live on the local disk.
func (s *Server) fileSources() []config.Source {
	var out []config.Source
	for _, src := range s.sources {
		if strings.EqualFold(src.Type, config.SourceFiles) && src.Path != "" {
			out = append(out, src)
		}
	}
	return out
}

// watchSources re-collects files sources when their directories change.
// Events are debounced; one refresh covers every source touched meanwhile.
func (s *Server) watchSources(ctx context.Context) error {
	sources := s.fileSources()
	if len(sources) == 0 {
		s.logger.Info("watch mode enabled but no files sources are configured")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	roots := make(map[string]config.Source, len(sources))
	for _, src := range sources {
		root, err := filepath.Abs(src.Expanded().Path)
		if err != nil {
			return err
		}
		roots[root] = src
		if err := watchDirRecursive(watcher, root); err != nil {
			s.logger.Error("failed to watch source directory", "source", src.Name, "error", err)
		}
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]config.Source)
		timer   *time.Timer
	)
	fire := func() {
		mu.Lock()
		batch := make([]config.Source, 0, len(pending))
		for _, src := range pending {
			batch = append(batch, src)
		}
		clear(pending)
		mu.Unlock()
		if len(batch) == 0 || ctx.Err() != nil {
			return
		}
		s.logger.Debug("files changed, re-collecting", "sources", len(batch))
		_, _ = s.refresh(ctx, batch)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchDirRecursive(watcher, event.Name)
				}
			}
			src, ok := sourceFor(roots, event.Name)
			if !ok {
				continue
			}

			mu.Lock()
			pending[src.Name] = src
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, fire)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// sourceFor finds the source whose root contains path.
func sourceFor(roots map[string]config.Source, path string) (config.Source, bool) {
	best := ""
	for root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if len(root) > len(best) {
			best = root
		}
	}
	if best == "" {
		return config.Source{}, false
	}
	return roots[best], true
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}
