package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/daeprim/pkg/prim"
)

// ReimportFunc receives the outcome of a re-import triggered by Watch.
type ReimportFunc func(path string, prims []*prim.Primitive, err error)

// IsDocument reports whether path names a COLLADA document.
func IsDocument(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".dae")
}

// Watch re-imports .dae files in dir whenever they are written, calling fn
// once per burst of events after debounce has passed without further
// changes. Removed files are dropped from the cache. Watch blocks until ctx
// is done.
func (m *Manager) Watch(ctx context.Context, dir string, debounce time.Duration, fn ReimportFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	m.log.Info("watching", zap.String("dir", dir), zap.Duration("debounce", debounce))

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()

		if t, ok := pending[path]; ok && t.Stop() {
			wg.Done()
		}
		wg.Add(1)
		var timer *time.Timer
		timer = time.AfterFunc(debounce, func() {
			defer wg.Done()

			mu.Lock()
			if pending[path] == timer {
				delete(pending, path)
			}
			mu.Unlock()

			m.Invalidate(path)
			prims, err := m.Load(path)
			fn(path, prims, err)
		})
		pending[path] = timer
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsDocument(event.Name) {
				continue
			}

			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				m.log.Debug("changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))
				schedule(event.Name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				m.log.Debug("removed", zap.String("path", event.Name))
				m.Invalidate(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("watcher error", zap.Error(err))
		}
	}
}
