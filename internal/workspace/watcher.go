// internal/workspace/watcher.go
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports working-directory changes, debounced into batches, so
// the CLI can re-render status while the user works.
type Watcher struct {
	root    string
	ignore  []string
	watcher *fsnotify.Watcher
	events  chan []string
	done    chan struct{}
	logger  *zap.Logger
}

// NewWatcher starts watching root and every non-ignored directory
// beneath it.
func NewWatcher(root string, extraIgnore []string, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:    root,
		ignore:  extraIgnore,
		watcher: fsw,
		events:  make(chan []string, 1),
		done:    make(chan struct{}),
		logger:  logger,
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if relPath != "." && ShouldIgnore(relPath, extraIgnore) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching directories: %w", err)
	}

	go w.loop()
	return w, nil
}

// Events delivers batches of changed relative paths.
func (w *Watcher) Events() <-chan []string {
	return w.events
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

// loop coalesces raw fsnotify events for a short window before
// delivering them, since editors tend to fire several per write.
func (w *Watcher) loop() {
	const settle = 200 * time.Millisecond

	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			relPath, err := filepath.Rel(w.root, event.Name)
			if err != nil || ShouldIgnore(relPath, w.ignore) {
				continue
			}

			// New directories need to be added to the watch set.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.logger.Warn("watching new directory",
							zap.String("path", relPath),
							zap.Error(err))
					}
					continue
				}
			}

			pending[filepath.ToSlash(relPath)] = true
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-fire:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for path := range pending {
				batch = append(batch, path)
			}
			pending = make(map[string]bool)
			fire = nil

			select {
			case w.events <- batch:
			case <-w.done:
				return
			}
		}
	}
}
