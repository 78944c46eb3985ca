package dataset

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher calls onChange after JSON files under a directory tree settle.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func()
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
}

func NewWatcher(dir string, debounce time.Duration, onChange func(), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		watcher:  fw,
		logger:   logger.Named("watcher"),
	}
	if err := w.addTree(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Run blocks until ctx is cancelled or the underlying watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
					}
					continue
				}
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".json") || event.Has(fsnotify.Chmod) {
				continue
			}
			w.logger.Debug("dataset file changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			w.logger.Info("dataset directory changed, reloading", zap.String("dir", w.dir))
			w.onChange()
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}
