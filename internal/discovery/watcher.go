package discovery

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// debounceWindow coalesces bursts of filesystem events (editors typically
// write, chmod and rename in quick succession) into a single rescan.
const debounceWindow = 500 * time.Millisecond

// Watcher observes the config source directories and invokes a callback after
// any of them change, debounced.
type Watcher struct {
	logger  hclog.Logger
	watcher *fsnotify.Watcher
	onDirty func()
}

// NewWatcher creates a watcher over the given directories. Directories that
// cannot be watched are skipped with a warning; the watcher is still usable.
func NewWatcher(logger hclog.Logger, dirs []string, onDirty func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		logger:  logger.Named("watch"),
		watcher: fsw,
		onDirty: onDirty,
	}

	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("cannot watch config directory", "dir", dir, "error", err)
			continue
		}
		w.logger.Debug("watching config directory", "dir", dir)
	}

	return w, nil
}

// Run consumes filesystem events until the context is canceled. Each burst of
// events triggers onDirty once after the debounce window passes quiet.
func (w *Watcher) Run(ctx context.Context) {
	defer func() {
		_ = w.watcher.Close()
	}()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("config change observed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.onDirty()
		}
	}
}
