package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit for one save.
const reloadDebounce = 100 * time.Millisecond

// WatchKernels reloads every kernel of the context whenever a file in dir
// changes, until ctx is cancelled. dir should be the directory backing the
// context's source filesystem. Reload failures are logged and the previous
// programs stay active, as with ReloadKernels.
func (c *Context) WatchKernels(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("compute: create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("compute: watch %s: %w", dir, err)
	}
	slogger().Info("compute: watching kernel sources", "dir", dir)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			slogger().Debug("compute: kernel source changed", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slogger().Warn("compute: watcher error", "err", err)
		case <-pending:
			pending = nil
			if c.closed.Load() {
				return ErrClosed
			}
			c.ReloadKernels()
		}
	}
}
