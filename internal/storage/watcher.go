package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change to a document
// file before the callback fires.
const DefaultDebounce = 200 * time.Millisecond

// ChangeCallback is called with the id of a document whose file was created
// or rewritten on disk.
type ChangeCallback func(id string)

// Watch starts an fsnotify watcher on the store directory and reports
// document changes until ctx is cancelled. Bursts of events for the same
// id (an editor saving in several writes, or tmp → rename) collapse into a
// single callback. Removals are logged and otherwise ignored: the session
// keeps its in-memory document and writes it back on the next change.
func Watch(ctx context.Context, store *FS, logger *slog.Logger, debounce time.Duration, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(store.Root()); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger.Info("watcher: started", slog.String("root", store.Root()))

	pending := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for id := range pending {
				delete(pending, id)
				logger.Debug("watcher: changed", slog.String("id", id))
				if cb != nil {
					cb(id)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			id, isDoc := store.IDFromPath(ev.Name)
			if !isDoc {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[id] = struct{}{}
				scheduleFlush()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				logger.Warn("watcher: document file removed", slog.String("id", id))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
