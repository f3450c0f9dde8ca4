package master

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchSequenceFile watches path for modification while workers are still
// running and logs a warning (never a failure) on change, since a worker's
// in-memory parsed sequence would otherwise silently diverge from what is
// on disk. Grounded on the teacher's internal/core config hot-reload use of
// the same fsnotify watcher.
func WatchSequenceFile(path string, logger *slog.Logger, done <-chan struct{}) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("sequence file watch disabled", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		logger.Warn("sequence file watch disabled", "path", path, "error", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				logger.Warn("entry sequence file changed while workers are running; in-memory copy may now diverge", "path", path, "op", event.Op.String())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("sequence file watch error", "error", err)
		}
	}
}
