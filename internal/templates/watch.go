package templates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DebounceInterval coalesces bursts of writes (editors save in several steps).
var DebounceInterval = 250 * time.Millisecond

// Watch blocks until ctx is done, invalidating the List cache and calling
// onChange once per burst of .txt changes in the directory. onChange may be
// nil.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.logger.Debug("watching templates", zap.String("dir", s.dir))

	timer := time.NewTimer(DebounceInterval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			s.logger.Debug("template changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			timer.Reset(DebounceInterval)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("template watcher error", zap.Error(err))

		case <-timer.C:
			s.invalidate()
			if onChange != nil {
				onChange()
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !strings.HasSuffix(strings.ToLower(ev.Name), Ext) {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
