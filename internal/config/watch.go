package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openlact/lactd/internal/log"
)

// selfWriteIgnoreWindow is how long after Save an external-edit signal
// is suppressed, so the watcher's own atomic rename doesn't trigger a
// spurious reload (spec.md §5 Timeouts, §9 open questions).
const selfWriteIgnoreWindow = 1000 * time.Millisecond

// debounceQuiescence and debounceCeiling are the two-timer debounce
// bounds fsnotify events are folded through before calling onChange
// (mirrors the profile watcher's debounce in spec.md §4.6, reused here
// since editors commonly emit several events per save: write, chmod,
// rename-into-place).
const (
	debounceQuiescence = 50 * time.Millisecond
	debounceCeiling    = 500 * time.Millisecond
)

// Watch starts a filesystem watcher on the store's config file and
// calls onChange whenever an external edit is observed (debounced, and
// ignoring the daemon's own recent Save). It blocks until ctx is
// cancelled.
func (s *Store) Watch(ctx context.Context, lastSavedAt func() time.Time, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var (
		firstEvent time.Time
		quiesce    *time.Timer
		ceiling    *time.Timer
	)
	stopTimers := func() {
		if quiesce != nil {
			quiesce.Stop()
		}
		if ceiling != nil {
			ceiling.Stop()
		}
	}
	defer stopTimers()

	fire := make(chan struct{}, 1)
	requestFire := func() {
		select {
		case fire <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if time.Since(lastSavedAt()) < selfWriteIgnoreWindow {
				log.Logger.Debugw("ignoring config event within self-write window", "event", ev.Op.String())
				continue
			}

			if firstEvent.IsZero() {
				firstEvent = time.Now()
				ceiling = time.AfterFunc(debounceCeiling, requestFire)
			}
			if quiesce != nil {
				quiesce.Stop()
			}
			quiesce = time.AfterFunc(debounceQuiescence, requestFire)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Logger.Warnw("config watcher error", "error", err)

		case <-fire:
			stopTimers()
			firstEvent = time.Time{}
			onChange()
		}
	}
}
