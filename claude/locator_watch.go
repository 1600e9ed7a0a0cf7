package claude

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

const installDebounce = 200 * time.Millisecond

// WatchInstallDirs invalidates the cache when the binary appears in, or
// disappears from, one of the probed directories. onChange (optional) runs
// after each invalidation. The watch ends when ctx is cancelled.
func (l *Locator) WatchInstallDirs(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create install watcher: %w", err)
	}

	watched := 0
	seen := make(map[string]struct{})
	for _, candidate := range l.Candidates() {
		dir := filepath.Dir(candidate)
		if _, dup := seen[dir]; dup {
			continue
		}
		seen[dir] = struct{}{}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("cannot watch install dir")
			continue
		}
		watched++
	}

	log.Debug().Int("dirs", watched).Msg("watching claude install dirs")
	go l.watchLoop(ctx, watcher, onChange)
	return nil
}

func (l *Locator) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func()) {
	defer watcher.Close()

	debounceTimer := time.NewTimer(installDebounce)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pending := false

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != l.opts.Name && event.Name != l.opts.Override {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = true
			debounceTimer.Reset(installDebounce)

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			log.Info().Msg("claude install changed, re-probing on next use")
			l.Invalidate()
			if onChange != nil {
				onChange()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("install watcher error")

		case <-ctx.Done():
			return
		}
	}
}
