// Package watch observes the invoice data directory and triggers a refresh
// when CSV files change.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cohortlab/cohortd/internal/log"
)

// debounce absorbs bursts from tools that write files in several chunks.
const debounce = 500 * time.Millisecond

// Watcher triggers a callback when CSV files in a directory change. A rate
// limiter bounds how often the callback can fire regardless of event volume.
type Watcher struct {
	dir     string
	trigger func(context.Context)
	limiter *rate.Limiter
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// New builds a watcher over dir. minInterval is the minimum time between
// two trigger invocations.
func New(dir string, minInterval time.Duration, trigger func(context.Context)) *Watcher {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &Watcher{
		dir:     dir,
		trigger: trigger,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		logger:  log.WithComponent("watch"),
	}
}

// Start begins watching. The loop stops when ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch: add %s: %w", w.dir, err)
	}
	w.watcher = fw

	w.logger.Info().
		Str(log.FieldEvent, "watch.started").
		Str(log.FieldPath, w.dir).
		Msg("watching data directory")

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = w.watcher.Close()
			w.logger.Info().Str(log.FieldEvent, "watch.stopped").Msg("watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				w.fire(ctx)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Str(log.FieldEvent, "watch.error").Msg("watcher error")
		}
	}
}

// fire invokes the trigger unless the rate limiter says the last refresh was
// too recent.
func (w *Watcher) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !w.limiter.Allow() {
		w.logger.Debug().
			Str(log.FieldEvent, "watch.throttled").
			Msg("change detected but refresh throttled")
		return
	}
	w.logger.Info().Str(log.FieldEvent, "watch.trigger").Msg("data change detected")
	w.trigger(ctx)
}

// relevant reports whether the event concerns a CSV file being added,
// modified, or replaced.
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	return strings.EqualFold(filepath.Ext(event.Name), ".csv")
}
