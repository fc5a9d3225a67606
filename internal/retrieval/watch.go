package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultWatchDebounce collapses bursts of file events into one rebuild.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watch calls rebuild whenever a markdown document or metadata.json under
// the knowledge base changes, at most once per debounce window. It blocks
// until ctx is cancelled. Rebuild errors are logged and watching continues.
func Watch(ctx context.Context, dir string, debounce time.Duration, rebuild func(context.Context) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	watched := 0
	for _, d := range []string{dir, filepath.Join(dir, "policies"), filepath.Join(dir, "faqs")} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			continue
		}
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watching %s: %w", d, err)
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("knowledge base %s: no directories to watch", dir)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !knowledgeFile(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("knowledge_watch_error")
		case <-fire:
			fire = nil
			if err := rebuild(ctx); err != nil {
				log.Error().Err(err).Str("dir", dir).Msg("index_rebuild_failed")
				continue
			}
			log.Info().Str("dir", dir).Msg("index_rebuilt")
		}
	}
}

func knowledgeFile(name string) bool {
	base := filepath.Base(name)
	return base == "metadata.json" || strings.EqualFold(filepath.Ext(base), ".md")
}
