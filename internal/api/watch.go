package api

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/galsynth/internal/galaxy"
)

// watch invalidates the source index and notifies listeners when a source
// directory or one of its artifacts changes.
func (s *Server) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := os.MkdirAll(s.cfg.DataDir, 0o750); err != nil {
		return err
	}
	if err := watcher.Add(s.cfg.DataDir); err != nil {
		s.cfg.Logger.Error("failed to watch data directory", slog.Any("error", err))
		return nil
	}
	entries, _ := os.ReadDir(s.cfg.DataDir)
	for _, e := range entries {
		if e.IsDir() {
			_ = watcher.Add(filepath.Join(s.cfg.DataDir, e.Name()))
		}
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !s.relevant(watcher, event) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				s.cfg.Logger.Debug("data directory changed", slog.String("path", event.Name))
				s.index.invalidate()
				s.notifier.Broadcast()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.cfg.Logger.Error("watcher error", slog.Any("error", err))
		}
	}
}

// relevant reports whether event touches a source directory or a servable
// artifact. New source directories are added to the watcher.
func (s *Server) relevant(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	if filepath.Dir(event.Name) == filepath.Clean(s.cfg.DataDir) {
		if event.Has(fsnotify.Create) {
			if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
				_ = watcher.Add(event.Name)
			}
		}
		return event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	}
	return slices.Contains(galaxy.ArtifactNames, filepath.Base(event.Name)) &&
		(event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename))
}
