package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch re-reads the config file whenever it changes and passes the result
// to apply. Files that fail to parse are logged and skipped. Only settings
// that are safe to change at runtime should be taken from the reloaded value.
func Watch(ctx context.Context, path string, apply func(Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	log.Info().Str("config_file", absPath).Msg("Watching config file")
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != absPath || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				cfg := Defaults()
				if err := decodeFile(absPath, &cfg); err != nil {
					log.Warn().Err(err).Msg("Ignoring config change")
					continue
				}
				cfg.ConfigFile = path
				log.Info().Str("config_file", absPath).Msg("Config file reloaded")
				apply(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("Config watcher error")
			}
		}
	}()
	return nil
}
