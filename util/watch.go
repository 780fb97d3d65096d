package util

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/deemkeen/fedcore/logging"
	"github.com/fsnotify/fsnotify"
)

// WatchConfig reloads the config file whenever it changes and hands the new
// config to onChange. Editors often replace the file, so the parent
// directory is watched rather than the file itself.
func WatchConfig(ctx context.Context, path string, onChange func(*AppConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	log := logging.Component("config")

	go func() {
		defer watcher.Close()

		// coalesce bursts of write events into one reload
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					debounce = time.After(200 * time.Millisecond)
				}
			case <-debounce:
				debounce = nil
				conf, err := ReadConfFile(abs)
				if err != nil {
					log.Warnf("reload of %s failed: %v", abs, err)
					continue
				}
				onChange(conf)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("watcher error: %v", err)
			}
		}
	}()

	return nil
}
