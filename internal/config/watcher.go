package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// watchDebounce coalesces the burst of events editors emit on save.
const watchDebounce = 200 * time.Millisecond

// Watch reloads the config file whenever it changes and installs the new
// snapshot in the store, invoking onReload with each successfully loaded
// config. It watches the containing directory so atomic rename-on-save keeps
// working. Watch blocks until ctx ends.
func Watch(ctx context.Context, path string, store *Store, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if errAdd := watcher.Add(dir); errAdd != nil {
		return errAdd
	}

	target := filepath.Clean(path)
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(watchDebounce)
		case errWatch, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("config watcher: %v", errWatch)
		case <-pending:
			pending = nil
			cfg, errLoad := LoadConfig(path)
			if errLoad != nil {
				log.Warnf("config reload skipped: %v", errLoad)
				continue
			}
			store.Swap(cfg)
			log.Infof("config reloaded from %s", path)
			if onReload != nil {
				onReload(cfg)
			}
		}
	}
}
