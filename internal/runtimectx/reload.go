package runtimectx

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// WatchSchemaDir watches the filesystem-fallback sql/types directories for
// changes during development and logs a notice when a bundled resource's
// on-disk sibling is edited — mirroring the teacher's fsnotify-driven
// config hot-reload. The kernel never reloads a schema into a live
// process automatically; this only surfaces that a restart would pick up
// new bundled content, which is why it logs rather than mutating state.
func WatchSchemaDir(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	root := sourceRoot()
	for _, dir := range []string{"sql", "types"} {
		if err := watcher.Add(root + "/" + dir); err != nil {
			continue
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
					log.Printf("runtimectx: schema resource changed on disk, restart to reload: %s", event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("runtimectx: schema watch error: %v", err)
			}
		}
	}()

	return nil
}
