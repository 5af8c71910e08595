// Package fswatch watches a source tree for changes, for re-running the sync
// in watch mode.
package fswatch

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mtpsync/mtpsync/pkg/errors"
)

var fs = afero.NewOsFs()

// Watch watches root and all of its subdirectories. It sends an event on the
// returned channel whenever anything under root changes. Because fsnotify
// doesn't watch directories recursively, every subdirectory is added to the
// watcher individually.
func Watch(root string) (chan struct{}, error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", root)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	paths, err := subdirectories(root)
	if err != nil {
		return nil, errors.WithContext(err, "get subdirs")
	}

	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handles for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}
			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}
	return combineUpdates(watcher.Events), nil
}

func combineUpdates(updates <-chan fsnotify.Event) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		for range updates {
			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

func subdirectories(root string) (paths []string, err error) {
	paths = append(paths, root)
	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path != root && fi.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
