package sync

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/mtpsync/mtpsync/pkg/errors"
)

// Scan enumerates the tree under root into a manifest: a flat, relative-path
// keyed plan with an entry for every descendant directory (suffixed with
// "/") and every file. Paths use forward slashes regardless of the host
// separator, and the source root itself is not emitted.
func Scan(fs afero.Fs, root string) (*Plan, error) {
	if exists, err := afero.DirExists(fs, root); err != nil {
		return nil, errors.WithContext(err, "stat source")
	} else if !exists {
		return nil, errors.FileNotFound{Path: root}
	}

	manifest := NewPlan()
	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return errors.WithContext(err, "normalize path")
		}

		relPath := strings.TrimPrefix(filepath.ToSlash(rel), "./")
		if fi.IsDir() {
			manifest.Add(relPath+"/", KindDir)
		} else {
			manifest.Add(relPath, KindFile)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithContext(err, "walk source")
	}
	return manifest, nil
}
