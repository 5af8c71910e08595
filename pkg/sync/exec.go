package sync

import (
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mtpsync/mtpsync/pkg/checksum"
	"github.com/mtpsync/mtpsync/pkg/errors"
	"github.com/mtpsync/mtpsync/pkg/mtp"
)

// Execute applies the plan at planPath. When planPath is empty, the most
// recent persisted plan is used, and if there is none, a fresh verify runs
// first.
//
// Execution is two strict phases: every directory entry before any file
// entry, so a file's parent always exists before its upload is attempted.
// Per-entry failures never abort the run. If any entry failed, the failures
// are persisted as a retry plan and its path is returned along with false.
func (engine *Engine) Execute(planPath string) (bool, string, error) {
	if planPath == "" {
		latest, ok, err := LatestPlan(engine.fs, engine.opts.DefaultPlanPath, engine.opts.RetryDir)
		if err != nil {
			return false, "", err
		}
		if ok {
			planPath = latest
		} else {
			log.Info("No execution plan found. Generating a new plan.")
			planPath, err = engine.Verify("")
			if err != nil {
				return false, "", err
			}
		}
	}

	plan, err := LoadPlan(engine.fs, planPath)
	if err != nil {
		return false, "", errors.WithContext(err, "load plan")
	}

	failed := NewPlan()

	// Phase 1: create every directory. Ancestors are created by the
	// segment walk in ensureFolder, independent of plan order.
	for _, entry := range plan.Entries() {
		if entry.Kind != KindDir {
			continue
		}
		if err := engine.ensureFolder(entry.Path); err != nil {
			log.WithError(err).WithField("path", entry.Path).Error(
				"Failed to create directory")
			failed.Add(entry.Path, entry.Kind)
		}
	}

	// Phase 2: upload every file.
	for _, entry := range plan.Entries() {
		if entry.Kind != KindFile {
			continue
		}
		if err := engine.syncFile(entry.Path); err != nil {
			log.WithError(err).WithField("path", entry.Path).Error(
				"Failed to sync file")
			failed.Add(entry.Path, entry.Kind)
		}
	}

	if failed.Len() > 0 {
		retryPath, err := SaveRetryPlan(engine.fs, engine.opts.RetryDir, failed)
		if err != nil {
			return false, "", errors.WithContext(err, "save retry plan")
		}
		log.WithFields(log.Fields{
			"failed": failed.Len(),
			"plan":   retryPath,
		}).Warn("Sync finished with failures. Wrote retry plan.")
		return false, retryPath, nil
	}
	return true, "", nil
}

// ensureFolder walks relPath segment by segment from the destination root,
// creating every folder that isn't in the index yet and recording the new
// nodes in both index views. Re-running on an existing path is a no-op
// success.
func (engine *Engine) ensureFolder(relPath string) error {
	if relPath != "" && !strings.HasSuffix(relPath, "/") {
		relPath += "/"
	}

	fullPath := engine.destFullPath(relPath)
	if _, ok := engine.index.Lookup(fullPath); ok {
		return nil
	}

	currentPath := engine.opts.DestPath
	currentID := mtp.RootID
	for _, segment := range strings.Split(relPath, "/") {
		if segment == "" {
			continue
		}

		nextPath := path.Join(currentPath, segment)
		if node, ok := engine.index.Lookup(nextPath); ok {
			if _, isFolder := node.(*mtp.FolderNode); !isFolder {
				return errors.MissingParentError{Path: nextPath}
			}
			currentPath = nextPath
			currentID = node.NodeID()
			continue
		}

		var newID uint32
		err := engine.opts.Retry.Do("mkdir", func() error {
			var err error
			newID, err = engine.client.CreateFolder(currentID, segment, engine.opts.StorageID)
			return err
		})
		if err != nil {
			return errors.WithContext(err, "create "+nextPath)
		}

		folder := engine.index.AddFolder(nextPath, newID, currentID)
		if parent, ok := engine.index.Folder(currentPath); ok {
			parent.Children[segment] = folder
		}

		currentPath = nextPath
		currentID = newID
	}
	return nil
}

// syncFile uploads the file at relPath into its destination folder, creating
// the folder first if needed. When checksum verification is on, the uploaded
// file is downloaded back and compared; a mismatch fails the entry, and the
// uploaded copy is left on the device.
func (engine *Engine) syncFile(relPath string) error {
	sourcePath := engine.sourcePath(relPath)
	if exists, err := afero.Exists(engine.fs, sourcePath); err != nil {
		return errors.WithContext(err, "stat source")
	} else if !exists {
		return errors.FileNotFound{Path: sourcePath}
	}

	parentRel := path.Dir(relPath)
	if parentRel == "." {
		parentRel = ""
	}
	if err := engine.ensureFolder(parentRel); err != nil {
		return errors.WithContext(err, "ensure parent")
	}

	parentPath := engine.destFullPath(parentRel)
	parent, ok := engine.index.Folder(parentPath)
	if !ok {
		return errors.MissingParentError{Path: parentPath}
	}

	filename := path.Base(relPath)
	var newID uint32
	err := engine.opts.Retry.Do("upload", func() error {
		var err error
		newID, err = engine.client.Upload(sourcePath, parent.ID, filename)
		return err
	})
	if err != nil {
		return errors.WithContext(err, "upload")
	}

	if engine.opts.UseChecksum {
		if err := engine.verifyUpload(relPath, sourcePath, newID); err != nil {
			return err
		}
	}

	fi, err := engine.fs.Stat(sourcePath)
	if err != nil {
		return errors.WithContext(err, "stat source")
	}

	fullPath := engine.destFullPath(relPath)
	engine.index.AddFile(fullPath, filename, &mtp.FileNode{ID: newID, Size: fi.Size()}, parent)
	return nil
}

// verifyUpload downloads the just-uploaded file and compares digests.
func (engine *Engine) verifyUpload(relPath, sourcePath string, fileID uint32) error {
	scratchPath, err := engine.download(fileID)
	if err != nil {
		return errors.WithContext(err, "download for verification")
	}
	defer engine.removeScratch(scratchPath)

	localDigest, err := checksum.File(engine.fs, sourcePath, engine.opts.Algorithm)
	if err != nil {
		return errors.WithContext(err, "digest local file")
	}

	remoteDigest, err := checksum.File(engine.fs, scratchPath, engine.opts.Algorithm)
	if err != nil {
		return errors.WithContext(err, "digest uploaded file")
	}

	if localDigest != remoteDigest {
		return errors.ChecksumMismatchError{
			Path:   relPath,
			Local:  localDigest,
			Remote: remoteDigest,
		}
	}
	return nil
}
