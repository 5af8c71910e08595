package sync

import (
	"path"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mtpsync/mtpsync/pkg/checksum"
	"github.com/mtpsync/mtpsync/pkg/errors"
	"github.com/mtpsync/mtpsync/pkg/mtp"
	"github.com/mtpsync/mtpsync/pkg/retry"
)

// Options configures an Engine.
type Options struct {
	// SourceDir is the local directory being pushed.
	SourceDir string

	// DestPath is the destination path on the device, e.g. "/DCIM".
	DestPath string

	// StorageID is the device storage all folders are created on.
	StorageID uint32

	// UseChecksum selects content comparison by digest. When false, files
	// are compared by size only, and uploads aren't verified.
	UseChecksum bool

	// Algorithm is the digest used when UseChecksum is set.
	Algorithm checksum.Algorithm

	// ScratchDir receives files downloaded from the device for comparison.
	ScratchDir string

	// DefaultPlanPath and RetryDir locate the plan store.
	DefaultPlanPath string
	RetryDir        string

	// Retry wraps every device download, upload, and folder creation.
	Retry retry.Policy
}

// Engine reconciles a local directory tree against a device and applies the
// differences. It owns the remote index for the duration of a run: no one
// else may mutate the index while Verify or Execute is in flight.
type Engine struct {
	fs     afero.Fs
	client mtp.Client
	index  *mtp.RemoteIndex
	opts   Options
}

// New creates an engine for one source/destination pair. The index must have
// been built for the same storage and destination base path.
func New(fs afero.Fs, client mtp.Client, index *mtp.RemoteIndex, opts Options) *Engine {
	if !strings.HasPrefix(opts.DestPath, "/") {
		opts.DestPath = "/" + opts.DestPath
	}
	opts.DestPath = path.Clean(opts.DestPath)
	if opts.Algorithm == "" {
		opts.Algorithm = checksum.SHA256
	}
	return &Engine{fs: fs, client: client, index: index, opts: opts}
}

// Verify diffs the source tree against the device and writes the resulting
// execution plan to planPath (the default plan location when empty). Entries
// are emitted in scan order: one for every path missing from the device, and
// one for every file whose content doesn't match. Matching files and
// existing directories produce no entry, so a verify after a successful
// execute yields an empty plan.
func (engine *Engine) Verify(planPath string) (string, error) {
	if planPath == "" {
		planPath = engine.opts.DefaultPlanPath
	}

	manifest, err := Scan(engine.fs, engine.opts.SourceDir)
	if err != nil {
		return "", errors.WithContext(err, "scan source")
	}

	plan := NewPlan()
	for _, entry := range manifest.Entries() {
		destPath := engine.destFullPath(entry.Path)

		node, exists := engine.index.Lookup(destPath)
		if !exists {
			plan.Add(entry.Path, entry.Kind)
			continue
		}

		// Directories are never diffed by content.
		if entry.Kind == KindFile && !engine.compareFile(entry.Path, node) {
			plan.Add(entry.Path, KindFile)
		}
	}

	if err := SavePlan(engine.fs, planPath, plan); err != nil {
		return "", err
	}

	log.WithFields(log.Fields{
		"entries": plan.Len(),
		"plan":    planPath,
	}).Info("Wrote execution plan")
	return planPath, nil
}

// compareFile reports whether the local file at relPath matches the indexed
// device node. Comparison errors are logged and treated as "not equal", so a
// flaky read schedules a re-sync instead of failing the verify.
func (engine *Engine) compareFile(relPath string, node mtp.Node) bool {
	fileNode, ok := node.(*mtp.FileNode)
	if !ok {
		return false
	}

	sourcePath := engine.sourcePath(relPath)
	if !engine.opts.UseChecksum {
		fi, err := engine.fs.Stat(sourcePath)
		if err != nil {
			log.WithError(err).WithField("path", relPath).Error(
				"Failed to stat local file for comparison")
			return false
		}
		return fi.Size() == fileNode.Size
	}

	scratchPath, err := engine.download(fileNode.ID)
	if err != nil {
		log.WithError(err).WithField("path", relPath).Error(
			"Failed to download file for comparison")
		return false
	}
	// The scratch file is deleted on every exit path.
	defer engine.removeScratch(scratchPath)

	localDigest, err := checksum.File(engine.fs, sourcePath, engine.opts.Algorithm)
	if err != nil {
		log.WithError(err).WithField("path", relPath).Error(
			"Failed to digest local file")
		return false
	}

	remoteDigest, err := checksum.File(engine.fs, scratchPath, engine.opts.Algorithm)
	if err != nil {
		log.WithError(err).WithField("path", relPath).Error(
			"Failed to digest downloaded file")
		return false
	}

	return localDigest == remoteDigest
}

// download fetches a device file into the scratch directory, retrying
// transient failures.
func (engine *Engine) download(fileID uint32) (string, error) {
	var scratchPath string
	err := engine.opts.Retry.Do("download", func() error {
		var err error
		scratchPath, err = engine.client.Download(fileID, "")
		return err
	})
	return scratchPath, err
}

func (engine *Engine) removeScratch(path string) {
	if err := engine.fs.Remove(path); err != nil {
		log.WithError(err).WithField("path", path).Warn(
			"Failed to clean up scratch file")
	}
}

// destFullPath maps a manifest path onto the device. Trailing slashes on
// directory entries are dropped: the index keys folders by bare path.
func (engine *Engine) destFullPath(relPath string) string {
	return path.Clean(engine.opts.DestPath + "/" + relPath)
}

func (engine *Engine) sourcePath(relPath string) string {
	return filepath.Join(engine.opts.SourceDir, filepath.FromSlash(relPath))
}
