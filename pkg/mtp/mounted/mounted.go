// Package mounted implements the mtp.Client interface on top of a device
// that's exposed through the host filesystem, such as the FUSE mounts gvfs
// creates under $XDG_RUNTIME_DIR/gvfs for MTP devices. The device's
// storages appear as the top-level directories of the mount, and object ids
// are assigned by this transport while indexing.
//
// A direct libmtp transport would implement the same interface; syncing
// through the mount keeps the engine identical either way.
package mounted

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mtpsync/mtpsync/pkg/errors"
	"github.com/mtpsync/mtpsync/pkg/mtp"
)

const mtpMountPrefix = "mtp:host="

// Client syncs to a device through its host mount point.
type Client struct {
	fs         afero.Fs
	scratchDir string

	mountPath string
	storages  []mtp.StorageInfo

	// storageRoots maps storage ids to their host directories.
	storageRoots map[uint32]string

	// objectPaths maps assigned object ids to host paths. The executor is
	// the only writer during a run, so no lock is needed.
	objectPaths map[uint32]string
	nextID      uint32

	// basePath is the device-side path RootID resolves to, set by
	// BuildIndex.
	basePath  string
	storageID uint32
}

// New returns a client that reads and writes the device through the given
// filesystem.
func New(fs afero.Fs, scratchDir string) *Client {
	return &Client{
		fs:           fs,
		scratchDir:   scratchDir,
		storageRoots: map[uint32]string{},
		objectPaths:  map[uint32]string{},
		nextID:       1,
	}
}

// DetectDevices lists the MTP devices gvfs has mounted.
func (c *Client) DetectDevices() ([]mtp.DeviceInfo, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = fmt.Sprintf("/run/user/%d", os.Getuid())
	}

	gvfsDir := filepath.Join(runtimeDir, "gvfs")
	entries, err := afero.ReadDir(c.fs, gvfsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithContext(err, "read gvfs mounts")
	}

	var devices []mtp.DeviceInfo
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), mtpMountPrefix) {
			continue
		}

		host := strings.TrimPrefix(entry.Name(), mtpMountPrefix)
		devices = append(devices, mtp.DeviceInfo{
			Product:   strings.ReplaceAll(host, "_", " "),
			Serial:    host,
			MountPath: filepath.Join(gvfsDir, entry.Name()),
		})
	}
	return devices, nil
}

// OpenDevice attaches the client to the given mount.
func (c *Client) OpenDevice(info mtp.DeviceInfo) error {
	if info.MountPath == "" {
		return errors.New("device has no mount path")
	}

	fi, err := c.fs.Stat(info.MountPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileNotFound{Path: info.MountPath}
		}
		return errors.WithContext(err, "stat mount")
	}
	if !fi.IsDir() {
		return errors.NewFriendlyError("%q is not a directory", info.MountPath)
	}

	c.mountPath = info.MountPath
	return nil
}

// ListStorages reports the device's storages: the top-level directories of
// the mount.
func (c *Client) ListStorages() ([]mtp.StorageInfo, error) {
	if c.mountPath == "" {
		return nil, errors.New("no device open")
	}

	entries, err := afero.ReadDir(c.fs, c.mountPath)
	if err != nil {
		return nil, errors.WithContext(err, "read storages")
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	c.storages = nil
	c.storageRoots = map[uint32]string{}
	var id uint32 = 1
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		root := filepath.Join(c.mountPath, entry.Name())
		capacity, free, err := statfs(root)
		if err != nil {
			log.WithError(err).WithField("storage", entry.Name()).Debug(
				"Failed to read storage capacity")
		}

		c.storages = append(c.storages, mtp.StorageInfo{
			ID:          id,
			Description: entry.Name(),
			Capacity:    capacity,
			FreeSpace:   free,
		})
		c.storageRoots[id] = root
		id++
	}
	return c.storages, nil
}

// BuildIndex walks the storage under basePath and assigns object ids as it
// goes. The folder at basePath itself gets mtp.RootID, and is created if the
// device doesn't have it yet.
func (c *Client) BuildIndex(storageID uint32, basePath string) (*mtp.RemoteIndex, error) {
	root, ok := c.storageRoots[storageID]
	if !ok {
		return nil, fmt.Errorf("unknown storage id %d", storageID)
	}

	c.basePath = normalizeBase(basePath)
	c.storageID = storageID
	c.objectPaths = map[uint32]string{}
	c.nextID = 1

	baseHostPath := filepath.Join(root, filepath.FromSlash(c.basePath))
	if err := c.fs.MkdirAll(baseHostPath, 0755); err != nil {
		return nil, errors.WithContext(err, "create base path")
	}
	c.objectPaths[mtp.RootID] = baseHostPath

	index := mtp.NewRemoteIndex()
	index.AddFolder(c.basePath, mtp.RootID, mtp.RootID)
	err := afero.Walk(c.fs, baseHostPath, func(hostPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if hostPath == baseHostPath {
			return nil
		}

		rel, err := filepath.Rel(baseHostPath, hostPath)
		if err != nil {
			return errors.WithContext(err, "normalize path")
		}

		devicePath := path.Join(c.basePath, filepath.ToSlash(rel))
		parent, parentID := c.parentOf(index, devicePath)

		id := c.nextID
		c.nextID++
		c.objectPaths[id] = hostPath

		if fi.IsDir() {
			folder := index.AddFolder(devicePath, id, parentID)
			if parent != nil {
				parent.Children[fi.Name()] = folder
			}
			return nil
		}

		file := &mtp.FileNode{ID: id, Size: fi.Size()}
		if parent != nil {
			index.AddFile(devicePath, fi.Name(), file, parent)
		} else {
			index.Paths[devicePath] = file
			index.IDs[id] = mtp.IndexEntry{Node: file, FullPath: devicePath, ParentID: parentID}
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithContext(err, "walk storage")
	}
	return index, nil
}

// parentOf resolves the already-indexed parent folder of devicePath. Walk
// visits parents before children, so the parent is always indexed by the
// time its children are.
func (c *Client) parentOf(index *mtp.RemoteIndex, devicePath string) (*mtp.FolderNode, uint32) {
	if folder, ok := index.Folder(path.Dir(devicePath)); ok {
		return folder, folder.ID
	}
	return nil, mtp.RootID
}

// Download copies a file off the device. When destPath is empty, the file
// lands in the scratch directory under its own name.
func (c *Client) Download(fileID uint32, destPath string) (string, error) {
	hostPath, ok := c.objectPaths[fileID]
	if !ok {
		return "", fmt.Errorf("unknown object id %d", fileID)
	}

	if destPath == "" {
		if err := c.fs.MkdirAll(c.scratchDir, 0755); err != nil {
			return "", errors.WithContext(err, "create scratch dir")
		}
		destPath = filepath.Join(c.scratchDir, filepath.Base(hostPath))
	}

	if err := c.copyFile(hostPath, destPath); err != nil {
		return "", errors.DeviceIOError{Op: "download", Err: err}
	}
	return destPath, nil
}

// Upload copies a local file into the folder with the given id.
func (c *Client) Upload(sourcePath string, parentID uint32, filename string) (uint32, error) {
	parentHostPath, ok := c.objectPaths[parentID]
	if !ok {
		return 0, fmt.Errorf("unknown parent id %d", parentID)
	}

	if _, err := c.fs.Stat(sourcePath); err != nil {
		if os.IsNotExist(err) {
			return 0, errors.FileNotFound{Path: sourcePath}
		}
		return 0, errors.WithContext(err, "stat source")
	}

	if filename == "" {
		filename = filepath.Base(sourcePath)
	}

	destPath := filepath.Join(parentHostPath, filename)
	if err := c.copyFile(sourcePath, destPath); err != nil {
		return 0, errors.DeviceIOError{Op: "upload", Err: err}
	}

	id := c.nextID
	c.nextID++
	c.objectPaths[id] = destPath
	return id, nil
}

// CreateFolder creates a folder on the device and returns its object id.
func (c *Client) CreateFolder(parentID uint32, name string, storageID uint32) (uint32, error) {
	parentHostPath, ok := c.objectPaths[parentID]
	if !ok {
		return 0, fmt.Errorf("unknown parent id %d", parentID)
	}

	hostPath := filepath.Join(parentHostPath, name)
	if err := c.fs.Mkdir(hostPath, 0755); err != nil && !os.IsExist(err) {
		return 0, errors.DeviceIOError{Op: "mkdir", Err: err}
	}

	id := c.nextID
	c.nextID++
	c.objectPaths[id] = hostPath
	return id, nil
}

// Close releases the client. The mount itself is owned by gvfs, so there's
// no handle to drop.
func (c *Client) Close() error {
	c.mountPath = ""
	return nil
}

func (c *Client) copyFile(srcPath, destPath string) error {
	src, err := c.fs.Open(srcPath)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer src.Close()

	dest, err := c.fs.Create(destPath)
	if err != nil {
		return errors.WithContext(err, "create destination")
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		return errors.WithContext(err, "copy")
	}
	return dest.Close()
}

func normalizeBase(basePath string) string {
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return path.Clean(basePath)
}
