package mtp

// DeviceInfo describes a detected device.
type DeviceInfo struct {
	Vendor  string
	Product string
	Serial  string

	// MountPath is the host path the device is exposed through. It is only
	// meaningful for mount-based transports.
	MountPath string
}

// StorageInfo describes one storage on a device. Phones typically expose
// internal storage and an optional SD card as separate storages.
type StorageInfo struct {
	ID          uint32
	Description string
	Capacity    uint64
	FreeSpace   uint64
}

// Client is the device collaborator consumed by the sync engine. The engine
// never talks to the transport directly; every folder and file operation
// goes through this interface.
//
// Download, Upload, and CreateFolder can fail transiently and should be
// wrapped with a retry policy by the caller.
type Client interface {
	// DetectDevices lists the devices reachable by this transport.
	DetectDevices() ([]DeviceInfo, error)

	// OpenDevice acquires a handle on the given device.
	OpenDevice(info DeviceInfo) error

	// ListStorages lists the storages of the open device.
	ListStorages() ([]StorageInfo, error)

	// BuildIndex walks the given storage under basePath and returns the
	// dual path/id index over the tree.
	BuildIndex(storageID uint32, basePath string) (*RemoteIndex, error)

	// Download copies the file with the given id off the device. When
	// destPath is empty, the transport picks a scratch location. The path of
	// the downloaded file is returned.
	Download(fileID uint32, destPath string) (string, error)

	// Upload copies the local file at sourcePath into the folder with the
	// given id, and returns the new file's object id. When filename is
	// empty, the source file's name is used.
	Upload(sourcePath string, parentID uint32, filename string) (uint32, error)

	// CreateFolder creates a folder and returns its object id.
	CreateFolder(parentID uint32, name string, storageID uint32) (uint32, error)

	// Close releases the device handle.
	Close() error
}
