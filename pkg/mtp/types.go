// Package mtp defines the model of an MTP device's file tree, and the
// interface the sync engine uses to talk to a device. Devices address
// folders and files by opaque numeric object ids rather than paths, so the
// tree is kept in a dual index: one view keyed by normalized path, one keyed
// by object id.
package mtp

// RootID is the object id of a storage's root folder.
const RootID uint32 = 0

// A Node is an object in the device's tree: either a file or a folder.
type Node interface {
	// NodeID returns the device object id. It is zero for nodes that only
	// exist locally so far.
	NodeID() uint32
}

// FileNode represents a file on the device.
type FileNode struct {
	ID   uint32
	Size int64
}

func (f *FileNode) NodeID() uint32 {
	return f.ID
}

// FolderNode represents a folder on the device. A folder exclusively owns
// its immediate children.
type FolderNode struct {
	ID       uint32
	Children map[string]Node
}

// NewFolderNode returns an empty folder with the given id.
func NewFolderNode(id uint32) *FolderNode {
	return &FolderNode{ID: id, Children: map[string]Node{}}
}

func (f *FolderNode) NodeID() uint32 {
	return f.ID
}
