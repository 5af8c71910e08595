package mtp

// IndexEntry is the id-keyed view of a node. ParentID is a lookup key into
// the index, never an owning reference, so releasing the underlying device
// handle can't leave dangling pointers in the tree.
type IndexEntry struct {
	Node     Node
	FullPath string
	ParentID uint32
}

// RemoteIndex holds two views over the device tree under a base path:
// Paths maps normalized full paths to nodes, and IDs maps object ids to
// entries with parent back-references. Every id in IDs is reachable from
// some path in Paths.
//
// The index is built once by the device client, and from then on has a
// single writer: the executor that mutates it as it creates folders and
// uploads files.
type RemoteIndex struct {
	Paths map[string]Node
	IDs   map[uint32]IndexEntry
}

// NewRemoteIndex returns an empty index.
func NewRemoteIndex() *RemoteIndex {
	return &RemoteIndex{
		Paths: map[string]Node{},
		IDs:   map[uint32]IndexEntry{},
	}
}

// Lookup returns the node at the given normalized path.
func (index *RemoteIndex) Lookup(fullPath string) (Node, bool) {
	node, ok := index.Paths[fullPath]
	return node, ok
}

// Folder returns the folder node at the given path, or false if the path is
// absent or is a file.
func (index *RemoteIndex) Folder(fullPath string) (*FolderNode, bool) {
	node, ok := index.Paths[fullPath]
	if !ok {
		return nil, false
	}
	folder, ok := node.(*FolderNode)
	return folder, ok
}

// AddFolder records a newly created folder in both views.
func (index *RemoteIndex) AddFolder(fullPath string, id, parentID uint32) *FolderNode {
	folder := NewFolderNode(id)
	index.Paths[fullPath] = folder
	index.IDs[id] = IndexEntry{Node: folder, FullPath: fullPath, ParentID: parentID}
	return folder
}

// AddFile records a newly uploaded file in both views and registers it as a
// child of its parent folder, so later plan entries in the same run observe
// it.
func (index *RemoteIndex) AddFile(fullPath, name string, file *FileNode, parent *FolderNode) {
	index.Paths[fullPath] = file
	index.IDs[file.ID] = IndexEntry{Node: file, FullPath: fullPath, ParentID: parent.ID}
	parent.Children[name] = file
}
