package models

const (
	NameMax    = 127 // longest node name, excluding the terminating NUL
	DevNameMax = 31  // longest device name, excluding the terminating NUL

	// DirSize is the size value that marks a new node as a directory.
	DirSize uint32 = 0xffffffff
)

type NodeType uint32

const (
	NodeTypeDir  NodeType = 0 // FS_TYPE_DIR
	NodeTypeFile NodeType = 1 // FS_TYPE_FILE
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeDir:
		return "dir"
	case NodeTypeFile:
		return "file"
	default:
		return "unknown"
	}
}

// NodeInfo is the metadata record describing one namespace node. It is the
// only file attribute representation visible outside the namespace server.
type NodeInfo struct {
	ID         uint32   `json:"id"`
	Size       uint32   `json:"size"`
	Node       uint32   `json:"node"`
	Type       NodeType `json:"type"`
	Owner      int32    `json:"owner"`
	DevIndex   int32    `json:"dev_index"`
	DevServPID int32    `json:"dev_serv_pid"`
	Name       string   `json:"name"`
	Data       uint32   `json:"data"`
}

func (i *NodeInfo) IsDir() bool {
	return i.Type == NodeTypeDir
}

// MountEntry is one row of the mount table.
type MountEntry struct {
	DevName    string
	DevIndex   int32
	DevServPID int32
	Point      uint32 // handle of the node standing at the mount point
	Old        uint32 // handle of the node it replaced, 0 if none
}

func (m *MountEntry) Free() bool {
	return m.DevName == ""
}

// Process is a row of the kernel process registry.
type Process struct {
	PID       int32  `json:"pid"`
	FatherPID int32  `json:"father_pid"`
	Owner     int32  `json:"owner"`
	Cmd       string `json:"cmd"`
}
