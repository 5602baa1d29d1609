package models

// Mode type bits
const (
	S_IFMT  uint32 = 0xF000
	S_IFLNK uint32 = 0xA000 // Symbolic link
	S_IFREG uint32 = 0x8000 // Regular file
	S_IFDIR uint32 = 0x4000 // Directory

	S_IRWXUGO uint32 = 0o0777

	DefaultMode uint32 = 0o0755
)

type NodeType int16

const (
	NodeTypeDir     NodeType = 0
	NodeTypeFile    NodeType = 1
	NodeTypeSymlink NodeType = 2
)

// NodeTypeFromMode maps the type bits of mode to a NodeType.
func NodeTypeFromMode(mode uint32) NodeType {
	switch mode & S_IFMT {
	case S_IFDIR:
		return NodeTypeDir
	case S_IFLNK:
		return NodeTypeSymlink
	default:
		return NodeTypeFile
	}
}

func (t NodeType) String() string {
	switch t {
	case NodeTypeDir:
		return "dir"
	case NodeTypeFile:
		return "file"
	case NodeTypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Qid identifies an inode at protocol level.
type Qid struct {
	Type    uint8
	Version uint32
	Path    uint64
}

type Inode struct {
	Valid    bool
	Name     string
	UID      uint32
	GID      uint32
	Data     []byte
	Symlink  string
	Mode     uint32
	Qid      Qid
	ParentID int
}

func (i *Inode) IsDir() bool {
	return i.Mode&S_IFMT == S_IFDIR
}

func (i *Inode) IsSymlink() bool {
	return i.Mode&S_IFMT == S_IFLNK
}

func (i *Inode) Type() NodeType {
	return NodeTypeFromMode(i.Mode)
}

type NodeMeta struct {
	Ino       int64    `json:"ino"`
	ParentIno int64    `json:"parent_ino"`
	Type      NodeType `json:"type"`
	Mode      uint32   `json:"mode"`
	Size      int64    `json:"size"`
	UID       uint32   `json:"uid"`
	GID       uint32   `json:"gid"`
	Qid       Qid      `json:"qid"`
	Name      string   `json:"name"`
}

// Dirent is one decoded directory-entry record.
type Dirent struct {
	Qid    Qid    `json:"qid"`
	Offset uint64 `json:"offset"`
	Type   uint8  `json:"type"`
	Name   string `json:"name"`
}

// SetAttr carries the attributes a caller wants changed. Nil fields are left as is.
type SetAttr struct {
	Mode *uint32
	UID  *uint32
	GID  *uint32
	Size *int64
}
