package repository

import (
	"github.com/S1riyS/memfs9p/server/internal/models"
)

const (
	// RootIndex is the table slot of the root directory.
	RootIndex = 0

	// NotFound is returned by lookups that match no live inode.
	NotFound = -1

	// NoParent is the parent id of the root.
	NoParent = -1
)

// Filesystem is an in-memory inode table. Positions in the table are the
// externally visible inode indices: they are never renumbered and never
// reused, deleted inodes stay in place as tombstones.
//
// A Filesystem is not safe for concurrent use. Callers must serialize every
// operation on one instance.
type Filesystem struct {
	inodes    []*models.Inode
	children  map[int][]int
	qidNumber uint64
}

// NewFilesystem returns a filesystem holding the root directory and the
// "hello" seed file.
func NewFilesystem() *Filesystem {
	fs := &Filesystem{
		children: make(map[int][]int),
	}

	fs.CreateDirectory("", NoParent)
	fs.CreateTextFile("hello", RootIndex, "Hello World")

	return fs
}

func (fs *Filesystem) GetRoot() *models.Inode {
	return fs.inodes[RootIndex]
}

// GetInode returns the inode at idx. An out-of-range idx panics.
func (fs *Filesystem) GetInode(idx int) *models.Inode {
	return fs.inodes[idx]
}

// Len is the table length, tombstones included.
func (fs *Filesystem) Len() int {
	return len(fs.inodes)
}

// IsLive reports whether idx is in range and not unlinked.
func (fs *Filesystem) IsLive(idx int) bool {
	return idx >= 0 && idx < len(fs.inodes) && fs.inodes[idx].Valid
}
