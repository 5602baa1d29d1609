package repository

import (
	"slices"

	"github.com/S1riyS/memfs9p/server/internal/models"
	"github.com/S1riyS/memfs9p/server/pkg/binary"
)

// Search returns the index of the live inode named name under parentIdx, or
// NotFound.
func (fs *Filesystem) Search(parentIdx int, name string) int {
	for _, idx := range fs.children[parentIdx] {
		if fs.inodes[idx].Name == name {
			return idx
		}
	}
	return NotFound
}

// Children returns the live children of parentIdx in ascending index order.
func (fs *Filesystem) Children(parentIdx int) []int {
	return slices.Clone(fs.children[parentIdx])
}

// Rename moves the live inode (srcParent, srcName) to (destParent, destName)
// and returns its index. A live inode already named destName under destParent
// is unlinked first. The qid of the moved inode is left unchanged. Returns
// NotFound if the source does not exist.
func (fs *Filesystem) Rename(srcParent int, srcName string, destParent int, destName string) int {
	idx := fs.Search(srcParent, srcName)
	if idx == NotFound {
		return NotFound
	}

	if srcParent == destParent && srcName == destName {
		return idx
	}

	if existing := fs.Search(destParent, destName); existing != NotFound {
		fs.Unlink(existing)
	}

	fs.detach(idx)
	inode := fs.inodes[idx]
	inode.ParentID = destParent
	inode.Name = destName
	fs.attach(idx)

	return idx
}

// FillDirectory encodes the listing of dirIdx: ".", "..", then every live
// child in creation order. Each record's next field holds the absolute offset
// of the record after it, so a reader can resume at any record boundary.
func (fs *Filesystem) FillDirectory(dirIdx int) []byte {
	dir := fs.inodes[dirIdx]

	parentIdx := dir.ParentID
	if parentIdx == NoParent {
		parentIdx = RootIndex
	}
	parent := fs.inodes[parentIdx]
	kids := fs.children[dirIdx]

	size := binary.DirentSize(".") + binary.DirentSize("..")
	for _, idx := range kids {
		size += binary.DirentSize(fs.inodes[idx].Name)
	}

	w := binary.NewDirentWriter(make([]byte, size))
	w.WriteDirent(dir.Qid, direntType(dir), ".")
	w.WriteDirent(parent.Qid, direntType(parent), "..")
	for _, idx := range kids {
		child := fs.inodes[idx]
		w.WriteDirent(child.Qid, direntType(child), child.Name)
	}

	return w.Bytes()
}

func direntType(inode *models.Inode) uint8 {
	return uint8(inode.Mode >> 8)
}

// attach records idx under its parent, keeping the child list sorted.
func (fs *Filesystem) attach(idx int) {
	parentID := fs.inodes[idx].ParentID
	kids := fs.children[parentID]
	pos, _ := slices.BinarySearch(kids, idx)
	fs.children[parentID] = slices.Insert(kids, pos, idx)
}

func (fs *Filesystem) detach(idx int) {
	parentID := fs.inodes[idx].ParentID
	kids := fs.children[parentID]
	pos, found := slices.BinarySearch(kids, idx)
	if !found {
		return
	}
	kids = slices.Delete(kids, pos, pos+1)
	if len(kids) == 0 {
		delete(fs.children, parentID)
		return
	}
	fs.children[parentID] = kids
}
