package repository

import (
	"github.com/S1riyS/memfs9p/server/internal/models"
)

// CreateInode allocates a detached inode with a fresh qid path. It does not
// add the inode to the table.
func (fs *Filesystem) CreateInode() *models.Inode {
	fs.qidNumber++

	return &models.Inode{
		Valid:    true,
		Data:     []byte{},
		Mode:     models.DefaultMode,
		Qid:      models.Qid{Path: fs.qidNumber},
		ParentID: NoParent,
	}
}

func (fs *Filesystem) CreateDirectory(name string, parentID int) int {
	x := fs.CreateInode()
	x.Name = name
	x.ParentID = parentID
	x.Qid.Type = uint8(models.S_IFDIR >> 8)
	x.Mode = models.DefaultMode | models.S_IFDIR

	return fs.push(x)
}

func (fs *Filesystem) CreateFile(name string, parentID int) int {
	x := fs.CreateInode()
	x.Name = name
	x.ParentID = parentID
	x.Qid.Type = uint8(models.S_IFREG >> 8)
	x.Mode = models.DefaultMode | models.S_IFREG

	return fs.push(x)
}

// CreateSymlink stores target verbatim. Symlinks carry no permission bits.
func (fs *Filesystem) CreateSymlink(name string, parentID int, target string) int {
	x := fs.CreateInode()
	x.Name = name
	x.ParentID = parentID
	x.Qid.Type = uint8(models.S_IFLNK >> 8)
	x.Symlink = target
	x.Mode = models.S_IFLNK

	return fs.push(x)
}

// CreateTextFile creates a regular file whose content holds one byte per
// code point of text. Code points above 0xFF are truncated to their low byte.
func (fs *Filesystem) CreateTextFile(name string, parentID int, text string) int {
	idx := fs.CreateFile(name, parentID)

	data := make([]byte, 0, len(text))
	for _, r := range text {
		data = append(data, byte(r))
	}
	fs.inodes[idx].Data = data

	return idx
}

func (fs *Filesystem) push(x *models.Inode) int {
	fs.inodes = append(fs.inodes, x)
	idx := len(fs.inodes) - 1
	fs.attach(idx)
	return idx
}
