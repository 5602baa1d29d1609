package service

import (
	"strings"

	"github.com/S1riyS/memfs9p/server/internal/models"
	"github.com/S1riyS/memfs9p/server/internal/pkg/kerrors"
	"github.com/S1riyS/memfs9p/server/internal/repository"
	"github.com/S1riyS/memfs9p/server/pkg/binary"
)

// checkHandle turns a client supplied inode number into a live table index.
func checkHandle(fs *repository.Filesystem, ino int64) (int, error) {
	if ino < 0 || ino >= int64(fs.Len()) || !fs.IsLive(int(ino)) {
		return 0, newError(kerrors.ENOENT, "no such inode")
	}
	return int(ino), nil
}

func checkDir(fs *repository.Filesystem, ino int64) (int, error) {
	idx, err := checkHandle(fs, ino)
	if err != nil {
		return 0, err
	}
	if !fs.GetInode(idx).IsDir() {
		return 0, newError(kerrors.ENOTDIR, "not a directory")
	}
	return idx, nil
}

// checkContent rejects inodes whose content cannot be read or written directly.
func checkContent(inode *models.Inode) error {
	switch {
	case inode.IsDir():
		return newError(kerrors.EISDIR, "is a directory")
	case inode.IsSymlink():
		return newError(kerrors.EINVAL, "is a symlink")
	}
	return nil
}

// checkName validates a name for a new or moved entry. The directory record
// carrying name must fit in a single readdir reply.
func (s *fileSystemService) checkName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return newError(kerrors.EINVAL, "invalid name")
	case strings.ContainsRune(name, '/'):
		return newError(kerrors.EINVAL, "name contains a slash")
	case len(name) > MaxNameLen, binary.DirentSize(name) > s.msize:
		return newError(kerrors.ENAMETOOLONG, "name too long")
	}
	return nil
}

// checkTarget rejects unlink and rename when name resolves to the root.
func checkTarget(fs *repository.Filesystem, parent int, name string) error {
	if name != "." && name != ".." {
		return nil
	}
	if lookupIndex(fs, parent, name) == repository.RootIndex {
		return newError(kerrors.EPERM, "operation on the root directory")
	}
	return nil
}

// lookupIndex is Search plus the "." and ".." names.
func lookupIndex(fs *repository.Filesystem, parent int, name string) int {
	switch name {
	case ".":
		return parent
	case "..":
		return parentOf(fs, parent)
	}
	return fs.Search(parent, name)
}

func parentOf(fs *repository.Filesystem, idx int) int {
	parent := fs.GetInode(idx).ParentID
	if parent == repository.NoParent {
		return repository.RootIndex
	}
	return parent
}

// isAncestor reports whether dir is idx or one of its ancestors.
func isAncestor(fs *repository.Filesystem, dir int, idx int) bool {
	for cur, steps := idx, 0; cur != repository.NoParent && steps <= fs.Len(); steps++ {
		if cur == dir {
			return true
		}
		cur = fs.GetInode(cur).ParentID
	}
	return false
}

func nodeMeta(fs *repository.Filesystem, idx int) *models.NodeMeta {
	inode := fs.GetInode(idx)

	size := int64(len(inode.Data))
	if inode.IsSymlink() {
		size = int64(len(inode.Symlink))
	}

	return &models.NodeMeta{
		Ino:       int64(idx),
		ParentIno: int64(parentOf(fs, idx)),
		Type:      inode.Type(),
		Mode:      inode.Mode,
		Size:      size,
		UID:       inode.UID,
		GID:       inode.GID,
		Qid:       inode.Qid,
		Name:      inode.Name,
	}
}
