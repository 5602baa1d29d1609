package repository

// Unlink tombstones idx and releases its content. The slot stays in the table.
func (fs *Filesystem) Unlink(idx int) {
	inode := fs.inodes[idx]
	if inode.Valid {
		fs.detach(idx)
	}
	inode.Data = []byte{}
	inode.Valid = false
}

// ChangeSize resizes the content of idx to newSize bytes, keeping the common
// prefix and zero-filling any growth.
func (fs *Filesystem) ChangeSize(idx int, newSize int) {
	inode := fs.inodes[idx]
	data := make([]byte, newSize)
	copy(data, inode.Data)
	inode.Data = data
}

// ReadAt copies up to count bytes of content starting at offset. Reads at or
// past the end return an empty slice.
func (fs *Filesystem) ReadAt(idx int, offset int, count int) []byte {
	data := fs.inodes[idx].Data
	if offset >= len(data) {
		return []byte{}
	}

	end := min(offset+count, len(data))
	out := make([]byte, end-offset)
	copy(out, data[offset:end])
	return out
}

// WriteAt stores p at offset, growing the content when needed. Returns the
// number of bytes written.
func (fs *Filesystem) WriteAt(idx int, offset int, p []byte) int {
	if end := offset + len(p); end > len(fs.inodes[idx].Data) {
		fs.ChangeSize(idx, end)
	}
	return copy(fs.inodes[idx].Data[offset:], p)
}
