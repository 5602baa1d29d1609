package binary

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/S1riyS/memfs9p/server/internal/models"
)

// Directory-entry record layout, all integers little-endian:
//
//	qid.type[1] qid.version[4] qid.path[8] next[8] type[1] namelen[2] name[namelen]
const (
	QidSize          = 1 + 4 + 8
	DirentHeaderSize = QidSize + 8 + 1 + 2
)

var (
	ErrShortDirent  = errors.New("binary: short directory entry")
	ErrDirentOffset = errors.New("binary: directory entry next offset mismatch")
)

// DirentSize is the encoded length of a record named name.
func DirentSize(name string) int {
	return DirentHeaderSize + len(name)
}

// DirentWriter packs directory-entry records into a preallocated buffer.
type DirentWriter struct {
	buf []byte
	off int
}

func NewDirentWriter(buf []byte) *DirentWriter {
	return &DirentWriter{buf: buf}
}

// Offset is the position the next record starts at.
func (w *DirentWriter) Offset() int {
	return w.off
}

func (w *DirentWriter) Bytes() []byte {
	return w.buf[:w.off]
}

// WriteDirent appends one record and returns the offset of the record that
// follows it. That offset is also what gets stored in the record's next field.
func (w *DirentWriter) WriteDirent(qid models.Qid, typ uint8, name string) int {
	next := w.off + DirentSize(name)

	w.putQid(qid)
	w.putUint64(uint64(next))
	w.putUint8(typ)
	w.putString(name)

	return w.off
}

func (w *DirentWriter) putQid(qid models.Qid) {
	w.putUint8(qid.Type)
	binary.LittleEndian.PutUint32(w.buf[w.off:], qid.Version)
	w.off += 4
	w.putUint64(qid.Path)
}

func (w *DirentWriter) putUint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *DirentWriter) putUint8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *DirentWriter) putString(s string) {
	binary.LittleEndian.PutUint16(w.buf[w.off:], uint16(len(s)))
	w.off += 2
	w.off += copy(w.buf[w.off:], s)
}

// NextDirent decodes the record starting at off and returns it together with
// the offset right after it.
func NextDirent(buf []byte, off int) (models.Dirent, int, error) {
	var d models.Dirent

	if off < 0 || len(buf)-off < DirentHeaderSize {
		return d, off, fmt.Errorf("%w at offset %d", ErrShortDirent, off)
	}

	p := buf[off:]
	d.Qid.Type = p[0]
	d.Qid.Version = binary.LittleEndian.Uint32(p[1:5])
	d.Qid.Path = binary.LittleEndian.Uint64(p[5:13])
	d.Offset = binary.LittleEndian.Uint64(p[13:21])
	d.Type = p[21]
	nameLen := int(binary.LittleEndian.Uint16(p[22:24]))

	end := off + DirentHeaderSize + nameLen
	if end > len(buf) {
		return d, off, fmt.Errorf("%w at offset %d", ErrShortDirent, off)
	}
	d.Name = string(p[DirentHeaderSize : DirentHeaderSize+nameLen])

	if d.Offset != uint64(end) {
		return d, off, fmt.Errorf("%w at offset %d: have %d, want %d", ErrDirentOffset, off, d.Offset, end)
	}

	return d, end, nil
}

// DecodeDirents parses a whole directory listing.
func DecodeDirents(buf []byte) ([]models.Dirent, error) {
	var dirents []models.Dirent

	for off := 0; off < len(buf); {
		d, next, err := NextDirent(buf, off)
		if err != nil {
			return nil, err
		}
		dirents = append(dirents, d)
		off = next
	}

	return dirents, nil
}
