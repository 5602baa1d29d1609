package binary

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1riyS/memfs9p/server/internal/models"
)

func TestDirentWriter(t *testing.T) {
	t.Run("FieldLayout", func(t *testing.T) {
		qid := models.Qid{Type: 0x80, Version: 7, Path: 0x0102030405060708}
		buf := make([]byte, DirentSize("abc"))
		w := NewDirentWriter(buf)

		next := w.WriteDirent(qid, 0x81, "abc")

		require.Equal(t, 27, next)
		assert.Equal(t, byte(0x80), buf[0])
		assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[1:5]))
		assert.Equal(t, uint64(0x0102030405060708), binary.LittleEndian.Uint64(buf[5:13]))
		assert.Equal(t, uint64(27), binary.LittleEndian.Uint64(buf[13:21]))
		assert.Equal(t, byte(0x81), buf[21])
		assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(buf[22:24]))
		assert.Equal(t, []byte("abc"), buf[24:])
	})

	t.Run("NextOffsetIsAbsolute", func(t *testing.T) {
		names := []string{".", "..", "file"}
		size := 0
		for _, n := range names {
			size += DirentSize(n)
		}

		w := NewDirentWriter(make([]byte, size))
		for i, n := range names {
			w.WriteDirent(models.Qid{Path: uint64(i)}, 0, n)
		}

		dirents, err := DecodeDirents(w.Bytes())
		require.NoError(t, err)
		require.Len(t, dirents, 3)
		assert.Equal(t, uint64(25), dirents[0].Offset)
		assert.Equal(t, uint64(51), dirents[1].Offset)
		assert.Equal(t, uint64(size), dirents[2].Offset)
		assert.Equal(t, size, w.Offset())
	})

	t.Run("EmptyName", func(t *testing.T) {
		w := NewDirentWriter(make([]byte, DirentHeaderSize))
		w.WriteDirent(models.Qid{}, 0, "")

		d, end, err := NextDirent(w.Bytes(), 0)
		require.NoError(t, err)
		assert.Equal(t, "", d.Name)
		assert.Equal(t, DirentHeaderSize, end)
	})
}

func TestNextDirent(t *testing.T) {
	buf := make([]byte, DirentSize("one")+DirentSize("two"))
	w := NewDirentWriter(buf)
	w.WriteDirent(models.Qid{Path: 1}, 1, "one")
	w.WriteDirent(models.Qid{Path: 2}, 2, "two")

	t.Run("ResumesAtBoundary", func(t *testing.T) {
		d, end, err := NextDirent(buf, DirentSize("one"))
		require.NoError(t, err)
		assert.Equal(t, "two", d.Name)
		assert.Equal(t, uint64(2), d.Qid.Path)
		assert.Equal(t, len(buf), end)
	})

	t.Run("ShortHeader", func(t *testing.T) {
		_, _, err := NextDirent(buf[:10], 0)
		assert.ErrorIs(t, err, ErrShortDirent)
	})

	t.Run("ShortName", func(t *testing.T) {
		_, _, err := NextDirent(buf[:DirentHeaderSize+1], 0)
		assert.ErrorIs(t, err, ErrShortDirent)
	})

	t.Run("NegativeOffset", func(t *testing.T) {
		_, _, err := NextDirent(buf, -1)
		assert.ErrorIs(t, err, ErrShortDirent)
	})

	t.Run("OffsetMismatch", func(t *testing.T) {
		bad := bytes.Clone(buf)
		binary.LittleEndian.PutUint64(bad[13:21], 99)
		_, _, err := NextDirent(bad, 0)
		assert.ErrorIs(t, err, ErrDirentOffset)
	})
}

func TestEncodeNodeMeta(t *testing.T) {
	meta := &models.NodeMeta{
		Ino:       4,
		ParentIno: 0,
		Type:      models.NodeTypeFile,
		Mode:      models.S_IFREG | 0o644,
		Size:      11,
		UID:       1000,
		GID:       100,
		Qid:       models.Qid{Type: 0x80, Path: 5},
	}

	data, err := EncodeNodeMeta(meta)
	require.NoError(t, err)
	require.Len(t, data, QidSize+8+8+2+4+8+4+4)

	assert.Equal(t, byte(0x80), data[0])
	assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(data[5:13]))
	assert.Equal(t, uint64(4), binary.LittleEndian.Uint64(data[13:21]))
	assert.Equal(t, uint32(models.S_IFREG|0o644), binary.LittleEndian.Uint32(data[31:35]))
	assert.Equal(t, uint64(11), binary.LittleEndian.Uint64(data[35:43]))
	assert.Equal(t, uint32(1000), binary.LittleEndian.Uint32(data[43:47]))
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(data[47:51]))
}
