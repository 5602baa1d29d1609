package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1riyS/memfs9p/server/internal/metrics"
	"github.com/S1riyS/memfs9p/server/internal/models"
	"github.com/S1riyS/memfs9p/server/internal/pkg/kerrors"
	"github.com/S1riyS/memfs9p/server/pkg/binary"
	"github.com/S1riyS/memfs9p/server/pkg/logging"
)

const token = "test-token"

func newTestService(t *testing.T) (FileSystemService, context.Context) {
	t.Helper()

	svc := NewFileSystemService(NewRegistry(4), metrics.New(), 8192)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := logging.MakeContextWithLogger(context.Background(), logger)

	require.NoError(t, svc.Init(ctx, token))
	return svc, ctx
}

func requireCode(t *testing.T, err error, code int64) {
	t.Helper()

	require.Error(t, err)
	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, code, serviceErr.Code, serviceErr.Message)
}

func ptr[T any](v T) *T {
	return &v
}

func TestInstances(t *testing.T) {
	svc, ctx := newTestService(t)

	t.Run("InitTwice", func(t *testing.T) {
		requireCode(t, svc.Init(ctx, token), kerrors.EEXIST)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		_, err := svc.Lookup(ctx, "other", 0, "hello")
		requireCode(t, err, kerrors.ENOENT)
	})

	t.Run("GetRootCreates", func(t *testing.T) {
		meta, err := svc.GetRoot(ctx, "lazy")
		require.NoError(t, err)
		assert.Equal(t, int64(0), meta.Ino)
		assert.Equal(t, models.NodeTypeDir, meta.Type)

		_, err = svc.Lookup(ctx, "lazy", 0, "hello")
		assert.NoError(t, err)
	})

	t.Run("Limit", func(t *testing.T) {
		require.NoError(t, svc.Init(ctx, "third"))
		require.NoError(t, svc.Init(ctx, "fourth"))
		requireCode(t, svc.Init(ctx, "fifth"), kerrors.ENOSPC)
	})

	t.Run("Drop", func(t *testing.T) {
		require.NoError(t, svc.Drop(ctx, "fourth"))
		requireCode(t, svc.Drop(ctx, "fourth"), kerrors.ENOENT)
		require.NoError(t, svc.Init(ctx, "fifth"))
	})

	t.Run("InstancesAreIsolated", func(t *testing.T) {
		_, err := svc.CreateFile(ctx, token, 0, "only-here", 0o644)
		require.NoError(t, err)

		_, err = svc.Lookup(ctx, "third", 0, "only-here")
		requireCode(t, err, kerrors.ENOENT)
	})
}

func TestBootstrap(t *testing.T) {
	svc, ctx := newTestService(t)

	meta, err := svc.Lookup(ctx, token, 0, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.Ino)
	assert.Equal(t, int64(11), meta.Size)
	assert.Equal(t, models.NodeTypeFile, meta.Type)

	data, err := svc.Read(ctx, token, meta.Ino, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello World"), data)

	listing, err := svc.ReadDir(ctx, token, 0, 0, 0)
	require.NoError(t, err)
	dirents, err := binary.DecodeDirents(listing)
	require.NoError(t, err)
	require.Len(t, dirents, 3)
	assert.Equal(t, []string{".", "..", "hello"}, []string{dirents[0].Name, dirents[1].Name, dirents[2].Name})
}

func TestCreateLookupUnlink(t *testing.T) {
	svc, ctx := newTestService(t)

	docs, err := svc.CreateDir(ctx, token, 0, "docs", 0o755)
	require.NoError(t, err)
	assert.Equal(t, int64(2), docs.Ino)
	assert.Equal(t, models.S_IFDIR|0o755, docs.Mode)

	found, err := svc.Lookup(ctx, token, 0, "docs")
	require.NoError(t, err)
	assert.Equal(t, docs.Ino, found.Ino)

	require.NoError(t, svc.Unlink(ctx, token, 0, "docs"))

	_, err = svc.Lookup(ctx, token, 0, "docs")
	requireCode(t, err, kerrors.ENOENT)

	_, err = svc.GetAttr(ctx, token, docs.Ino)
	requireCode(t, err, kerrors.ENOENT)

	again, err := svc.CreateDir(ctx, token, 0, "docs", 0o700)
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.Ino)
	assert.Greater(t, again.Qid.Path, docs.Qid.Path)
}

func TestCreateErrors(t *testing.T) {
	svc, ctx := newTestService(t)

	tests := []struct {
		name   string
		parent int64
		entry  string
		code   int64
	}{
		{"Exists", 0, "hello", kerrors.EEXIST},
		{"EmptyName", 0, "", kerrors.EINVAL},
		{"Dot", 0, ".", kerrors.EINVAL},
		{"DotDot", 0, "..", kerrors.EINVAL},
		{"Slash", 0, "a/b", kerrors.EINVAL},
		{"ParentIsFile", 1, "x", kerrors.ENOTDIR},
		{"NoParent", 42, "x", kerrors.ENOENT},
		{"NegativeParent", -1, "x", kerrors.ENOENT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateFile(ctx, token, tt.parent, tt.entry, 0o644)
			requireCode(t, err, tt.code)
		})
	}

	t.Run("EmptySymlinkTarget", func(t *testing.T) {
		_, err := svc.CreateSymlink(ctx, token, 0, "l", "")
		requireCode(t, err, kerrors.EINVAL)
	})
}

func TestWalk(t *testing.T) {
	svc, ctx := newTestService(t)

	a, err := svc.CreateDir(ctx, token, 0, "a", 0o755)
	require.NoError(t, err)
	b, err := svc.CreateDir(ctx, token, a.Ino, "b", 0o755)
	require.NoError(t, err)
	f, err := svc.CreateFile(ctx, token, b.Ino, "f", 0o644)
	require.NoError(t, err)

	tests := map[string]int64{
		"":            0,
		"/":           0,
		"/a":          a.Ino,
		"a/b/f":       f.Ino,
		"/a//b/":      b.Ino,
		"/a/b/../b/.": b.Ino,
		"/..":         0,
	}
	for path, want := range tests {
		meta, err := svc.Walk(ctx, token, path)
		require.NoError(t, err, path)
		assert.Equal(t, want, meta.Ino, path)
	}

	_, err = svc.Walk(ctx, token, "/a/missing")
	requireCode(t, err, kerrors.ENOENT)

	_, err = svc.Walk(ctx, token, "/hello/x")
	requireCode(t, err, kerrors.ENOTDIR)
}

func TestReadDirPaging(t *testing.T) {
	svc, ctx := newTestService(t)

	for i := 0; i < 10; i++ {
		_, err := svc.CreateFile(ctx, token, 0, fmt.Sprintf("f%d", i), 0o644)
		require.NoError(t, err)
	}

	full, err := svc.ReadDir(ctx, token, 0, 0, 0)
	require.NoError(t, err)

	t.Run("ResumesFromNextOffsets", func(t *testing.T) {
		var collected []byte
		offset := uint64(0)
		for calls := 0; ; calls++ {
			require.Less(t, calls, 20)

			chunk, err := svc.ReadDir(ctx, token, 0, offset, 60)
			require.NoError(t, err)
			if len(chunk) == 0 {
				break
			}
			assert.LessOrEqual(t, len(chunk), 60)

			collected = append(collected, chunk...)
			offset += uint64(len(chunk))
		}

		assert.Equal(t, full, collected)
	})

	t.Run("OffsetInsideRecord", func(t *testing.T) {
		_, err := svc.ReadDir(ctx, token, 0, 10, 0)
		requireCode(t, err, kerrors.EINVAL)
	})

	t.Run("OffsetPastEnd", func(t *testing.T) {
		_, err := svc.ReadDir(ctx, token, 0, uint64(len(full))+1, 0)
		requireCode(t, err, kerrors.EINVAL)
	})

	t.Run("OffsetAtEnd", func(t *testing.T) {
		chunk, err := svc.ReadDir(ctx, token, 0, uint64(len(full)), 0)
		require.NoError(t, err)
		assert.Empty(t, chunk)
	})

	t.Run("CountTooSmall", func(t *testing.T) {
		_, err := svc.ReadDir(ctx, token, 0, 0, 10)
		requireCode(t, err, kerrors.EINVAL)
	})

	t.Run("NotADirectory", func(t *testing.T) {
		_, err := svc.ReadDir(ctx, token, 1, 0, 0)
		requireCode(t, err, kerrors.ENOTDIR)
	})
}

func TestReadWrite(t *testing.T) {
	svc, ctx := newTestService(t)

	n, err := svc.Write(ctx, token, 1, 6, []byte("Gophers!"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	data, err := svc.Read(ctx, token, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello Gophers!"), data)

	data, err = svc.Read(ctx, token, 1, 6, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("Gop"), data)

	data, err = svc.Read(ctx, token, 1, 100, 3)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = svc.Write(ctx, token, 1, 20, []byte("x"))
	require.NoError(t, err)
	meta, err := svc.GetAttr(ctx, token, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(21), meta.Size)

	t.Run("Errors", func(t *testing.T) {
		_, err := svc.Read(ctx, token, 0, 0, 0)
		requireCode(t, err, kerrors.EISDIR)

		_, err = svc.Write(ctx, token, 0, 0, []byte("x"))
		requireCode(t, err, kerrors.EISDIR)

		_, err = svc.Read(ctx, token, 1, -1, 0)
		requireCode(t, err, kerrors.EINVAL)

		_, err = svc.Write(ctx, token, 1, MaxFileSize, []byte("x"))
		requireCode(t, err, kerrors.EFBIG)

		_, err = svc.Write(ctx, token, 1, math.MaxInt64, []byte("x"))
		requireCode(t, err, kerrors.EFBIG)

		_, err = svc.Write(ctx, token, 1, MaxFileSize-1, []byte("xy"))
		requireCode(t, err, kerrors.EFBIG)

		_, err = svc.Read(ctx, token, 99, 0, 0)
		requireCode(t, err, kerrors.ENOENT)
	})
}

func TestSetAttr(t *testing.T) {
	svc, ctx := newTestService(t)

	meta, err := svc.SetAttr(ctx, token, 1, models.SetAttr{Size: ptr(int64(5))})
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)

	data, err := svc.Read(ctx, token, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), data)

	meta, err = svc.SetAttr(ctx, token, 1, models.SetAttr{Size: ptr(int64(8))})
	require.NoError(t, err)
	data, err = svc.Read(ctx, token, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{'H', 'e', 'l', 'l', 'o', 0, 0, 0}, data)

	meta, err = svc.SetAttr(ctx, token, 1, models.SetAttr{
		Mode: ptr(models.S_IFDIR | 0o600),
		UID:  ptr(uint32(1000)),
		GID:  ptr(uint32(100)),
	})
	require.NoError(t, err)
	assert.Equal(t, models.S_IFREG|0o600, meta.Mode)
	assert.Equal(t, uint32(1000), meta.UID)
	assert.Equal(t, uint32(100), meta.GID)

	t.Run("Errors", func(t *testing.T) {
		_, err := svc.SetAttr(ctx, token, 0, models.SetAttr{Size: ptr(int64(1))})
		requireCode(t, err, kerrors.EISDIR)

		_, err = svc.SetAttr(ctx, token, 1, models.SetAttr{Size: ptr(int64(-1)), UID: ptr(uint32(7))})
		requireCode(t, err, kerrors.EINVAL)

		meta, err := svc.GetAttr(ctx, token, 1)
		require.NoError(t, err)
		assert.Equal(t, uint32(1000), meta.UID)
	})
}

func TestSymlink(t *testing.T) {
	svc, ctx := newTestService(t)

	link, err := svc.CreateSymlink(ctx, token, 0, "link", "/hello")
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeSymlink, link.Type)
	assert.Equal(t, int64(len("/hello")), link.Size)

	target, err := svc.Readlink(ctx, token, link.Ino)
	require.NoError(t, err)
	assert.Equal(t, "/hello", target)

	_, err = svc.Readlink(ctx, token, 1)
	requireCode(t, err, kerrors.EINVAL)

	_, err = svc.Read(ctx, token, link.Ino, 0, 0)
	requireCode(t, err, kerrors.EINVAL)
}

func TestUnlinkErrors(t *testing.T) {
	svc, ctx := newTestService(t)

	dir, err := svc.CreateDir(ctx, token, 0, "d", 0o755)
	require.NoError(t, err)
	_, err = svc.CreateFile(ctx, token, dir.Ino, "f", 0o644)
	require.NoError(t, err)

	requireCode(t, svc.Unlink(ctx, token, 0, "d"), kerrors.ENOTEMPTY)
	requireCode(t, svc.Unlink(ctx, token, 0, "missing"), kerrors.ENOENT)
	requireCode(t, svc.Unlink(ctx, token, 0, ".."), kerrors.EPERM)
	requireCode(t, svc.Unlink(ctx, token, 0, "."), kerrors.EPERM)
	requireCode(t, svc.Unlink(ctx, token, dir.Ino, ".."), kerrors.EPERM)
	requireCode(t, svc.Unlink(ctx, token, dir.Ino, "."), kerrors.EINVAL)

	require.NoError(t, svc.Unlink(ctx, token, dir.Ino, "f"))
	require.NoError(t, svc.Unlink(ctx, token, 0, "d"))
}

func TestRename(t *testing.T) {
	svc, ctx := newTestService(t)

	dir, err := svc.CreateDir(ctx, token, 0, "dir", 0o755)
	require.NoError(t, err)
	sub, err := svc.CreateDir(ctx, token, dir.Ino, "sub", 0o755)
	require.NoError(t, err)

	t.Run("MoveFile", func(t *testing.T) {
		before, err := svc.Lookup(ctx, token, 0, "hello")
		require.NoError(t, err)

		require.NoError(t, svc.Rename(ctx, token, 0, "hello", dir.Ino, "greeting"))

		_, err = svc.Lookup(ctx, token, 0, "hello")
		requireCode(t, err, kerrors.ENOENT)

		after, err := svc.Lookup(ctx, token, dir.Ino, "greeting")
		require.NoError(t, err)
		assert.Equal(t, before.Ino, after.Ino)
		assert.Equal(t, before.Qid, after.Qid)
		assert.Equal(t, dir.Ino, after.ParentIno)
	})

	t.Run("DirectoryIntoItself", func(t *testing.T) {
		err := svc.Rename(ctx, token, 0, "dir", sub.Ino, "loop")
		requireCode(t, err, kerrors.EINVAL)
	})

	t.Run("FileOverDirectory", func(t *testing.T) {
		err := svc.Rename(ctx, token, dir.Ino, "greeting", dir.Ino, "sub")
		requireCode(t, err, kerrors.EISDIR)
	})

	t.Run("DirectoryOverFile", func(t *testing.T) {
		err := svc.Rename(ctx, token, dir.Ino, "sub", dir.Ino, "greeting")
		requireCode(t, err, kerrors.ENOTDIR)
	})

	t.Run("OverNonEmptyDirectory", func(t *testing.T) {
		other, err := svc.CreateDir(ctx, token, 0, "other", 0o755)
		require.NoError(t, err)
		_, err = svc.CreateFile(ctx, token, sub.Ino, "x", 0o644)
		require.NoError(t, err)

		err = svc.Rename(ctx, token, 0, "other", dir.Ino, "sub")
		requireCode(t, err, kerrors.ENOTEMPTY)

		require.NoError(t, svc.Rename(ctx, token, dir.Ino, "sub", 0, "other"))
		moved, err := svc.Lookup(ctx, token, 0, "other")
		require.NoError(t, err)
		assert.Equal(t, sub.Ino, moved.Ino)

		_, err = svc.GetAttr(ctx, token, other.Ino)
		requireCode(t, err, kerrors.ENOENT)
	})

	t.Run("MissingSource", func(t *testing.T) {
		err := svc.Rename(ctx, token, 0, "nope", 0, "x")
		requireCode(t, err, kerrors.ENOENT)
	})

	t.Run("Root", func(t *testing.T) {
		requireCode(t, svc.Rename(ctx, token, 0, ".", dir.Ino, "root"), kerrors.EPERM)
		requireCode(t, svc.Rename(ctx, token, dir.Ino, "..", dir.Ino, "root"), kerrors.EPERM)
		requireCode(t, svc.Rename(ctx, token, dir.Ino, "greeting", 0, ".."), kerrors.EPERM)
	})
}

func TestNameMustFitReadDirReply(t *testing.T) {
	svc, ctx := newTestService(t)

	const msize = 8192
	longest := strings.Repeat("a", msize-binary.DirentHeaderSize)
	tooLong := longest + "a"

	_, err := svc.CreateFile(ctx, token, 0, tooLong, 0o644)
	requireCode(t, err, kerrors.ENAMETOOLONG)

	_, err = svc.CreateDir(ctx, token, 0, strings.Repeat("b", 9000), 0o755)
	requireCode(t, err, kerrors.ENAMETOOLONG)

	err = svc.Rename(ctx, token, 0, "hello", 0, tooLong)
	requireCode(t, err, kerrors.ENAMETOOLONG)

	_, err = svc.CreateFile(ctx, token, 0, longest, 0o644)
	require.NoError(t, err)
	_, err = svc.CreateFile(ctx, token, 0, "after", 0o644)
	require.NoError(t, err)

	var names []string
	for offset := uint64(0); ; {
		chunk, err := svc.ReadDir(ctx, token, 0, offset, 0)
		require.NoError(t, err)
		if len(chunk) == 0 {
			break
		}

		dirents, err := binary.DecodeDirents(chunk)
		require.NoError(t, err)
		for _, d := range dirents {
			names = append(names, d.Name)
		}
		offset = dirents[len(dirents)-1].Offset
	}

	assert.Equal(t, []string{".", "..", "hello", longest, "after"}, names)
}

func TestConcurrentCreates(t *testing.T) {
	svc, ctx := newTestService(t)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := svc.CreateFile(ctx, token, 0, fmt.Sprintf("w%d-%d", w, i), 0o644)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	listing, err := svc.ReadDir(ctx, token, 0, 0, 1<<20)
	require.NoError(t, err)
	dirents, err := binary.DecodeDirents(listing)
	require.NoError(t, err)

	// "." ".." "hello" and at most msize bytes worth of the rest
	seen := make(map[uint64]bool)
	for _, d := range dirents[2:] {
		assert.False(t, seen[d.Qid.Path])
		seen[d.Qid.Path] = true
	}

	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			_, err := svc.Lookup(ctx, token, 0, fmt.Sprintf("w%d-%d", w, i))
			assert.NoError(t, err)
		}
	}
}
