package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/S1riyS/memfs9p/server/internal/metrics"
	"github.com/S1riyS/memfs9p/server/internal/models"
	"github.com/S1riyS/memfs9p/server/internal/pkg/kerrors"
	"github.com/S1riyS/memfs9p/server/internal/repository"
	"github.com/S1riyS/memfs9p/server/pkg/binary"
	"github.com/S1riyS/memfs9p/server/pkg/logging"
	"github.com/S1riyS/memfs9p/server/pkg/logging/slogext"
)

const (
	// MaxNameLen is the longest name the two-byte length prefix of a
	// directory entry can describe.
	MaxNameLen = 0xFFFF

	MaxFileSize = 1 << 30

	permMask = 0o7777
)

type FileSystemService interface {
	Init(ctx context.Context, token string) error
	Drop(ctx context.Context, token string) error
	GetRoot(ctx context.Context, token string) (*models.NodeMeta, error)
	Walk(ctx context.Context, token string, path string) (*models.NodeMeta, error)
	Lookup(ctx context.Context, token string, parentIno int64, name string) (*models.NodeMeta, error)
	GetAttr(ctx context.Context, token string, ino int64) (*models.NodeMeta, error)
	SetAttr(ctx context.Context, token string, ino int64, attr models.SetAttr) (*models.NodeMeta, error)
	ReadDir(ctx context.Context, token string, dirIno int64, offset uint64, count uint32) ([]byte, error)
	CreateFile(ctx context.Context, token string, parentIno int64, name string, mode uint32) (*models.NodeMeta, error)
	CreateDir(ctx context.Context, token string, parentIno int64, name string, mode uint32) (*models.NodeMeta, error)
	CreateSymlink(ctx context.Context, token string, parentIno int64, name string, target string) (*models.NodeMeta, error)
	Readlink(ctx context.Context, token string, ino int64) (string, error)
	Unlink(ctx context.Context, token string, parentIno int64, name string) error
	Read(ctx context.Context, token string, ino int64, offset int64, count uint32) ([]byte, error)
	Write(ctx context.Context, token string, ino int64, offset int64, data []byte) (int64, error)
	Rename(ctx context.Context, token string, srcParent int64, srcName string, destParent int64, destName string) error
}

type fileSystemService struct {
	registry *Registry
	metrics  *metrics.Metrics
	msize    int
}

// NewFileSystemService wires the service. m may be nil. msize caps read and
// readdir replies.
func NewFileSystemService(registry *Registry, m *metrics.Metrics, msize int) FileSystemService {
	return &fileSystemService{
		registry: registry,
		metrics:  m,
		msize:    msize,
	}
}

func (s *fileSystemService) Init(ctx context.Context, token string) error {
	const op = "service.fileSystemService.Init"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Init filesystem", slog.String("token", token))

	start := time.Now()
	_, err := s.registry.Create(token)
	s.metrics.SetInstances(s.registry.Len())
	s.metrics.ObserveOperation(op, err, time.Since(start))

	if err != nil {
		logger.Debug("Failed to create filesystem", slogext.Err(err), slog.String("token", token))
		return registryError(err)
	}

	logger.Debug("Filesystem initialized successfully", slog.String("token", token))
	return nil
}

func (s *fileSystemService) Drop(ctx context.Context, token string) error {
	const op = "service.fileSystemService.Drop"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Drop filesystem", slog.String("token", token))

	dropped := s.registry.Drop(token)
	s.metrics.SetInstances(s.registry.Len())

	if !dropped {
		return newError(kerrors.ENOENT, ErrInstanceNotFound.Error())
	}
	return nil
}

func (s *fileSystemService) GetRoot(ctx context.Context, token string) (*models.NodeMeta, error) {
	const op = "service.fileSystemService.GetRoot"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("GetRoot", slog.String("token", token))

	var meta *models.NodeMeta
	err := s.withFS(op, token, true, func(fs *repository.Filesystem) error {
		meta = nodeMeta(fs, repository.RootIndex)
		return nil
	})
	if err != nil {
		logger.Error("Failed to get root", slogext.Err(err), slog.String("token", token))
		return nil, err
	}

	return meta, nil
}

// Walk resolves a slash separated path from the root.
func (s *fileSystemService) Walk(ctx context.Context, token string, path string) (*models.NodeMeta, error) {
	const op = "service.fileSystemService.Walk"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Walk", slog.String("token", token), slog.String("path", path))

	var meta *models.NodeMeta
	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		idx := repository.RootIndex
		for _, name := range strings.Split(path, "/") {
			if name == "" {
				continue
			}
			if !fs.GetInode(idx).IsDir() {
				return newError(kerrors.ENOTDIR, "not a directory: "+name)
			}
			next := lookupIndex(fs, idx, name)
			if next == repository.NotFound {
				return newError(kerrors.ENOENT, "file not found: "+name)
			}
			idx = next
		}
		meta = nodeMeta(fs, idx)
		return nil
	})
	if err != nil {
		logger.Debug("Walk failed", slogext.Err(err), slog.String("path", path))
		return nil, err
	}

	logger.Debug("Walk successful", slog.String("path", path), slog.Int64("ino", meta.Ino))
	return meta, nil
}

func (s *fileSystemService) Lookup(ctx context.Context, token string, parentIno int64, name string) (*models.NodeMeta, error) {
	const op = "service.fileSystemService.Lookup"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Lookup",
		slog.String("token", token),
		slog.Int64("parent_ino", parentIno),
		slog.String("name", name),
	)

	var meta *models.NodeMeta
	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		parent, err := checkDir(fs, parentIno)
		if err != nil {
			return err
		}

		idx := lookupIndex(fs, parent, name)
		if idx == repository.NotFound {
			return newError(kerrors.ENOENT, "file not found")
		}

		meta = nodeMeta(fs, idx)
		return nil
	})
	if err != nil {
		logger.Debug("Lookup failed", slogext.Err(err), slog.String("name", name))
		return nil, err
	}

	logger.Debug("Lookup successful",
		slog.String("name", name),
		slog.Int64("ino", meta.Ino),
		slog.String("type", meta.Type.String()),
	)
	return meta, nil
}

func (s *fileSystemService) GetAttr(ctx context.Context, token string, ino int64) (*models.NodeMeta, error) {
	const op = "service.fileSystemService.GetAttr"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("GetAttr", slog.String("token", token), slog.Int64("ino", ino))

	var meta *models.NodeMeta
	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		idx, err := checkHandle(fs, ino)
		if err != nil {
			return err
		}
		meta = nodeMeta(fs, idx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return meta, nil
}

func (s *fileSystemService) SetAttr(ctx context.Context, token string, ino int64, attr models.SetAttr) (*models.NodeMeta, error) {
	const op = "service.fileSystemService.SetAttr"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("SetAttr", slog.String("token", token), slog.Int64("ino", ino))

	var meta *models.NodeMeta
	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		idx, err := checkHandle(fs, ino)
		if err != nil {
			return err
		}
		inode := fs.GetInode(idx)

		if attr.Size != nil {
			if err := checkContent(inode); err != nil {
				return err
			}
			if *attr.Size < 0 {
				return newError(kerrors.EINVAL, "negative size")
			}
			if *attr.Size > MaxFileSize {
				return newError(kerrors.EFBIG, "file too large")
			}
		}

		if attr.Size != nil {
			fs.ChangeSize(idx, int(*attr.Size))
			logger.Debug("Changed size", slog.Int64("ino", ino), slog.Int64("size", *attr.Size))
		}
		if attr.Mode != nil {
			inode.Mode = inode.Mode&models.S_IFMT | *attr.Mode&permMask
		}
		if attr.UID != nil {
			inode.UID = *attr.UID
		}
		if attr.GID != nil {
			inode.GID = *attr.GID
		}

		meta = nodeMeta(fs, idx)
		return nil
	})
	if err != nil {
		logger.Debug("SetAttr failed", slogext.Err(err), slog.Int64("ino", ino))
		return nil, err
	}

	return meta, nil
}

// ReadDir returns the whole directory-entry records of dirIno that start at
// offset and fit in count bytes. offset must be 0, the end of the listing, or
// the next offset of a previously returned record.
func (s *fileSystemService) ReadDir(ctx context.Context, token string, dirIno int64, offset uint64, count uint32) ([]byte, error) {
	const op = "service.fileSystemService.ReadDir"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("ReadDir",
		slog.String("token", token),
		slog.Int64("dir_ino", dirIno),
		slog.Uint64("offset", offset),
		slog.Uint64("count", uint64(count)),
	)

	limit := s.limit(count)

	var out []byte
	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		dir, err := checkDir(fs, dirIno)
		if err != nil {
			return err
		}

		buf := fs.FillDirectory(dir)
		if offset > uint64(len(buf)) {
			return newError(kerrors.EINVAL, "offset past end of directory")
		}
		start := int(offset)

		pos := 0
		for pos < start {
			_, next, err := binary.NextDirent(buf, pos)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			pos = next
		}
		if pos != start {
			return newError(kerrors.EINVAL, "offset is not an entry boundary")
		}

		end := start
		for end < len(buf) {
			_, next, err := binary.NextDirent(buf, end)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			if next-start > limit {
				break
			}
			end = next
		}
		if end == start && start < len(buf) {
			return newError(kerrors.EINVAL, "count too small for next entry")
		}

		out = buf[start:end]
		return nil
	})
	if err != nil {
		logger.Debug("ReadDir failed", slogext.Err(err), slog.Int64("dir_ino", dirIno))
		return nil, err
	}

	logger.Debug("ReadDir successful", slog.Int("bytes", len(out)))
	return out, nil
}

func (s *fileSystemService) CreateFile(ctx context.Context, token string, parentIno int64, name string, mode uint32) (*models.NodeMeta, error) {
	const op = "service.fileSystemService.CreateFile"

	return s.create(ctx, op, token, parentIno, name, func(fs *repository.Filesystem, parent int) int {
		idx := fs.CreateFile(name, parent)
		inode := fs.GetInode(idx)
		inode.Mode = models.S_IFREG | mode&permMask
		return idx
	})
}

func (s *fileSystemService) CreateDir(ctx context.Context, token string, parentIno int64, name string, mode uint32) (*models.NodeMeta, error) {
	const op = "service.fileSystemService.CreateDir"

	return s.create(ctx, op, token, parentIno, name, func(fs *repository.Filesystem, parent int) int {
		idx := fs.CreateDirectory(name, parent)
		inode := fs.GetInode(idx)
		inode.Mode = models.S_IFDIR | mode&permMask
		return idx
	})
}

func (s *fileSystemService) CreateSymlink(ctx context.Context, token string, parentIno int64, name string, target string) (*models.NodeMeta, error) {
	const op = "service.fileSystemService.CreateSymlink"

	if target == "" {
		return nil, newError(kerrors.EINVAL, "empty symlink target")
	}

	return s.create(ctx, op, token, parentIno, name, func(fs *repository.Filesystem, parent int) int {
		return fs.CreateSymlink(name, parent, target)
	})
}

func (s *fileSystemService) create(
	ctx context.Context,
	op string,
	token string,
	parentIno int64,
	name string,
	build func(fs *repository.Filesystem, parent int) int,
) (*models.NodeMeta, error) {
	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Create",
		slog.String("token", token),
		slog.Int64("parent_ino", parentIno),
		slog.String("name", name),
	)

	var meta *models.NodeMeta
	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		parent, err := checkDir(fs, parentIno)
		if err != nil {
			return err
		}
		if err := s.checkName(name); err != nil {
			return err
		}
		if fs.Search(parent, name) != repository.NotFound {
			return newError(kerrors.EEXIST, "file already exists")
		}

		meta = nodeMeta(fs, build(fs, parent))
		return nil
	})
	if err != nil {
		logger.Debug("Create failed", slogext.Err(err), slog.String("name", name))
		return nil, err
	}

	logger.Debug("Created successfully",
		slog.String("name", name),
		slog.Int64("ino", meta.Ino),
		slog.Uint64("qid_path", meta.Qid.Path),
	)
	return meta, nil
}

func (s *fileSystemService) Readlink(ctx context.Context, token string, ino int64) (string, error) {
	const op = "service.fileSystemService.Readlink"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Readlink", slog.String("token", token), slog.Int64("ino", ino))

	var target string
	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		idx, err := checkHandle(fs, ino)
		if err != nil {
			return err
		}
		inode := fs.GetInode(idx)
		if !inode.IsSymlink() {
			return newError(kerrors.EINVAL, "not a symlink")
		}
		target = inode.Symlink
		return nil
	})

	return target, err
}

func (s *fileSystemService) Unlink(ctx context.Context, token string, parentIno int64, name string) error {
	const op = "service.fileSystemService.Unlink"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Unlink",
		slog.String("token", token),
		slog.Int64("parent_ino", parentIno),
		slog.String("name", name),
	)

	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		parent, err := checkDir(fs, parentIno)
		if err != nil {
			return err
		}
		if err := checkTarget(fs, parent, name); err != nil {
			return err
		}
		if err := s.checkName(name); err != nil {
			return err
		}

		idx := fs.Search(parent, name)
		if idx == repository.NotFound {
			return newError(kerrors.ENOENT, "file not found")
		}
		if fs.GetInode(idx).IsDir() && len(fs.Children(idx)) > 0 {
			return newError(kerrors.ENOTEMPTY, "directory not empty")
		}

		fs.Unlink(idx)
		logger.Debug("Unlinked", slog.String("name", name), slog.Int("ino", idx))
		return nil
	})
	if err != nil {
		logger.Debug("Unlink failed", slogext.Err(err), slog.String("name", name))
	}

	return err
}

func (s *fileSystemService) Read(ctx context.Context, token string, ino int64, offset int64, count uint32) ([]byte, error) {
	const op = "service.fileSystemService.Read"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Read",
		slog.String("token", token),
		slog.Int64("ino", ino),
		slog.Int64("offset", offset),
		slog.Uint64("count", uint64(count)),
	)

	limit := s.limit(count)

	var data []byte
	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		idx, err := checkHandle(fs, ino)
		if err != nil {
			return err
		}
		if err := checkContent(fs.GetInode(idx)); err != nil {
			return err
		}
		if offset < 0 {
			return newError(kerrors.EINVAL, "invalid offset")
		}
		if offset > MaxFileSize {
			data = []byte{}
			return nil
		}

		data = fs.ReadAt(idx, int(offset), limit)
		return nil
	})
	if err != nil {
		logger.Debug("Read failed", slogext.Err(err), slog.Int64("ino", ino))
		return nil, err
	}

	logger.Debug("Read successful", slog.Int64("ino", ino), slog.Int("bytes_read", len(data)))
	return data, nil
}

func (s *fileSystemService) Write(ctx context.Context, token string, ino int64, offset int64, data []byte) (int64, error) {
	const op = "service.fileSystemService.Write"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Write",
		slog.String("token", token),
		slog.Int64("ino", ino),
		slog.Int64("offset", offset),
		slog.Int("length", len(data)),
	)

	var written int
	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		idx, err := checkHandle(fs, ino)
		if err != nil {
			return err
		}
		if err := checkContent(fs.GetInode(idx)); err != nil {
			return err
		}
		if offset < 0 {
			return newError(kerrors.EINVAL, "invalid offset")
		}
		if offset > MaxFileSize || int64(len(data)) > MaxFileSize-offset {
			return newError(kerrors.EFBIG, "file too large")
		}

		written = fs.WriteAt(idx, int(offset), data)
		return nil
	})
	if err != nil {
		logger.Debug("Write failed", slogext.Err(err), slog.Int64("ino", ino))
		return 0, err
	}

	logger.Debug("Write successful", slog.Int64("ino", ino), slog.Int("bytes_written", written))
	return int64(written), nil
}

func (s *fileSystemService) Rename(ctx context.Context, token string, srcParent int64, srcName string, destParent int64, destName string) error {
	const op = "service.fileSystemService.Rename"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Rename",
		slog.String("token", token),
		slog.Int64("src_parent", srcParent),
		slog.String("src_name", srcName),
		slog.Int64("dest_parent", destParent),
		slog.String("dest_name", destName),
	)

	err := s.withFS(op, token, false, func(fs *repository.Filesystem) error {
		from, err := checkDir(fs, srcParent)
		if err != nil {
			return err
		}
		to, err := checkDir(fs, destParent)
		if err != nil {
			return err
		}
		if err := checkTarget(fs, from, srcName); err != nil {
			return err
		}
		if err := checkTarget(fs, to, destName); err != nil {
			return err
		}
		if err := s.checkName(srcName); err != nil {
			return err
		}
		if err := s.checkName(destName); err != nil {
			return err
		}

		src := fs.Search(from, srcName)
		if src == repository.NotFound {
			return newError(kerrors.ENOENT, "file not found")
		}
		srcIsDir := fs.GetInode(src).IsDir()

		if dst := fs.Search(to, destName); dst != repository.NotFound && dst != src {
			dstIsDir := fs.GetInode(dst).IsDir()
			switch {
			case srcIsDir && !dstIsDir:
				return newError(kerrors.ENOTDIR, "destination is not a directory")
			case !srcIsDir && dstIsDir:
				return newError(kerrors.EISDIR, "destination is a directory")
			case dstIsDir && len(fs.Children(dst)) > 0:
				return newError(kerrors.ENOTEMPTY, "destination directory not empty")
			}
		}

		if srcIsDir && isAncestor(fs, src, to) {
			return newError(kerrors.EINVAL, "cannot move a directory into itself")
		}

		fs.Rename(from, srcName, to, destName)
		return nil
	})
	if err != nil {
		logger.Debug("Rename failed", slogext.Err(err))
		return err
	}

	logger.Debug("Renamed successfully", slog.String("src_name", srcName), slog.String("dest_name", destName))
	return nil
}

// withFS runs fn on the filesystem of token while holding its lock.
func (s *fileSystemService) withFS(op string, token string, create bool, fn func(fs *repository.Filesystem) error) error {
	start := time.Now()
	err := s.run(token, create, fn)
	s.metrics.ObserveOperation(op, err, time.Since(start))
	return err
}

func (s *fileSystemService) run(token string, create bool, fn func(fs *repository.Filesystem) error) error {
	var (
		inst *Instance
		err  error
	)

	if create {
		inst, err = s.registry.GetOrCreate(token)
		s.metrics.SetInstances(s.registry.Len())
	} else {
		inst, err = s.registry.Get(token)
	}
	if err != nil {
		return registryError(err)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	return fn(inst.fs)
}

func (s *fileSystemService) limit(count uint32) int {
	if count == 0 || int64(count) > int64(s.msize) {
		return s.msize
	}
	return int(count)
}

func registryError(err error) error {
	switch {
	case errors.Is(err, ErrInstanceNotFound):
		return newError(kerrors.ENOENT, err.Error())
	case errors.Is(err, ErrInstanceExists):
		return newError(kerrors.EEXIST, err.Error())
	case errors.Is(err, ErrTooManyInstances):
		return newError(kerrors.ENOSPC, err.Error())
	}
	return err
}
