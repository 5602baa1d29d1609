package handler

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/S1riyS/memfs9p/server/internal/models"
	"github.com/S1riyS/memfs9p/server/internal/pkg/kerrors"
	"github.com/S1riyS/memfs9p/server/internal/service"
	"github.com/S1riyS/memfs9p/server/pkg/binary"
	"github.com/S1riyS/memfs9p/server/pkg/logging"
	"github.com/S1riyS/memfs9p/server/pkg/logging/slogext"
)

type Handler struct {
	service service.FileSystemService
}

func NewHandler(service service.FileSystemService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleInit(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token")
	if !ok {
		return
	}

	err := h.service.Init(r.Context(), q.Get("token"))
	writeResult(w, err, nil)
}

func (h *Handler) HandleDrop(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token")
	if !ok {
		return
	}

	err := h.service.Drop(r.Context(), q.Get("token"))
	writeResult(w, err, nil)
}

func (h *Handler) HandleGetRoot(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token")
	if !ok {
		return
	}

	meta, err := h.service.GetRoot(r.Context(), q.Get("token"))
	writeMeta(w, meta, err)
}

func (h *Handler) HandleWalk(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token")
	if !ok {
		return
	}

	meta, err := h.service.Walk(r.Context(), q.Get("token"), q.Get("path"))
	writeMeta(w, meta, err)
}

func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token", "parent", "name")
	if !ok {
		return
	}

	parent, err := strconv.ParseInt(q.Get("parent"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	meta, err := h.service.Lookup(r.Context(), q.Get("token"), parent, q.Get("name"))
	writeMeta(w, meta, err)
}

func (h *Handler) HandleGetAttr(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token", "ino")
	if !ok {
		return
	}

	ino, err := strconv.ParseInt(q.Get("ino"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	meta, err := h.service.GetAttr(r.Context(), q.Get("token"), ino)
	writeMeta(w, meta, err)
}

// HandleSetAttr changes any of mode, uid, gid and size. Absent parameters are left unchanged.
func (h *Handler) HandleSetAttr(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token", "ino")
	if !ok {
		return
	}

	ino, err := strconv.ParseInt(q.Get("ino"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	var attr models.SetAttr
	if attr.Mode, err = optionalUint32(q, "mode"); err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}
	if attr.UID, err = optionalUint32(q, "uid"); err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}
	if attr.GID, err = optionalUint32(q, "gid"); err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}
	if s := q.Get("size"); s != "" {
		size, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
			return
		}
		attr.Size = &size
	}

	meta, err := h.service.SetAttr(r.Context(), q.Get("token"), ino, attr)
	writeMeta(w, meta, err)
}

func (h *Handler) HandleReadDir(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token", "dir_ino", "offset")
	if !ok {
		return
	}

	dirIno, err := strconv.ParseInt(q.Get("dir_ino"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	offset, err := strconv.ParseUint(q.Get("offset"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	count, err := optionalUint32(q, "count")
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	data, err := h.service.ReadDir(r.Context(), q.Get("token"), dirIno, offset, valueOr(count, 0))
	writeResult(w, err, data)
}

func (h *Handler) HandleCreateFile(w http.ResponseWriter, r *http.Request) {
	h.handleCreate(w, r, h.service.CreateFile)
}

func (h *Handler) HandleMkdir(w http.ResponseWriter, r *http.Request) {
	h.handleCreate(w, r, h.service.CreateDir)
}

type createFunc func(ctx context.Context, token string, parentIno int64, name string, mode uint32) (*models.NodeMeta, error)

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, create createFunc) {
	q, ok := h.query(w, r, "token", "parent", "name", "mode")
	if !ok {
		return
	}

	parent, err := strconv.ParseInt(q.Get("parent"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	mode, err := strconv.ParseUint(q.Get("mode"), 10, 32)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	meta, err := create(r.Context(), q.Get("token"), parent, q.Get("name"), uint32(mode))
	writeMeta(w, meta, err)
}

func (h *Handler) HandleSymlink(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token", "parent", "name", "target")
	if !ok {
		return
	}

	parent, err := strconv.ParseInt(q.Get("parent"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	meta, err := h.service.CreateSymlink(r.Context(), q.Get("token"), parent, q.Get("name"), q.Get("target"))
	writeMeta(w, meta, err)
}

func (h *Handler) HandleReadlink(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token", "ino")
	if !ok {
		return
	}

	ino, err := strconv.ParseInt(q.Get("ino"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	target, err := h.service.Readlink(r.Context(), q.Get("token"), ino)
	writeResult(w, err, []byte(target))
}

func (h *Handler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token", "parent", "name")
	if !ok {
		return
	}

	parent, err := strconv.ParseInt(q.Get("parent"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	err = h.service.Unlink(r.Context(), q.Get("token"), parent, q.Get("name"))
	writeResult(w, err, nil)
}

func (h *Handler) HandleRead(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token", "ino", "len", "offset")
	if !ok {
		return
	}

	ino, err := strconv.ParseInt(q.Get("ino"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	length, err := strconv.ParseUint(q.Get("len"), 10, 32)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	offset, err := strconv.ParseInt(q.Get("offset"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	data, err := h.service.Read(r.Context(), q.Get("token"), ino, offset, uint32(length))
	writeResult(w, err, data)
}

func (h *Handler) HandleWrite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleWrite"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	q, ok := h.query(w, r, "token", "ino", "offset", "data")
	if !ok {
		return
	}

	ino, err := strconv.ParseInt(q.Get("ino"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	offset, err := strconv.ParseInt(q.Get("offset"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	data, err := base64.StdEncoding.DecodeString(q.Get("data"))
	if err != nil {
		logger.Warn("Failed to decode base64 data", slogext.Err(err))
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	written, err := h.service.Write(ctx, q.Get("token"), ino, offset, data)
	if err != nil {
		binary.WriteResponse(w, mapErrorToCode(err), nil)
		return
	}

	binary.WriteInt64Response(w, 0, written)
}

func (h *Handler) HandleRename(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r, "token", "src_parent", "src_name", "dest_parent", "dest_name")
	if !ok {
		return
	}

	srcParent, err := strconv.ParseInt(q.Get("src_parent"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	destParent, err := strconv.ParseInt(q.Get("dest_parent"), 10, 64)
	if err != nil {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	err = h.service.Rename(r.Context(), q.Get("token"), srcParent, q.Get("src_name"), destParent, q.Get("dest_name"))
	writeResult(w, err, nil)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","service":"memfs9p"}`))
}

// query checks the method and that every required parameter is present.
// It writes the error response itself and returns false on failure.
func (h *Handler) query(w http.ResponseWriter, r *http.Request, required ...string) (url.Values, bool) {
	const op = "handler.query"

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	q := r.URL.Query()
	for _, key := range required {
		if q.Get(key) == "" {
			logger := logging.GetLoggerFromContextWithOp(r.Context(), op)
			logger.Debug("Missing required parameter",
				slog.String("path", r.URL.Path),
				slog.String("param", key),
			)
			binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
			return nil, false
		}
	}

	return q, true
}

func writeMeta(w http.ResponseWriter, meta *models.NodeMeta, err error) {
	if err != nil {
		binary.WriteResponse(w, mapErrorToCode(err), nil)
		return
	}

	data, err := binary.EncodeNodeMeta(meta)
	if err != nil {
		binary.WriteResponse(w, kerrors.ENOMEM_NEG, nil)
		return
	}

	binary.WriteResponse(w, 0, data)
}

func writeResult(w http.ResponseWriter, err error, data []byte) {
	if err != nil {
		binary.WriteResponse(w, mapErrorToCode(err), nil)
		return
	}
	binary.WriteResponse(w, 0, data)
}

func optionalUint32(q url.Values, key string) (*uint32, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}

	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil, err
	}

	res := uint32(v)
	return &res, nil
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func mapErrorToCode(err error) int64 {
	return kerrors.Neg(service.CodeOf(err))
}
