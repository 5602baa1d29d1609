package handler

import (
	"net/http"
)

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// System endpoints
	mux.HandleFunc("/health", h.HandleHealthCheck)

	// Instance lifecycle
	mux.HandleFunc("/api/init", h.HandleInit)
	mux.HandleFunc("/api/drop", h.HandleDrop)

	// Namespace
	mux.HandleFunc("/api/get_root", h.HandleGetRoot)
	mux.HandleFunc("/api/walk", h.HandleWalk)
	mux.HandleFunc("/api/lookup", h.HandleLookup)
	mux.HandleFunc("/api/getattr", h.HandleGetAttr)
	mux.HandleFunc("/api/setattr", h.HandleSetAttr)
	mux.HandleFunc("/api/readdir", h.HandleReadDir)
	mux.HandleFunc("/api/create_file", h.HandleCreateFile)
	mux.HandleFunc("/api/mkdir", h.HandleMkdir)
	mux.HandleFunc("/api/symlink", h.HandleSymlink)
	mux.HandleFunc("/api/readlink", h.HandleReadlink)
	mux.HandleFunc("/api/unlink", h.HandleUnlink)
	mux.HandleFunc("/api/rename", h.HandleRename)

	// Content
	mux.HandleFunc("/api/read", h.HandleRead)
	mux.HandleFunc("/api/write", h.HandleWrite)
}
