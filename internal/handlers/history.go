package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/asl-api/internal/history"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

func (h *Handler) History(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, h.history.Snapshot())
}

func (h *Handler) source(params httprouter.Params) history.Source {
	src, err := history.ParseSource(params.ByName("source"))
	h.check(err)
	return src
}

func (h *Handler) HistorySource(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	src := h.source(params)
	www.SendJSON(w, h.history.Snapshot().Records(src))
}

// HistoryImage serves a recorded capture. Only files inside the source's
// capture directory are served.
func (h *Handler) HistoryImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	src := h.source(params)
	raw := www.QueryValue(r, "path")
	path, ok := h.history.ResolveImagePath(raw, src)
	if !ok || !within(h.history.CaptureDir(src), path) {
		www.Panic(http.StatusNotFound, "Image unavailable")
	}
	www.SendFile(w, r, path, "image/jpeg")
}

func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
