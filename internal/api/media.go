package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/eventdesk/internal/media"
)

type mediaKeysRequest struct {
	Keys []string `json:"keys"`
}

type folderView struct {
	Path        string         `json:"path"`
	Leaf        bool           `json:"leaf"`
	Breadcrumbs []media.Crumb  `json:"breadcrumbs"`
	Children    []media.Folder `json:"children"`
}

// handleMediaFolders returns the whole tree, or one folder's view when path
// is given.
func (s *Server) handleMediaFolders(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		unavailable(w, "media browser")
		return
	}
	tree := s.media.Tree()

	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"root":    tree.Root,
			"folders": tree.Folders,
			"leaves":  tree.Leaves(),
		})
		return
	}

	crumbs, err := tree.Breadcrumbs(path)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	children, err := tree.Children(path)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if children == nil {
		children = []media.Folder{}
	}
	writeJSON(w, http.StatusOK, folderView{
		Path:        path,
		Leaf:        tree.IsLeaf(path),
		Breadcrumbs: crumbs,
		Children:    children,
	})
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		unavailable(w, "media browser")
		return
	}
	prefix := r.URL.Query().Get("prefix")
	files, err := s.media.List(r.Context(), prefix)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "files": files})
	case errors.Is(err, media.ErrUnknownFolder):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, media.ErrNotBrowsable):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeUpstreamError(w, "list media", err)
	}
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		unavailable(w, "media browser")
		return
	}
	key := r.URL.Query().Get("key")
	err := s.media.Delete(r.Context(), key)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"deleted": key})
	case errors.Is(err, media.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeUpstreamError(w, "delete media", err)
	}
}

// handleDeleteManyMedia deletes every key and reports per-key outcomes.
func (s *Server) handleDeleteManyMedia(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		unavailable(w, "media browser")
		return
	}
	var req mediaKeysRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Keys) == 0 {
		writeError(w, http.StatusBadRequest, "keys are required")
		return
	}

	results := s.media.DeleteMany(r.Context(), req.Keys)
	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": len(results) - failed,
		"failed":  failed,
		"results": results,
	})
}

// handleArchiveMedia builds the zip in memory so a failed fetch can still be
// reported with a proper status.
func (s *Server) handleArchiveMedia(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		unavailable(w, "media browser")
		return
	}
	var req mediaKeysRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Keys) == 0 {
		writeError(w, http.StatusBadRequest, "keys are required")
		return
	}

	var buf bytes.Buffer
	if err := s.media.Archive(r.Context(), &buf, req.Keys); err != nil {
		if errors.Is(err, media.ErrInvalidKey) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeUpstreamError(w, "archive media", err)
		return
	}

	name := fmt.Sprintf("media-%s.zip", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
