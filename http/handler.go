package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/modestbitboard/breadbox"
	"github.com/modestbitboard/breadbox/archive"
)

// FileRoute exposes one branch file of each item over GET and PUT.
type FileRoute struct {
	// Path is the route below /{id}/, e.g. "thumbnail" or
	// "files/{filename}".
	Path string
	// Branch is the item subdirectory the route reads and writes.
	Branch string
	// Filename is the fixed stored filename. Empty means the route's
	// {filename} parameter names the file.
	Filename string
	// OverwriteProtection rejects uploads that would replace an existing
	// file.
	OverwriteProtection bool
}

// Handler serves one archive's items and branch files.
type Handler struct {
	store        *archive.Store
	routes       []FileRoute
	browseBranch string
}

// NewHandler builds a handler for a store. browseBranch enables
// GET /{id}/files over that branch when non-empty.
func NewHandler(store *archive.Store, routes []FileRoute, browseBranch string) *Handler {
	return &Handler{
		store:        store,
		routes:       routes,
		browseBranch: browseBranch,
	}
}

// Router returns the archive's route tree, meant to be mounted under
// /archive/<name>.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.handleListIDs)
	r.Get("/all", h.handleAllInfo)
	r.Get("/size", h.handleSize)
	r.Get("/{id}", h.handleInfo)
	r.Patch("/{id}", h.handleUpdateInfo)

	if h.browseBranch != "" {
		r.Get("/{id}/files", h.handleBrowse)
	}

	for _, route := range h.routes {
		pattern := "/{id}/" + route.Path
		r.Get(pattern, h.handleDownload(route))
		r.Put(pattern, h.handleUpload(route))
	}

	return r
}

func (h *Handler) handleListIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.ListItems()
	if err != nil {
		h.internalError(w, "list items", err)
		return
	}
	if ids == nil {
		ids = []int{}
	}
	WriteJSON(w, http.StatusOK, ids)
}

func (h *Handler) handleAllInfo(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.ListItems()
	if err != nil {
		h.internalError(w, "list items", err)
		return
	}

	all := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		info, err := h.store.GetItemInfo(id)
		if err != nil {
			// Item removed between listing and read; skip it.
			if errors.Is(err, breadbox.ErrNotFound) {
				continue
			}
			h.internalError(w, "read item", err)
			return
		}
		all[strconv.Itoa(id)] = info
	}

	WriteJSON(w, http.StatusOK, all)
}

func (h *Handler) handleSize(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.ListItems()
	if err != nil {
		h.internalError(w, "list items", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"size": len(ids)})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(r)
	if !ok {
		Respond(w, "not_found", nil)
		return
	}

	info, err := h.store.GetItemInfo(id)
	if err != nil {
		if errors.Is(err, breadbox.ErrNotFound) {
			Respond(w, "not_in_archive", nil)
		} else {
			h.internalError(w, "read item", err)
		}
		return
	}

	WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) handleUpdateInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(r)
	if !ok {
		Respond(w, "not_found", nil)
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		Respond(w, "invalid_request", nil)
		return
	}

	created, err := h.store.Merge(id, patch)
	if err != nil {
		if errors.Is(err, breadbox.ErrInvalidInput) {
			Respond(w, "invalid_request", map[string]any{"reason": err.Error()})
		} else {
			h.internalError(w, "merge item", err)
		}
		return
	}

	if created {
		Respond(w, "resource_created", nil)
	} else {
		Respond(w, "resource_updated", nil)
	}
}

func (h *Handler) handleBrowse(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(r)
	if !ok {
		Respond(w, "not_found", nil)
		return
	}

	files, err := h.store.ListFiles(id, h.browseBranch)
	if err != nil {
		if errors.Is(err, breadbox.ErrNotFound) {
			Respond(w, "not_in_archive", nil)
		} else {
			h.internalError(w, "list files", err)
		}
		return
	}

	WriteJSON(w, http.StatusOK, files)
}

func (h *Handler) handleDownload(route FileRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := itemID(r)
		if !ok {
			Respond(w, "not_found", nil)
			return
		}

		file, err := h.store.Download(id, route.Branch, routeFilename(route, r))
		if err != nil {
			if errors.Is(err, breadbox.ErrNotFound) {
				Respond(w, "not_in_archive", nil)
			} else {
				h.internalError(w, "download", err)
			}
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
		http.ServeFile(w, r, file.Path)
	}
}

func (h *Handler) handleUpload(route FileRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := itemID(r)
		if !ok {
			Respond(w, "not_found", nil)
			return
		}

		filename := routeFilename(route, r)

		if route.OverwriteProtection {
			if _, err := h.store.Download(id, route.Branch, filename); err == nil {
				Respond(w, "already_exists", nil)
				return
			}
		}

		result, err := h.store.Upload(id, route.Branch, filename, r.Header.Get("Content-Type"), r.Body)
		if err != nil {
			var ctErr *archive.ContentTypeError
			switch {
			case errors.As(err, &ctErr):
				Respond(w, "wrong_content_type", map[string]any{"expected_mimetype": ctErr.Expected})
			case errors.Is(err, breadbox.ErrNotFound):
				Respond(w, "not_in_archive", nil)
			case errors.Is(err, breadbox.ErrInvalidInput):
				Respond(w, "invalid_request", nil)
			default:
				h.internalError(w, "upload", err)
			}
			return
		}

		Respond(w, "upload_succeeded", map[string]any{
			"file_size":    result.Size,
			"elapsed_time": result.Elapsed.Seconds(),
		})
	}
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	slog.Error("archive request failed", "archive", h.store.Name(), "op", op, "error", err)
	Respond(w, "internal_error", nil)
}

// itemID parses the {id} route parameter; ids are positive integers.
func itemID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func routeFilename(route FileRoute, r *http.Request) string {
	if route.Filename != "" {
		return route.Filename
	}
	return chi.URLParam(r, "filename")
}
