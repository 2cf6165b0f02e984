package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
)

// FilesHandler handles the path-addressed content store endpoints
type FilesHandler struct {
	service contentpipe.Service
	log     *logger.Logger
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(service contentpipe.Service, log *logger.Logger) *FilesHandler {
	return &FilesHandler{service: service, log: log}
}

// Routes returns the router for file endpoints
func (h *FilesHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Upload)

	r.Get("/blob/*", h.Download)
	r.Put("/blob/*", h.Overwrite)
	r.Delete("/blob/*", h.Delete)
	r.Get("/meta/*", h.Stat)

	return r
}

// Upload stores a new file from a multipart form. Fields: file (required),
// path (required), owner_id (optional).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	targetPath := r.FormValue("path")
	if targetPath == "" {
		targetPath = header.Filename
	}

	var ownerID uuid.UUID
	if raw := r.FormValue("owner_id"); raw != "" {
		ownerID, err = uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid owner ID", http.StatusBadRequest)
			return
		}
	}

	object, err := h.service.Save(r.Context(), contentpipe.SaveRequest{
		Data:        file,
		TargetPath:  targetPath,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		OwnerID:     ownerID,
	})
	if err != nil {
		h.log.Error("upload failed", "path", targetPath, "error", err)
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, object)
}

// Download streams file bytes. A single Range header of the form
// bytes=a-b, bytes=a- or bytes=-n yields a 206 partial response.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		rc, object, err := h.service.Read(r.Context(), path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", object.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(object.Size, 10))
		w.Header().Set("Accept-Ranges", "bytes")
		if _, err := io.Copy(w, rc); err != nil {
			h.log.Warn("download interrupted", "path", path, "error", err)
		}
		return
	}

	object, err := h.service.Stat(r.Context(), path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	start, end, err := parseRange(rangeHeader, object.Size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", object.Size))
		writeError(w, r, err)
		return
	}

	rc, _, err := h.service.ReadRange(r.Context(), path, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", object.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, object.Size))
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("range download interrupted", "path", path, "error", err)
	}
}

// Stat returns object metadata without the bytes
func (h *FilesHandler) Stat(w http.ResponseWriter, r *http.Request) {
	object, err := h.service.Stat(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, object)
}

// Overwrite replaces the bytes of an existing file with the request body
func (h *FilesHandler) Overwrite(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")

	object, err := h.service.Update(r.Context(), contentpipe.UpdateRequest{
		Path:        path,
		Data:        r.Body,
		ContentType: r.Header.Get("Content-Type"),
	})
	if err != nil {
		h.log.Error("overwrite failed", "path", path, "error", err)
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, object)
}

// Delete removes a file together with its versions and derived assets
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")

	if err := h.service.Delete(r.Context(), path); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List returns a metadata page. Query params: dir, recursive, page, limit.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	req := contentpipe.ListRequest{
		Dir:       r.URL.Query().Get("dir"),
		Recursive: r.URL.Query().Get("recursive") == "true",
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		req.Page, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		req.Limit, _ = strconv.Atoi(raw)
	}

	result, err := h.service.List(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// parseRange parses a single-range bytes= header into inclusive offsets
func parseRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("%w: unsupported range %q", contentpipe.ErrRangeNotSatisfiable, header)
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: malformed range %q", contentpipe.ErrRangeNotSatisfiable, header)
	}

	// Suffix form bytes=-n asks for the final n bytes
	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("%w: malformed range %q", contentpipe.ErrRangeNotSatisfiable, header)
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("%w: malformed range %q", contentpipe.ErrRangeNotSatisfiable, header)
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: malformed range %q", contentpipe.ErrRangeNotSatisfiable, header)
		}
		if end >= size {
			end = size - 1
		}
	}

	if start >= size || end < start {
		return 0, 0, fmt.Errorf("%w: bytes %s of %d", contentpipe.ErrRangeNotSatisfiable, spec, size)
	}
	return start, end, nil
}
