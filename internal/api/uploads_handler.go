package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/upload"
)

// UploadsHandler handles chunked upload session endpoints
type UploadsHandler struct {
	assembler *upload.Assembler
	log       *logger.Logger
}

// NewUploadsHandler creates a new uploads handler
func NewUploadsHandler(assembler *upload.Assembler, log *logger.Logger) *UploadsHandler {
	return &UploadsHandler{assembler: assembler, log: log}
}

// Routes returns the router for upload session endpoints
func (h *UploadsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Init)
	r.Get("/{upload_id}", h.Progress)
	r.Put("/{upload_id}/chunks/{index}", h.UploadChunk)
	r.Post("/{upload_id}/complete", h.Finalize)

	return r
}

// InitUploadRequest is the request body for starting a chunked upload
type InitUploadRequest struct {
	FileName     string `json:"file_name"`
	DeclaredSize int64  `json:"declared_size"`
	ContentType  string `json:"content_type"`
	TargetPath   string `json:"target_path"`
	TotalChunks  int    `json:"total_chunks"`
	OwnerID      string `json:"owner_id,omitempty"`
}

// Init starts a new upload session
func (h *UploadsHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := h.assembler.Init(r.Context(), upload.InitRequest{
		OwnerID:      req.OwnerID,
		FileName:     req.FileName,
		DeclaredSize: req.DeclaredSize,
		ContentType:  req.ContentType,
		TargetPath:   req.TargetPath,
		TotalChunks:  req.TotalChunks,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, upload.Progress{
		SessionID:      session.ID,
		ChunksReceived: 0,
		TotalChunks:    session.TotalChunks,
	})
}

// Progress reports how many chunks a session has received
func (h *UploadsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.assembler.Progress(r.Context(), chi.URLParam(r, "upload_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, progress)
}

// UploadChunk accepts one chunk body. Chunks may arrive in any order and a
// resent index does not double-count.
func (h *UploadsHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "upload_id")

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid chunk index", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read chunk body", http.StatusBadRequest)
		return
	}

	progress, err := h.assembler.UploadChunk(r.Context(), sessionID, index, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, progress)
}

// Finalize assembles the chunks into a stored object
func (h *UploadsHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "upload_id")

	object, err := h.assembler.Finalize(r.Context(), sessionID)
	if err != nil {
		h.log.Error("finalize failed", "upload_id", sessionID, "error", err)
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, object)
}
