package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
)

// VersionsHandler handles version store endpoints, mounted per object
type VersionsHandler struct {
	service contentpipe.Service
}

// NewVersionsHandler creates a new versions handler
func NewVersionsHandler(service contentpipe.Service) *VersionsHandler {
	return &VersionsHandler{service: service}
}

// Routes returns the router for version endpoints. Expects an {object_id}
// URL parameter from the parent router.
func (h *VersionsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateVersion)
	r.Get("/", h.ListVersions)
	r.Get("/compare", h.CompareVersions)
	r.Post("/{version}/restore", h.RestoreVersion)
	r.Delete("/{version}", h.DeleteVersion)
	r.Delete("/", h.DeleteAllVersions)

	return r
}

func objectIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "object_id"))
	return id, err == nil
}

func versionParam(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	return n, err == nil
}

// CreateVersion snapshots the object's current bytes as a new version
func (h *VersionsHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	objectID, ok := objectIDParam(r)
	if !ok {
		http.Error(w, "invalid object ID", http.StatusBadRequest)
		return
	}

	version, err := h.service.CreateVersion(r.Context(), objectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, version)
}

// ListVersions returns version metadata ordered by version number
func (h *VersionsHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	objectID, ok := objectIDParam(r)
	if !ok {
		http.Error(w, "invalid object ID", http.StatusBadRequest)
		return
	}

	versions, err := h.service.GetVersions(r.Context(), objectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, versions)
}

// RestoreVersion copies a version's bytes back over the live object
func (h *VersionsHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	objectID, ok := objectIDParam(r)
	if !ok {
		http.Error(w, "invalid object ID", http.StatusBadRequest)
		return
	}
	version, ok := versionParam(r, "version")
	if !ok {
		http.Error(w, "invalid version number", http.StatusBadRequest)
		return
	}

	object, err := h.service.RestoreVersion(r.Context(), objectID, version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, object)
}

// CompareVersions reports the byte-level difference between two versions.
// Query params: a, b.
func (h *VersionsHandler) CompareVersions(w http.ResponseWriter, r *http.Request) {
	objectID, ok := objectIDParam(r)
	if !ok {
		http.Error(w, "invalid object ID", http.StatusBadRequest)
		return
	}

	a, errA := strconv.Atoi(r.URL.Query().Get("a"))
	b, errB := strconv.Atoi(r.URL.Query().Get("b"))
	if errA != nil || errB != nil {
		http.Error(w, "query params a and b must be version numbers", http.StatusBadRequest)
		return
	}

	diff, err := h.service.CompareVersions(r.Context(), objectID, a, b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, diff)
}

// DeleteVersion removes a single version. Remaining versions keep their
// numbers.
func (h *VersionsHandler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	objectID, ok := objectIDParam(r)
	if !ok {
		http.Error(w, "invalid object ID", http.StatusBadRequest)
		return
	}
	version, ok := versionParam(r, "version")
	if !ok {
		http.Error(w, "invalid version number", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteVersion(r.Context(), objectID, version); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllVersions prunes the object's whole version history
func (h *VersionsHandler) DeleteAllVersions(w http.ResponseWriter, r *http.Request) {
	objectID, ok := objectIDParam(r)
	if !ok {
		http.Error(w, "invalid object ID", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteAllVersions(r.Context(), objectID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
