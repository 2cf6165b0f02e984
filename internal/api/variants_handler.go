package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
)

// VariantsHandler handles derived-asset endpoints, mounted per object
type VariantsHandler struct {
	service contentpipe.Service
}

// NewVariantsHandler creates a new variants handler
func NewVariantsHandler(service contentpipe.Service) *VariantsHandler {
	return &VariantsHandler{service: service}
}

// Routes returns the router for derived-asset endpoints. Expects an
// {object_id} URL parameter from the parent router.
func (h *VariantsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/presets/{preset}", h.RequestPreset)
	r.Post("/", h.RequestCustom)
	r.Get("/", h.ListVariants)
	r.Delete("/", h.DeleteAllVariants)

	return r
}

// RequestPreset returns the preset variant, generating it on a cache miss
func (h *VariantsHandler) RequestPreset(w http.ResponseWriter, r *http.Request) {
	objectID, ok := objectIDParam(r)
	if !ok {
		http.Error(w, "invalid object ID", http.StatusBadRequest)
		return
	}

	asset, err := h.service.RequestPreset(r.Context(), objectID, chi.URLParam(r, "preset"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, asset)
}

// RequestCustom generates a variant from caller-supplied transform options
func (h *VariantsHandler) RequestCustom(w http.ResponseWriter, r *http.Request) {
	objectID, ok := objectIDParam(r)
	if !ok {
		http.Error(w, "invalid object ID", http.StatusBadRequest)
		return
	}

	var opts contentpipe.VariantOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	asset, err := h.service.RequestCustom(r.Context(), objectID, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, asset)
}

// ListVariants returns every derived asset of the object
func (h *VariantsHandler) ListVariants(w http.ResponseWriter, r *http.Request) {
	objectID, ok := objectIDParam(r)
	if !ok {
		http.Error(w, "invalid object ID", http.StatusBadRequest)
		return
	}

	assets, err := h.service.ListVariants(r.Context(), objectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, assets)
}

// DeleteAllVariants invalidates the object's derived-asset cache
func (h *VariantsHandler) DeleteAllVariants(w http.ResponseWriter, r *http.Request) {
	objectID, ok := objectIDParam(r)
	if !ok {
		http.Error(w, "invalid object ID", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteAllVariants(r.Context(), objectID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
