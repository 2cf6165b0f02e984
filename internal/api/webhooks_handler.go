package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
)

// WebhooksHandler handles webhook subscription and delivery-log endpoints
type WebhooksHandler struct {
	repo contentpipe.Repository
}

// NewWebhooksHandler creates a new webhooks handler
func NewWebhooksHandler(repo contentpipe.Repository) *WebhooksHandler {
	return &WebhooksHandler{repo: repo}
}

// Routes returns the router for webhook endpoints
func (h *WebhooksHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSubscription)
	r.Get("/", h.ListSubscriptions)
	r.Get("/{id}", h.GetSubscription)
	r.Put("/{id}", h.UpdateSubscription)
	r.Delete("/{id}", h.DeleteSubscription)
	r.Get("/{id}/deliveries", h.ListDeliveries)

	return r
}

// UpdateSubscriptionRequest is the request body for modifying a subscription
type UpdateSubscriptionRequest struct {
	EndpointURL *string                 `json:"endpoint_url,omitempty"`
	Secret      *string                 `json:"secret,omitempty"`
	Active      *bool                   `json:"active,omitempty"`
	EventTypes  []contentpipe.EventType `json:"event_types,omitempty"`
}

func validateSubscription(endpointURL string, eventTypes []contentpipe.EventType) error {
	u, err := url.Parse(endpointURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint URL must be absolute http(s)", contentpipe.ErrInvalidRequest)
	}
	if len(eventTypes) == 0 {
		return fmt.Errorf("%w: at least one event type is required", contentpipe.ErrInvalidRequest)
	}
	for _, et := range eventTypes {
		if !contentpipe.ValidEventType(et) {
			return fmt.Errorf("%w: unknown event type %q", contentpipe.ErrInvalidRequest, et)
		}
	}
	return nil
}

// CreateSubscription registers a new endpoint. Subscriptions start active.
func (h *WebhooksHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req contentpipe.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := validateSubscription(req.EndpointURL, req.EventTypes); err != nil {
		writeError(w, r, err)
		return
	}

	now := time.Now().UTC()
	sub := &contentpipe.WebhookSubscription{
		ID:          uuid.New(),
		EndpointURL: req.EndpointURL,
		Secret:      req.Secret,
		Active:      true,
		EventTypes:  req.EventTypes,
		OwnerID:     req.OwnerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.repo.CreateSubscription(r.Context(), sub); err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sub)
}

// GetSubscription retrieves a subscription by ID
func (h *WebhooksHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid subscription ID", http.StatusBadRequest)
		return
	}

	sub, err := h.repo.GetSubscription(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, sub)
}

// UpdateSubscription applies a partial update; present fields replace the
// stored values.
func (h *WebhooksHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid subscription ID", http.StatusBadRequest)
		return
	}

	var req UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := h.repo.GetSubscription(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if req.EndpointURL != nil {
		sub.EndpointURL = *req.EndpointURL
	}
	if req.Secret != nil {
		sub.Secret = *req.Secret
	}
	if req.Active != nil {
		sub.Active = *req.Active
	}
	if req.EventTypes != nil {
		sub.EventTypes = req.EventTypes
	}

	if err := validateSubscription(sub.EndpointURL, sub.EventTypes); err != nil {
		writeError(w, r, err)
		return
	}

	sub.UpdatedAt = time.Now().UTC()
	if err := h.repo.UpdateSubscription(r.Context(), sub); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, sub)
}

// DeleteSubscription removes a subscription. Its delivery log remains.
func (h *WebhooksHandler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid subscription ID", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeleteSubscription(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions returns the subscriptions of one owner. Query param:
// owner_id.
func (h *WebhooksHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
	if err != nil {
		http.Error(w, "owner_id query param is required", http.StatusBadRequest)
		return
	}

	subs, err := h.repo.ListSubscriptions(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, subs)
}

// ListDeliveries returns the newest delivery records first. Query param:
// limit (default 100).
func (h *WebhooksHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid subscription ID", http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	records, err := h.repo.ListDeliveryRecords(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, records)
}
