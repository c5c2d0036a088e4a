package handlers

import (
	"net/http"

	"github.com/kozaktomas/faceid/internal/gallery"
)

// HealthHandler reports liveness together with gallery counts.
type HealthHandler struct {
	store *gallery.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store *gallery.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// HealthResponse is the health check body. Users counts identities and
// Registered counts enrolled face samples.
type HealthResponse struct {
	Status     string `json:"status"`
	Users      int    `json:"users"`
	Registered int    `json:"registered"`
}

// Check handles the health check endpoint.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	identities, samples := h.store.Count()
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Users:      identities,
		Registered: samples,
	})
}
