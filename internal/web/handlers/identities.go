package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/gallery"
)

// IdentitiesHandler exposes administrative identity management
type IdentitiesHandler struct {
	store  *gallery.Store
	logger *zap.Logger
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(store *gallery.Store, logger *zap.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{store: store, logger: logger}
}

// List handles GET /api/v1/identities
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities := h.store.List()
	if identities == nil {
		identities = []gallery.Summary{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"identities": identities})
}

// Delete handles DELETE /api/v1/identities/{name}
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		respondAppError(w, apperr.Validation("name is required"))
		return
	}

	if err := h.store.Delete(r.Context(), name); err != nil {
		if apperr.CodeOf(err) == apperr.CodeInternal {
			h.logger.Error("deleting identity", zap.String("name", sanitizeForLog(name)), zap.Error(err))
		}
		respondAppError(w, err)
		return
	}

	h.logger.Info("identity deleted", zap.String("name", sanitizeForLog(name)))
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
