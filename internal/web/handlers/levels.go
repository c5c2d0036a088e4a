package handlers

import (
	"net/http"

	"github.com/kozaktomas/faceid/internal/config"
)

// LevelsHandler serves the access-level catalogue
type LevelsHandler struct {
	levels config.LevelsConfig
}

// NewLevelsHandler creates a new levels handler
func NewLevelsHandler(levels config.LevelsConfig) *LevelsHandler {
	return &LevelsHandler{levels: levels}
}

// List handles GET /api/v1/levels
func (h *LevelsHandler) List(w http.ResponseWriter, r *http.Request) {
	levels := h.levels.Levels
	if levels == nil {
		levels = []config.LevelInfo{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"levels": levels})
}
