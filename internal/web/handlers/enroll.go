package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/enroll"
	"github.com/kozaktomas/faceid/internal/extractor"
	"github.com/kozaktomas/faceid/internal/gallery"
)

// EnrollHandler handles identity enrollment
type EnrollHandler struct {
	service *enroll.Service
	logger  *zap.Logger
}

// NewEnrollHandler creates a new enroll handler
func NewEnrollHandler(service *enroll.Service, logger *zap.Logger) *EnrollHandler {
	return &EnrollHandler{service: service, logger: logger}
}

// EnrollRequest carries exactly one of Image (data URL or base64) and
// Embedding. Level defaults to 1.
type EnrollRequest struct {
	Name      string    `json:"name"`
	Level     *int      `json:"level"`
	Image     string    `json:"image"`
	Embedding []float32 `json:"embedding"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
}

// EnrollResponse is the /enroll body. Name, Level and Error are always
// present and null when they do not apply.
type EnrollResponse struct {
	OK      bool        `json:"ok"`
	ID      string      `json:"id,omitempty"`
	Name    *string     `json:"name"`
	Level   *int        `json:"level"`
	Samples int         `json:"samples,omitempty"`
	Error   *string     `json:"error"`
	Code    apperr.Code `json:"code,omitempty"`
}

// Enroll handles POST /enroll. A new identity answers 201, an extra sample
// for an existing identity answers 200.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var body EnrollRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.respondError(w, err)
		return
	}

	hasImage := body.Image != ""
	hasEmbedding := len(body.Embedding) > 0
	if hasImage == hasEmbedding {
		h.respondError(w, apperr.Validation("exactly one of image or embedding is required"))
		return
	}

	req := enroll.Request{
		Name:      body.Name,
		Level:     gallery.LevelPublic,
		Embedding: gallery.Embedding(body.Embedding),
		Email:     body.Email,
		Password:  body.Password,
	}
	if body.Level != nil {
		req.Level = gallery.Level(*body.Level)
	}

	var (
		res enroll.Result
		err error
	)
	if hasImage {
		image, decodeErr := extractor.DecodeImageInput(body.Image)
		if decodeErr != nil {
			h.respondError(w, decodeErr)
			return
		}
		res, err = h.service.EnrollImage(r.Context(), req, image)
	} else {
		res, err = h.service.Enroll(r.Context(), req)
	}
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInternal {
			h.logger.Error("enrollment failed", zap.String("name", sanitizeForLog(body.Name)), zap.Error(err))
		}
		h.respondError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	name := res.Identity.Name
	level := int(res.Identity.Level)
	respondJSON(w, status, EnrollResponse{
		OK:      true,
		ID:      res.Identity.ID,
		Name:    &name,
		Level:   &level,
		Samples: res.Identity.Samples,
	})
}

func (h *EnrollHandler) respondError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	message := e.Message
	respondJSON(w, apperr.HTTPStatus(e.Code), EnrollResponse{
		Error: &message,
		Code:  e.Code,
	})
}
