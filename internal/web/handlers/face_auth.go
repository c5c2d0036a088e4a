package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/access"
	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/auth"
	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/extractor"
	"github.com/kozaktomas/faceid/internal/gallery"
	"github.com/kozaktomas/faceid/internal/matcher"
	"github.com/kozaktomas/faceid/internal/web/middleware"
)

// Reasons reported by /auth in addition to the access decision reasons.
const (
	reasonNoFace       = "no_face"
	reasonNoIdentities = "no_identities"
	reasonInvalid      = "invalid_request"
)

// FaceAuthHandler authenticates a face against the gallery, optionally
// bound to a password login ticket.
type FaceAuthHandler struct {
	store     *gallery.Store
	matcher   *matcher.Matcher
	policy    access.Policy
	extractor extractor.Extractor
	tickets   *auth.TicketManager
	levels    config.LevelsConfig
	logger    *zap.Logger
}

// FaceAuthDeps groups the collaborators of FaceAuthHandler.
type FaceAuthDeps struct {
	Store     *gallery.Store
	Matcher   *matcher.Matcher
	Policy    access.Policy
	Extractor extractor.Extractor
	Tickets   *auth.TicketManager
	Levels    config.LevelsConfig
	Logger    *zap.Logger
}

// NewFaceAuthHandler creates a new face auth handler
func NewFaceAuthHandler(deps FaceAuthDeps) *FaceAuthHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FaceAuthHandler{
		store:     deps.Store,
		matcher:   deps.Matcher,
		policy:    deps.Policy,
		extractor: deps.Extractor,
		tickets:   deps.Tickets,
		levels:    deps.Levels,
		logger:    logger,
	}
}

// FaceAuthRequest carries exactly one of Image and Embedding. Token is an
// alternative to the Authorization header.
type FaceAuthRequest struct {
	Image     string    `json:"image"`
	Embedding []float32 `json:"embedding"`
	Token     string    `json:"token"`
}

// FaceAuthResponse is the /auth body. Name and Distance are null unless the
// face was matched.
type FaceAuthResponse struct {
	Matched    bool        `json:"matched"`
	Name       *string     `json:"name"`
	Level      int         `json:"level"`
	LevelLabel string      `json:"level_label"`
	Distance   *float64    `json:"distance"`
	Reason     string      `json:"reason"`
	Message    string      `json:"message,omitempty"`
	Code       apperr.Code `json:"code,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Auth handles POST /auth.
func (h *FaceAuthHandler) Auth(w http.ResponseWriter, r *http.Request) {
	var req FaceAuthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondFailure(w, reasonInvalid, err)
		return
	}

	ticket, err := h.ticket(r, &req)
	if err != nil {
		h.respondFailure(w, string(access.ReasonLoginRequired), err)
		return
	}

	probe, err := h.probe(r, &req)
	if err != nil {
		if errors.Is(err, apperr.ErrNoFace) {
			h.respondDenied(w, reasonNoFace, "no face detected", apperr.CodeNoFace)
			return
		}
		h.respondFailure(w, reasonInvalid, err)
		return
	}

	g := h.store.All()
	if g.Len() == 0 {
		h.respondDenied(w, reasonNoIdentities, "no identities enrolled", "")
		return
	}

	result, err := h.matcher.Match(probe, g)
	if err != nil {
		h.respondFailure(w, reasonInvalid, err)
		return
	}

	var session *access.Principal
	if ticket != nil {
		session = &access.Principal{
			ID:    ticket.IdentityID,
			Name:  ticket.Name,
			Level: gallery.Level(ticket.Level),
		}
	}

	decision, err := h.policy.Decide(result, session)
	h.logDecision(r, result, decision, session, err)

	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeIdentityMismatch {
			e := apperr.From(err)
			h.respondDenied(w, string(decision.Reason), e.Message, e.Code)
			return
		}
		h.respondFailure(w, string(decision.Reason), err)
		return
	}

	if !decision.Granted {
		message := "face not recognized"
		if decision.Reason == access.ReasonAmbiguous {
			message = "face matches more than one identity"
		}
		h.respondDenied(w, string(decision.Reason), message, "")
		return
	}

	name := decision.Identity.Name
	distance := decision.Distance
	respondJSON(w, http.StatusOK, FaceAuthResponse{
		Matched:    true,
		Name:       &name,
		Level:      int(decision.Level),
		LevelLabel: h.levels.Label(int(decision.Level)),
		Distance:   &distance,
		Reason:     string(decision.Reason),
	})
}

// ticket resolves the login ticket from the request context, the
// Authorization header or the body token, in that order. No token at all is
// not an error; the access policy decides whether a session is required.
func (h *FaceAuthHandler) ticket(r *http.Request, req *FaceAuthRequest) (*auth.Ticket, error) {
	if t := middleware.GetTicketFromContext(r.Context()); t != nil {
		return t, nil
	}
	token := middleware.BearerToken(r)
	if token == "" {
		token = strings.TrimSpace(req.Token)
	}
	if token == "" {
		return nil, nil
	}
	t, err := h.tickets.Verify(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// probe returns the embedding to match, extracting it from the image when
// one was sent.
func (h *FaceAuthHandler) probe(r *http.Request, req *FaceAuthRequest) (gallery.Embedding, error) {
	hasImage := req.Image != ""
	hasEmbedding := len(req.Embedding) > 0
	if hasImage == hasEmbedding {
		return nil, apperr.Validation("exactly one of image or embedding is required")
	}
	if hasEmbedding {
		return gallery.Embedding(req.Embedding), nil
	}
	if h.extractor == nil {
		return nil, apperr.New(apperr.CodeExtractorUnavailable, "no face extractor configured")
	}
	image, err := extractor.DecodeImageInput(req.Image)
	if err != nil {
		return nil, err
	}
	return h.extractor.Extract(r.Context(), image)
}

// respondDenied answers 200 with matched=false. It is used for outcomes that
// are normal for a camera feed rather than client errors.
func (h *FaceAuthHandler) respondDenied(w http.ResponseWriter, reason, message string, code apperr.Code) {
	respondJSON(w, http.StatusOK, FaceAuthResponse{
		Matched:    false,
		LevelLabel: h.levels.Label(int(gallery.LevelNone)),
		Reason:     reason,
		Message:    message,
		Code:       code,
	})
}

// respondFailure answers with the status mapped from err.
func (h *FaceAuthHandler) respondFailure(w http.ResponseWriter, reason string, err error) {
	e := apperr.From(err)
	if e.Code == apperr.CodeInternal {
		h.logger.Error("face authentication failed", zap.Error(err))
	}
	respondJSON(w, apperr.HTTPStatus(e.Code), FaceAuthResponse{
		Matched:    false,
		LevelLabel: h.levels.Label(int(gallery.LevelNone)),
		Reason:     reason,
		Message:    e.Message,
		Code:       e.Code,
		Error:      e.Message,
	})
}

func (h *FaceAuthHandler) logDecision(r *http.Request, result matcher.Result, d access.Decision, session *access.Principal, err error) {
	fields := []zap.Field{
		zap.Bool("granted", d.Granted),
		zap.String("reason", string(d.Reason)),
		zap.Int("level", int(d.Level)),
		zap.Float64("closest", result.Closest),
		zap.Bool("ambiguous", result.Ambiguous),
		zap.String("remote", r.RemoteAddr),
	}
	if result.Identity != nil {
		fields = append(fields, zap.String("identity", result.Identity.ID), zap.String("name", result.Identity.Name))
	}
	if session != nil {
		fields = append(fields, zap.String("session_identity", session.ID))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		h.logger.Warn("face authentication denied", fields...)
		return
	}
	h.logger.Info("face authentication", fields...)
}
