package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/auth"
	"github.com/kozaktomas/faceid/internal/gallery"
	"github.com/kozaktomas/faceid/internal/web/middleware"
)

// AuthHandler handles password login and logout
type AuthHandler struct {
	store   *gallery.Store
	tickets *auth.TicketManager
	logger  *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(store *gallery.Store, tickets *auth.TicketManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{store: store, tickets: tickets, logger: logger}
}

// LoginRequest accepts the login under "login", "email" or "username".
type LoginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (l *LoginRequest) login() string {
	for _, s := range []string{l.Login, l.Email, l.Username} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// LoginUser is the identity returned by a successful login.
type LoginUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Level int    `json:"level"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	OK        bool        `json:"ok"`
	User      *LoginUser  `json:"user,omitempty"`
	Token     string      `json:"token,omitempty"`
	ExpiresAt string      `json:"expires_at,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      apperr.Code `json:"code,omitempty"`
}

// Login handles POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	login := req.login()
	if login == "" || req.Password == "" {
		respondAppError(w, apperr.Validation("login and password are required"))
		return
	}

	id, err := h.store.FindByCredentials(login, req.Password)
	if err != nil {
		h.logger.Info("login failed", zap.String("login", sanitizeForLog(login)), zap.String("remote", r.RemoteAddr))
		respondAppError(w, err)
		return
	}

	token, ticket, err := h.tickets.Issue(id.ID, id.Name, int(id.Level))
	if err != nil {
		h.logger.Error("issuing ticket", zap.String("identity", id.ID), zap.Error(err))
		respondAppError(w, err)
		return
	}

	h.logger.Info("login", zap.String("identity", id.ID), zap.String("name", id.Name), zap.String("ticket", ticket.ID))
	respondJSON(w, http.StatusOK, LoginResponse{
		OK: true,
		User: &LoginUser{
			ID:    id.ID,
			Name:  id.Name,
			Email: id.Email,
			Level: int(id.Level),
		},
		Token:     token,
		ExpiresAt: ticket.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// LogoutRequest may carry the ticket when no Authorization header is sent.
type LogoutRequest struct {
	Token string `json:"token"`
}

// Logout handles POST /logout by revoking the presented ticket.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		var req LogoutRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondAppError(w, err)
			return
		}
		token = strings.TrimSpace(req.Token)
	}
	if token == "" {
		respondAppError(w, apperr.Validation("token is required"))
		return
	}

	if err := h.tickets.Revoke(r.Context(), token); err != nil {
		if apperr.CodeOf(err) == apperr.CodeInternal {
			h.logger.Error("revoking ticket", zap.Error(err))
		}
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
