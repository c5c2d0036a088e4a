package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/faceid/internal/apperr"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxBodyBytes bounds request bodies; base64 images dominate the size.
const maxBodyBytes = 16 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// errorResponse is the body of every failed request outside /auth.
type errorResponse struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error"`
	Code  apperr.Code `json:"code"`
}

// respondError sends an error response with an explicit status and code.
func respondError(w http.ResponseWriter, status int, code apperr.Code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondAppError maps err through the apperr taxonomy. Internal errors are
// reported with a generic message.
func respondAppError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	respondError(w, apperr.HTTPStatus(e.Code), e.Code, e.Message)
}

// decodeJSON reads a size-limited JSON body into v. An empty body decodes to
// the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body too large")
		}
		return apperr.Wrap(apperr.CodeValidation, errInvalidRequestBody, err)
	}
	return nil
}
