package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/auth"
)

type contextKey string

const ticketContextKey contextKey = "ticket"

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// LoadTicket verifies a bearer login ticket when one is presented and stores
// it in the request context. Requests without a ticket pass through; an
// invalid ticket is rejected.
func LoadTicket(tm *auth.TicketManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ticket, err := tm.Verify(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ticketContextKey, &ticket)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTicketFromContext retrieves the login ticket from the request context
func GetTicketFromContext(ctx context.Context) *auth.Ticket {
	ticket, ok := ctx.Value(ticketContextKey).(*auth.Ticket)
	if !ok {
		return nil
	}
	return ticket
}

// SetTicketInContext adds a ticket to the context.
// This is primarily for testing - use LoadTicket middleware in production.
func SetTicketInContext(ctx context.Context, ticket *auth.Ticket) context.Context {
	return context.WithValue(ctx, ticketContextKey, ticket)
}

// RequireAdmin guards administrative routes with a static bearer token.
func RequireAdmin(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if adminToken == "" || token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				writeError(w, apperr.New(apperr.CodeAuthentication, "unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError sends the same error shape as the handlers package.
func writeError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	writeJSONError(w, apperr.HTTPStatus(e.Code), e)
}

func writeJSONError(w http.ResponseWriter, status int, e *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": e.Message,
		"code":  e.Code,
	})
}
