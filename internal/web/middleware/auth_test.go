package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kozaktomas/faceid/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header   string
		expected string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer   abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(req); got != tt.expected {
				t.Errorf("BearerToken() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLoadTicket(t *testing.T) {
	tm, err := auth.NewTicketManager(testSecret, time.Hour, auth.NewMemoryRevocations())
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := tm.Issue("id-1", "Alice", 2)
	if err != nil {
		t.Fatal(err)
	}

	var seen *auth.Ticket
	handler := LoadTicket(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTicketFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no ticket", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth", nil))
		if rec.Code != http.StatusOK || seen != nil {
			t.Errorf("status %d, ticket %v", rec.Code, seen)
		}
	})

	t.Run("valid ticket", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodPost, "/auth", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || seen == nil || seen.IdentityID != "id-1" {
			t.Errorf("status %d, ticket %+v", rec.Code, seen)
		}
	})

	t.Run("invalid ticket", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodPost, "/auth", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status %d, want 401", rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body["code"] != "authentication_failed" || body["ok"] != false {
			t.Errorf("body = %v", body)
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name     string
		admin    string
		header   string
		expected int
	}{
		{"valid", "s3cret", "Bearer s3cret", http.StatusOK},
		{"wrong", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"disabled", "", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireAdmin(tt.admin)(okHandler()).ServeHTTP(rec, req)
			if rec.Code != tt.expected {
				t.Errorf("status %d, want %d", rec.Code, tt.expected)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://shell.example.com"})(okHandler())

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:3000", true},
		{"http://127.0.0.1:5173", true},
		{"https://shell.example.com", true},
		{"https://evil.example.com", false},
		{"http://localhost.evil.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			got := rec.Header().Get("Access-Control-Allow-Origin") == tt.origin
			if got != tt.allowed {
				t.Errorf("allowed = %v, want %v", got, tt.allowed)
			}
		})
	}

	req := httptest.NewRequest(http.MethodOptions, "/auth", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("preflight status %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(auth.NewLoginLimiter(1, 2))(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other client limited: %d", rec.Code)
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["path"] != "/health" {
		t.Errorf("fields = %v", fields)
	}
}
