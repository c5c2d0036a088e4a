package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/faceid/internal/access"
	"github.com/kozaktomas/faceid/internal/gallery"
)

func envWithAlice(t *testing.T) (*testEnv, gallery.Summary) {
	t.Helper()
	env := newTestEnv(t, nil, access.Policy{})
	req := enrollRequest("Alice", 2, gallery.Embedding{1, 0, 0, 0})
	req.Email = "alice@example.com"
	req.Password = "secret1"
	return env, env.mustEnroll(t, req)
}

func TestAuthHandler_Login_Success(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"by email", `{"login": "alice@example.com", "password": "secret1"}`},
		{"by name", `{"login": "alice", "password": "secret1"}`},
		{"email field", `{"email": "ALICE@example.com", "password": "secret1"}`},
		{"username field", `{"username": "Alice", "password": "secret1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, alice := envWithAlice(t)
			recorder := httptest.NewRecorder()

			env.login.Login(recorder, jsonRequest("POST", "/login", tt.body))

			assertStatusCode(t, recorder, http.StatusOK)
			assertContentType(t, recorder, "application/json")

			var response LoginResponse
			parseJSONResponse(t, recorder, &response)

			if !response.OK {
				t.Fatal("expected ok to be true")
			}
			if response.User == nil || response.User.ID != alice.ID || response.User.Level != 2 {
				t.Errorf("unexpected user: %+v", response.User)
			}
			if response.User.Email != "alice@example.com" {
				t.Errorf("expected email 'alice@example.com', got '%s'", response.User.Email)
			}
			if _, err := time.Parse(time.RFC3339, response.ExpiresAt); err != nil {
				t.Errorf("expected RFC3339 expires_at, got '%s'", response.ExpiresAt)
			}

			ticket, err := env.tickets.Verify(context.Background(), response.Token)
			if err != nil {
				t.Fatalf("issued token does not verify: %v", err)
			}
			if ticket.IdentityID != alice.ID {
				t.Errorf("expected ticket for %s, got %s", alice.ID, ticket.IdentityID)
			}
		})
	}
}

func TestAuthHandler_Login_Failures(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		statusCode int
		code       string
	}{
		{"missing login", `{"login": "", "password": "secret1"}`, http.StatusBadRequest, "validation_failed"},
		{"missing password", `{"login": "alice"}`, http.StatusBadRequest, "validation_failed"},
		{"invalid json", `{"login": `, http.StatusBadRequest, "validation_failed"},
		{"wrong password", `{"login": "alice", "password": "wrong-one"}`, http.StatusUnauthorized, "authentication_failed"},
		{"unknown user", `{"login": "nobody@example.com", "password": "secret1"}`, http.StatusUnauthorized, "authentication_failed"},
		{"no password set", `{"login": "bob", "password": "secret1"}`, http.StatusUnauthorized, "authentication_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := envWithAlice(t)
			env.mustEnroll(t, enrollRequest("Bob", 1, gallery.Embedding{0, 1, 0, 0}))
			recorder := httptest.NewRecorder()

			env.login.Login(recorder, jsonRequest("POST", "/login", tt.body))

			assertStatusCode(t, recorder, tt.statusCode)
			assertJSONCode(t, recorder, tt.code)

			var response LoginResponse
			parseJSONResponse(t, recorder, &response)
			if response.OK || response.Token != "" {
				t.Errorf("expected no token on failure, got %+v", response)
			}
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Run("bearer token", func(t *testing.T) {
		env, alice := envWithAlice(t)
		token, _, err := env.tickets.Issue(alice.ID, alice.Name, int(alice.Level))
		if err != nil {
			t.Fatal(err)
		}

		req := httptest.NewRequest("POST", "/logout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		recorder := httptest.NewRecorder()
		env.login.Logout(recorder, req)

		assertStatusCode(t, recorder, http.StatusOK)
		if _, err := env.tickets.Verify(context.Background(), token); err == nil {
			t.Error("expected ticket to be revoked")
		}
	})

	t.Run("body token", func(t *testing.T) {
		env, alice := envWithAlice(t)
		token, _, err := env.tickets.Issue(alice.ID, alice.Name, int(alice.Level))
		if err != nil {
			t.Fatal(err)
		}

		recorder := httptest.NewRecorder()
		env.login.Logout(recorder, jsonRequest("POST", "/logout", `{"token": "`+token+`"}`))

		assertStatusCode(t, recorder, http.StatusOK)
		if _, err := env.tickets.Verify(context.Background(), token); err == nil {
			t.Error("expected ticket to be revoked")
		}
	})

	t.Run("missing token", func(t *testing.T) {
		env, _ := envWithAlice(t)
		recorder := httptest.NewRecorder()
		env.login.Logout(recorder, httptest.NewRequest("POST", "/logout", nil))
		assertStatusCode(t, recorder, http.StatusBadRequest)
	})

	t.Run("garbage token", func(t *testing.T) {
		env, _ := envWithAlice(t)
		recorder := httptest.NewRecorder()
		env.login.Logout(recorder, jsonRequest("POST", "/logout", `{"token": "not-a-jwt"}`))
		assertStatusCode(t, recorder, http.StatusUnauthorized)
		assertJSONCode(t, recorder, "authentication_failed")
	})
}
