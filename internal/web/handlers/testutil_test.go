package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/faceid/internal/access"
	"github.com/kozaktomas/faceid/internal/auth"
	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/enroll"
	"github.com/kozaktomas/faceid/internal/extractor"
	"github.com/kozaktomas/faceid/internal/gallery"
	"github.com/kozaktomas/faceid/internal/gallery/mock"
	"github.com/kozaktomas/faceid/internal/matcher"
)

const testTicketSecret = "handlers-test-secret-0123456789"

// testLevels mirrors the embedded catalogue.
func testLevels() config.LevelsConfig {
	return config.LevelsConfig{Levels: []config.LevelInfo{
		{Level: 1, Label: "Public information"},
		{Level: 2, Label: "Restricted data"},
		{Level: 3, Label: "Full access"},
	}}
}

// testEnv wires a store over a mock persister with every handler.
type testEnv struct {
	persister *mock.MockPersister
	store     *gallery.Store
	enroll    *enroll.Service
	tickets   *auth.TicketManager
	faceAuth  *FaceAuthHandler
	login     *AuthHandler
	enrollH   *EnrollHandler
}

// newTestEnv creates a handler environment. ext may be nil.
func newTestEnv(t *testing.T, ext extractor.Extractor, policy access.Policy) *testEnv {
	t.Helper()

	p := mock.NewMockPersister()
	store, err := gallery.Open(context.Background(), p, gallery.Options{
		Metric:             gallery.Euclidean,
		DuplicateThreshold: 0.3,
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	tickets, err := auth.NewTicketManager(testTicketSecret, time.Hour, auth.NewMemoryRevocations())
	if err != nil {
		t.Fatalf("failed to create ticket manager: %v", err)
	}

	logger := zap.NewNop()
	svc := enroll.NewService(store, ext, enroll.Options{BcryptCost: bcrypt.MinCost, Logger: logger})

	return &testEnv{
		persister: p,
		store:     store,
		enroll:    svc,
		tickets:   tickets,
		faceAuth: NewFaceAuthHandler(FaceAuthDeps{
			Store:     store,
			Matcher:   matcher.New(matcher.DefaultThreshold),
			Policy:    policy,
			Extractor: ext,
			Tickets:   tickets,
			Levels:    testLevels(),
			Logger:    logger,
		}),
		login:   NewAuthHandler(store, tickets, logger),
		enrollH: NewEnrollHandler(svc, logger),
	}
}

// mustEnroll enrolls an identity directly through the service.
func (e *testEnv) mustEnroll(t *testing.T, req enroll.Request) gallery.Summary {
	t.Helper()
	res, err := e.enroll.Enroll(context.Background(), req)
	if err != nil {
		t.Fatalf("failed to enroll %s: %v", req.Name, err)
	}
	return res.Identity
}

// jsonRequest creates a request with a JSON body
func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%v'", expectedMessage, result["error"])
	}
}

// assertJSONCode checks the stable error code of a JSON response
func assertJSONCode(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["code"] != expected {
		t.Errorf("expected code '%s', got '%v'", expected, result["code"])
	}
}

// enrollRequest builds a service-level enrollment request
func enrollRequest(name string, level gallery.Level, e gallery.Embedding) enroll.Request {
	return enroll.Request{Name: name, Level: level, Embedding: e}
}
