// Package enroll validates new enrollment samples and hands them to the
// gallery store.
package enroll

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/auth"
	"github.com/kozaktomas/faceid/internal/extractor"
	"github.com/kozaktomas/faceid/internal/gallery"
)

const (
	MaxNameLength     = 128
	MinPasswordLength = 6
)

// Request is one enrollment sample with optional login credentials.
type Request struct {
	Name      string
	Level     gallery.Level
	Embedding gallery.Embedding
	Email     string
	Password  string
}

// Result is returned after a successful enrollment.
type Result struct {
	Identity gallery.Summary
	Created  bool
}

// Options configures a Service.
type Options struct {
	BcryptCost int
	Logger     *zap.Logger
}

// Service enrolls identities into a store.
type Service struct {
	store     *gallery.Store
	extractor extractor.Extractor
	cost      int
	logger    *zap.Logger
}

// NewService creates an enrollment service. ext may be nil when only
// precomputed embeddings are enrolled.
func NewService(store *gallery.Store, ext extractor.Extractor, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = auth.DefaultBcryptCost
	}
	return &Service{store: store, extractor: ext, cost: cost, logger: logger}
}

// Enroll stores req.Embedding under req.Name. Enrolling an existing name
// appends a sample; the level must match and, when the identity has a
// password, the same password must be supplied.
func (s *Service) Enroll(ctx context.Context, req Request) (Result, error) {
	if err := validate(&req); err != nil {
		return Result{}, err
	}

	var hash string
	if req.Password != "" {
		h, err := auth.HashPassword(req.Password, s.cost)
		if err != nil {
			return Result{}, fmt.Errorf("hashing password: %w", err)
		}
		hash = h
	}

	res, err := s.store.Put(ctx, gallery.PutRequest{
		Name:         req.Name,
		Level:        req.Level,
		Embedding:    req.Embedding,
		Email:        req.Email,
		PasswordHash: hash,
		Check: func(existing *gallery.Identity) error {
			return checkReEnrollment(existing, &req)
		},
	})
	if err != nil {
		s.logger.Info("enrollment rejected", zap.String("name", req.Name), zap.Error(err))
		return Result{}, err
	}

	id := res.Identity
	s.logger.Info("identity enrolled",
		zap.String("id", id.ID),
		zap.String("name", id.Name),
		zap.Int("level", int(id.Level)),
		zap.Int("samples", len(id.Samples)),
		zap.Bool("created", res.Created),
	)
	return Result{Identity: id.Summary(), Created: res.Created}, nil
}

// EnrollImage extracts the embedding from image and enrolls it.
func (s *Service) EnrollImage(ctx context.Context, req Request, image []byte) (Result, error) {
	if s.extractor == nil {
		return Result{}, apperr.New(apperr.CodeExtractorUnavailable, "no face extractor configured")
	}
	// Reject bad input before paying for extraction.
	probe := req
	probe.Embedding = gallery.Embedding{1}
	if err := validate(&probe); err != nil {
		return Result{}, err
	}

	embedding, err := s.extractor.Extract(ctx, image)
	if err != nil {
		return Result{}, err
	}
	req.Embedding = embedding
	return s.Enroll(ctx, req)
}

func validate(req *Request) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || gallery.NormalizeName(req.Name) == "" {
		return apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(req.Name) > MaxNameLength {
		return apperr.Newf(apperr.CodeValidation, "name must be at most %d characters", MaxNameLength)
	}
	if !req.Level.Enrollable() {
		return apperr.Newf(apperr.CodeValidation, "level must be 1, 2 or 3 (got %d)", req.Level)
	}
	if err := req.Embedding.Validate(); err != nil {
		return err
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email != "" {
		addr, err := mail.ParseAddress(req.Email)
		if err != nil || addr.Address != req.Email || !strings.Contains(req.Email[strings.LastIndexByte(req.Email, '@')+1:], ".") {
			return apperr.Validation("email address is invalid")
		}
	}
	if req.Password != "" && utf8.RuneCountInString(req.Password) < MinPasswordLength {
		return apperr.Newf(apperr.CodeValidation, "password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// checkReEnrollment runs under the store's write lock.
func checkReEnrollment(existing *gallery.Identity, req *Request) error {
	if existing == nil {
		return nil
	}
	if existing.Level != req.Level {
		return apperr.Newf(apperr.CodeValidation,
			"%s is enrolled at level %d; re-enrollment must use the same level", existing.Name, existing.Level)
	}
	if req.Email != "" && existing.Email != "" && gallery.NormalizeEmail(req.Email) != existing.Email {
		return apperr.Validation("email does not match the enrolled identity")
	}
	if existing.HasPassword() {
		if req.Password == "" {
			return apperr.New(apperr.CodeAuthentication, "password required to add samples to this identity")
		}
		if err := auth.ComparePassword(existing.PasswordHash, req.Password); err != nil {
			return apperr.New(apperr.CodeAuthentication, "invalid credentials")
		}
	}
	return nil
}
