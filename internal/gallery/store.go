package gallery

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/auth"
)

// Options configures a Store.
type Options struct {
	// Dimension fixes the embedding dimension. Zero adopts the dimension of
	// the first stored sample.
	Dimension int
	// Metric is used for the near-duplicate check and copied into snapshots.
	Metric Metric
	// DuplicateThreshold rejects a sample that lies within this distance of a
	// sample owned by a different identity. Negative disables the check.
	DuplicateThreshold float64
	Logger             *zap.Logger
	Now                func() time.Time
}

// PutRequest describes one enrollment sample.
type PutRequest struct {
	Name         string
	Level        Level
	Embedding    Embedding
	Email        string
	PasswordHash string

	// Check runs under the write lock with the current identity (nil when the
	// name is new) and may veto the write. It must not modify existing.
	Check func(existing *Identity) error
}

// PutResult is the state of the identity after a successful Put.
type PutResult struct {
	Identity Identity
	Created  bool
}

// Store is the in-memory embedding store with write-through persistence.
// Reads are served from immutable snapshots; writes are serialized by a single
// lock.
type Store struct {
	mu        sync.RWMutex
	persister Persister
	opts      Options
	logger    *zap.Logger

	dim      int
	byKey    map[string]*Identity
	byEmail  map[string]string // normalized email -> key
	snapshot *Gallery          // nil when stale
	closed   bool
}

// Open loads every identity from p and returns a ready Store.
func Open(ctx context.Context, p Persister, opts Options) (*Store, error) {
	if opts.Metric == "" {
		opts.Metric = Euclidean
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	identities, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading gallery: %w", err)
	}

	s := &Store{
		persister: p,
		opts:      opts,
		logger:    logger,
		dim:       opts.Dimension,
		byKey:     make(map[string]*Identity, len(identities)),
		byEmail:   make(map[string]string),
	}

	samples := 0
	for i := range identities {
		id := identities[i].clone()
		if id.Key == "" {
			id.Key = NormalizeName(id.Name)
		}
		if _, dup := s.byKey[id.Key]; dup {
			return nil, fmt.Errorf("loading gallery: duplicate identity key %q", id.Key)
		}
		for _, sample := range id.Samples {
			if s.dim == 0 {
				s.dim = len(sample.Embedding)
			}
			if len(sample.Embedding) != s.dim {
				return nil, fmt.Errorf("loading gallery: identity %q has a %d-dim sample, store dimension is %d",
					id.Name, len(sample.Embedding), s.dim)
			}
		}
		samples += len(id.Samples)
		s.byKey[id.Key] = &id
		if id.Email != "" {
			s.byEmail[NormalizeEmail(id.Email)] = id.Key
		}
	}

	logger.Info("gallery loaded",
		zap.Int("identities", len(s.byKey)),
		zap.Int("samples", samples),
		zap.Int("dimension", s.dim),
		zap.String("metric", string(opts.Metric)),
	)
	return s, nil
}

// Put stores a new identity or appends a sample to an existing one.
func (s *Store) Put(ctx context.Context, req PutRequest) (PutResult, error) {
	key := NormalizeName(req.Name)
	if key == "" {
		return PutResult{}, apperr.Validation("name is required")
	}
	if err := req.Embedding.Validate(); err != nil {
		return PutResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return PutResult{}, fmt.Errorf("gallery store is closed")
	}
	if s.dim != 0 && len(req.Embedding) != s.dim {
		return PutResult{}, apperr.Newf(apperr.CodeInvalidEmbedding,
			"embedding dimension %d does not match store dimension %d", len(req.Embedding), s.dim)
	}

	existing := s.byKey[key]
	if req.Check != nil {
		if err := req.Check(existing); err != nil {
			return PutResult{}, err
		}
	}

	if owner, d, ok := s.nearestForeignSample(key, req.Embedding); ok && d <= s.opts.DuplicateThreshold {
		s.logger.Warn("rejected near-duplicate enrollment",
			zap.String("name", key), zap.String("collides_with", owner), zap.Float64("distance", d))
		return PutResult{}, apperr.New(apperr.CodeDuplicateEmbedding,
			"embedding is too close to a face enrolled under a different identity")
	}

	now := s.opts.Now()
	var next Identity
	if existing == nil {
		next = Identity{
			ID:           uuid.NewString(),
			Name:         strings.TrimSpace(req.Name),
			Key:          key,
			Level:        req.Level,
			Email:        NormalizeEmail(req.Email),
			PasswordHash: req.PasswordHash,
			CreatedAt:    now,
		}
	} else {
		next = existing.clone()
		if next.Email == "" {
			next.Email = NormalizeEmail(req.Email)
		}
		if next.PasswordHash == "" {
			next.PasswordHash = req.PasswordHash
		}
	}

	if next.Email != "" {
		if owner, ok := s.byEmail[next.Email]; ok && owner != key {
			return PutResult{}, apperr.New(apperr.CodeConflict, "email already registered")
		}
	}

	vec := make(Embedding, len(req.Embedding))
	copy(vec, req.Embedding)
	next.Samples = append(next.Samples, Sample{ID: uuid.NewString(), Embedding: vec, CreatedAt: now})
	next.UpdatedAt = now

	if err := s.persister.Save(ctx, next); err != nil {
		return PutResult{}, fmt.Errorf("persisting identity %q: %w", next.Name, err)
	}

	s.byKey[key] = &next
	if next.Email != "" {
		s.byEmail[next.Email] = key
	}
	if s.dim == 0 {
		s.dim = len(vec)
	}
	s.snapshot = nil

	return PutResult{Identity: next.clone(), Created: existing == nil}, nil
}

// nearestForeignSample finds the closest sample owned by an identity other
// than key. Callers hold the lock.
func (s *Store) nearestForeignSample(key string, e Embedding) (string, float64, bool) {
	if s.opts.DuplicateThreshold < 0 {
		return "", 0, false
	}
	best := math.Inf(1)
	owner := ""
	for k, id := range s.byKey {
		if k == key {
			continue
		}
		for _, sample := range id.Samples {
			if d := s.opts.Metric.Distance(e, sample.Embedding); d < best {
				best = d
				owner = k
			}
		}
	}
	return owner, best, owner != ""
}

// All returns the current gallery snapshot. The snapshot is shared between
// callers until the next write.
func (s *Store) All() *Gallery {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap != nil {
		return snap
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		identities := make([]Identity, 0, len(s.byKey))
		for _, id := range s.byKey {
			identities = append(identities, *id)
		}
		s.snapshot = NewGallery(identities, s.dim, s.opts.Metric)
	}
	return s.snapshot
}

// FindByCredentials returns the identity whose email or name equals login and
// whose password matches. Every failure yields the same error.
func (s *Store) FindByCredentials(login, password string) (Identity, error) {
	login = strings.TrimSpace(login)

	s.mu.RLock()
	var found *Identity
	if key, ok := s.byEmail[NormalizeEmail(login)]; ok {
		found = s.byKey[key]
	} else {
		found = s.byKey[NormalizeName(login)]
	}
	var id Identity
	if found != nil {
		id = found.clone()
	}
	s.mu.RUnlock()

	if found == nil || !id.HasPassword() {
		auth.CompareDummy(password)
		return Identity{}, apperr.New(apperr.CodeAuthentication, "invalid credentials")
	}
	if err := auth.ComparePassword(id.PasswordHash, password); err != nil {
		return Identity{}, apperr.New(apperr.CodeAuthentication, "invalid credentials")
	}
	return id, nil
}

// Get returns the identity enrolled under name.
func (s *Store) Get(name string) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[NormalizeName(name)]
	if !ok {
		return Identity{}, false
	}
	return id.clone(), true
}

// Delete removes an identity and all of its samples.
func (s *Store) Delete(ctx context.Context, name string) error {
	key := NormalizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[key]
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "identity %q not found", name)
	}
	if err := s.persister.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting identity %q: %w", name, err)
	}
	delete(s.byKey, key)
	if id.Email != "" {
		delete(s.byEmail, id.Email)
	}
	s.snapshot = nil
	s.logger.Info("identity deleted", zap.String("name", id.Name), zap.String("id", id.ID))
	return nil
}

// List returns summaries of every identity, sorted by key.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Summary, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.byKey[k].Summary())
	}
	return out
}

// Count returns the number of identities and samples.
func (s *Store) Count() (identities, samples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byKey {
		samples += len(id.Samples)
	}
	return len(s.byKey), samples
}

// Dimension returns the fixed embedding dimension (0 until adopted).
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Metric returns the store's distance metric.
func (s *Store) Metric() Metric {
	return s.opts.Metric
}

// Close flushes and closes the backend. The store rejects writes afterwards.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.persister.Flush(ctx); err != nil {
		_ = s.persister.Close()
		return fmt.Errorf("flushing gallery: %w", err)
	}
	if err := s.persister.Close(); err != nil {
		return fmt.Errorf("closing gallery backend: %w", err)
	}
	return nil
}
