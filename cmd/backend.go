package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/extractor"
	"github.com/kozaktomas/faceid/internal/gallery"
	"github.com/kozaktomas/faceid/internal/gallery/filestore"
	"github.com/kozaktomas/faceid/internal/gallery/postgres"
	"github.com/kozaktomas/faceid/internal/logging"
	"github.com/kozaktomas/faceid/internal/matcher"
)

// loadConfig loads and validates the environment configuration.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the zap logger; CLI commands default to console output.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

// openPersister returns the configured gallery backend.
func openPersister(ctx context.Context, cfg *config.Config, logger *zap.Logger) (gallery.Persister, error) {
	switch cfg.Gallery.Backend {
	case config.BackendPostgres:
		repo, err := postgres.Open(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("opening PostgreSQL gallery: %w", err)
		}
		return repo, nil
	default:
		fs, err := filestore.New(cfg.Gallery.Path)
		if err != nil {
			return nil, fmt.Errorf("opening gallery file: %w", err)
		}
		return fs, nil
	}
}

// openStore loads the gallery into memory. Callers must Close the store.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gallery.Store, error) {
	metric, err := gallery.ParseMetric(cfg.Gallery.Metric)
	if err != nil {
		return nil, err
	}

	p, err := openPersister(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := gallery.Open(ctx, p, gallery.Options{
		Dimension:          cfg.Gallery.Dimension,
		Metric:             metric,
		DuplicateThreshold: cfg.Gallery.DuplicateThreshold,
		Logger:             logger,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("loading gallery: %w", err)
	}
	return store, nil
}

// newMatcher builds the matcher from the gallery config.
func newMatcher(cfg *config.Config) *matcher.Matcher {
	m := matcher.New(cfg.Gallery.Threshold)
	m.TieTolerance = cfg.Gallery.TieTolerance
	m.IndexMinSamples = cfg.Gallery.IndexMinSamples
	m.CandidateLimit = cfg.Gallery.CandidateLimit
	return m
}

// newExtractor returns the HTTP face extractor client.
func newExtractor(cfg *config.Config) *extractor.Client {
	return extractor.NewClient(cfg.Extractor.URL, cfg.Extractor.Timeout, cfg.Extractor.MaxImageSize)
}
