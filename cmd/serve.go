package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/auth"
	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/enroll"
	"github.com/kozaktomas/faceid/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the faceid HTTP API.
The API enrolls identities, logs users in with a password and authenticates
faces against the gallery. Routes are served at the root and under /api/v1.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default SERVER_PORT or 5000)")
	serveCmd.Flags().String("host", "", "Host to bind to (default SERVER_HOST or 0.0.0.0)")
}

// resolveServeHostPort resolves port and host from flags, falling back to config.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) (int, string) {
	port := mustFlag(cmd.Flags().GetInt, "port")
	host := mustFlag(cmd.Flags().GetString, "host")
	if port == 0 {
		port = cfg.Server.Port
	}
	if host == "" {
		host = cfg.Server.Host
	}
	return port, host
}

// ticketSecret returns the configured secret or a random one. Tickets signed
// with a random secret do not survive a restart.
func ticketSecret(cfg *config.Config, logger *zap.Logger) (string, error) {
	if cfg.Auth.TicketSecret != "" {
		return cfg.Auth.TicketSecret, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating ticket secret: %w", err)
	}
	logger.Warn("AUTH_TICKET_SECRET not set, using a random secret; login tickets will not survive a restart")
	return hex.EncodeToString(buf), nil
}

// newRevocations keeps the revocation list in Redis when configured.
func newRevocations(ctx context.Context, cfg *config.Config, logger *zap.Logger) (auth.RevocationStore, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Info("ticket revocations kept in memory")
		return auth.NewMemoryRevocations(), func() {}, nil
	}
	r, err := auth.NewRedisRevocations(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return r, func() { _ = r.Close() }, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	identities, samples := store.Count()
	logger.Info("gallery loaded",
		zap.String("backend", cfg.Gallery.Backend),
		zap.Int("identities", identities),
		zap.Int("samples", samples),
		zap.Int("dimension", store.Dimension()),
		zap.String("metric", string(store.Metric())),
	)

	secret, err := ticketSecret(cfg, logger)
	if err != nil {
		store.Close(ctx)
		return err
	}
	revocations, closeRevocations, err := newRevocations(ctx, cfg, logger)
	if err != nil {
		store.Close(ctx)
		return err
	}
	defer closeRevocations()

	tickets, err := auth.NewTicketManager(secret, cfg.Auth.TicketTTL, revocations)
	if err != nil {
		store.Close(ctx)
		return fmt.Errorf("creating ticket manager: %w", err)
	}

	ext := newExtractor(cfg)
	port, host := resolveServeHostPort(cmd, cfg)

	server := web.NewServer(cfg, web.Deps{
		Store:     store,
		Enroll:    enroll.NewService(store, ext, enroll.Options{BcryptCost: cfg.Auth.BcryptCost, Logger: logger}),
		Matcher:   newMatcher(cfg),
		Extractor: ext,
		Tickets:   tickets,
		Limiter:   auth.NewLoginLimiter(cfg.Auth.LoginPerMinute, cfg.Auth.LoginBurst),
		Logger:    logger,
	}, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting faceid on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	serveErr := server.Start()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := store.Close(closeCtx); err != nil {
		logger.Error("closing gallery", zap.Error(err))
	}

	if serveErr != nil {
		return fmt.Errorf("starting server: %w", serveErr)
	}
	return nil
}
