package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/config"
)

const revocationKeyPrefix = "faceid:revoked:"

// RedisRevocations shares the revocation list between service replicas.
// Keys expire together with the ticket.
type RedisRevocations struct {
	client *redis.Client
}

// NewRedisRevocations connects to Redis using the provided configuration.
func NewRedisRevocations(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisRevocations, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to reach redis at %s: %w", cfg.Addr, err)
	}
	if logger != nil {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return &RedisRevocations{client: client}, nil
}

// Revoke stores ticketID with a TTL matching the ticket's remaining lifetime.
func (r *RedisRevocations) Revoke(ctx context.Context, ticketID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revocationKeyPrefix+ticketID, "1", ttl).Err()
}

// IsRevoked reports whether ticketID is on the list.
func (r *RedisRevocations) IsRevoked(ctx context.Context, ticketID string) (bool, error) {
	n, err := r.client.Exists(ctx, revocationKeyPrefix+ticketID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping verifies Redis connectivity.
func (r *RedisRevocations) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisRevocations) Close() error {
	return r.client.Close()
}
