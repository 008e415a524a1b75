package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sbilibin2017/gw-items-api/internal/logger"
)

const revokedTokenKeyPrefix = "revoked_token:"

// TokenDenylistRepository remembers revoked token IDs in Redis until the
// token would have expired anyway.
type TokenDenylistRepository struct {
	client *redis.Client
}

// NewTokenDenylistRepository creates a new TokenDenylistRepository.
func NewTokenDenylistRepository(client *redis.Client) *TokenDenylistRepository {
	return &TokenDenylistRepository{client: client}
}

// Revoke marks tokenID as revoked for ttl. A non-positive ttl is a no-op
// because the token has already expired.
func (r *TokenDenylistRepository) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	key := revokedTokenKeyPrefix + tokenID
	err := r.client.Set(ctx, key, "1", ttl).Err()

	logger.Log.Infow("revoke token",
		"key", key,
		"ttl", ttl,
		"error", err,
	)

	return err
}

// IsRevoked reports whether tokenID has been revoked.
func (r *TokenDenylistRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	key := revokedTokenKeyPrefix + tokenID
	err := r.client.Get(ctx, key).Err()

	logger.Log.Debugw("check token revocation",
		"key", key,
		"error", err,
	)

	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
