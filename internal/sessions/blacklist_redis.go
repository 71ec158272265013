package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "dentalhub:revoked:"

// package-level Redis client used for token revocation (optional)
var revocationClient *redis.Client

// SetRevocationClient configures the Redis client used for revocation.
// Safe to call with nil to disable revocation.
func SetRevocationClient(c *redis.Client) {
	revocationClient = c
}

// RevokeToken stores the token in the revocation list with TTL, normally the
// token's remaining lifetime. Without a Redis client this is a no-op.
func RevokeToken(ctx context.Context, token string, ttl time.Duration) error {
	if revocationClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return revocationClient.Set(ctx, revokedPrefix+token, "1", ttl).Err()
}

// IsTokenRevoked returns true when the token is in the revocation list.
// Without a Redis client it returns (false, nil).
func IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	if revocationClient == nil {
		return false, nil
	}
	exists, err := revocationClient.Exists(ctx, revokedPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
