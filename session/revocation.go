package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList tracks individually revoked tokens by hash. Entries carry a
// TTL matching the token's own expiry, so the list never outgrows the set of
// tokens that could still be presented.
type RevocationList struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRevocationList(client redis.UniversalClient, prefix string) *RevocationList {
	if prefix == "" {
		prefix = "cm"
	}
	return &RevocationList{redis: client, prefix: prefix}
}

func (l *RevocationList) key(tokenHash [32]byte) string {
	return l.prefix + ":rvk:" + hex.EncodeToString(tokenHash[:])
}

// Revoke adds a token hash to the list until the token's natural expiry.
// Revoking an already-expired or already-revoked token is a no-op.
func (l *RevocationList) Revoke(ctx context.Context, tokenHash [32]byte, userID string, reason Reason, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	value := userID + ":" + reason.String()
	if err := l.redis.Set(ctx, l.key(tokenHash), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether a token hash is on the list. Backend failures
// surface as errors rather than a pass: callers must fail closed.
func (l *RevocationList) IsRevoked(ctx context.Context, tokenHash [32]byte) (bool, error) {
	err := l.redis.Get(ctx, l.key(tokenHash)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return true, nil
}
