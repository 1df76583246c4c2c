package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChallengeStore holds in-flight WebAuthn ceremony state, keyed by a random
// challenge reference the client echoes back. Consumption is GETDEL, so a
// challenge can complete at most one ceremony regardless of how many clients
// race to finish it.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(client redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "cm"
	}
	return &ChallengeStore{redis: client, prefix: prefix}
}

func (s *ChallengeStore) key(kind, ref string) string {
	return s.prefix + ":chl:" + kind + ":" + ref
}

// Put stores serialized ceremony state under (kind, ref) with the given TTL.
// Kind separates registration from authentication ceremonies so a reference
// issued for one can never finish the other.
func (s *ChallengeStore) Put(ctx context.Context, kind, ref string, data []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(kind, ref), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Consume atomically fetches and deletes ceremony state. Missing or expired
// references report [ErrNoPending].
func (s *ChallengeStore) Consume(ctx context.Context, kind, ref string) ([]byte, error) {
	data, err := s.redis.GetDel(ctx, s.key(kind, ref)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoPending
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}
