package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingLoginStore marks users whose password stage has passed but whose
// second factor is still outstanding. The marker is what entitles a user to
// verify a one-time code, redeem a backup code, or request a resend; without
// it those operations are refused outright, so neither code form can ever
// act as a first factor.
type PendingLoginStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPendingLoginStore(client redis.UniversalClient, prefix string) *PendingLoginStore {
	if prefix == "" {
		prefix = "cm"
	}
	return &PendingLoginStore{redis: client, prefix: prefix}
}

func (s *PendingLoginStore) key(userID string) string {
	return s.prefix + ":2fa:" + userID
}

// Open records a second-factor window for the user, replacing and re-arming
// any window already in flight.
func (s *PendingLoginStore) Open(ctx context.Context, userID string, ttl time.Duration) error {
	startedAt := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.redis.Set(ctx, s.key(userID), startedAt, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Check reports whether a window is open. Absent or expired markers report
// [ErrNoPending].
func (s *PendingLoginStore) Check(ctx context.Context, userID string) error {
	err := s.redis.Get(ctx, s.key(userID)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoPending
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Consume removes the marker once the second factor succeeds or two-factor
// state is torn down.
func (s *PendingLoginStore) Consume(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
