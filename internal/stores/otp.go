package stores

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNoPending means no challenge exists for the key, or it expired.
	ErrNoPending = errors.New("no pending challenge")
	// ErrExhausted means the attempt budget is spent.
	ErrExhausted = errors.New("attempt budget exhausted")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("store unavailable")
)

// MismatchError reports a wrong code and the attempts still available.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("code mismatch, %d attempts remaining", e.Remaining)
}

// watchRetries bounds optimistic-transaction retries under contention.
const watchRetries = 5

// OTPStore keeps at most one pending one-time code per user. Issuing a new
// code overwrites any previous one, so only the latest code can verify.
// Attempt counting runs inside a Redis WATCH transaction: two concurrent
// verifications of the same pending code cannot both slip under the budget.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPStore(client redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "cm"
	}
	return &OTPStore{redis: client, prefix: prefix}
}

func (s *OTPStore) key(userID string) string {
	return s.prefix + ":otp:" + userID
}

// pending code record: 32-byte hash, u16 attempts, i64 expiry.
func encodeOTP(codeHash [32]byte, attempts int, expiresAt int64) []byte {
	buf := make([]byte, 0, 42)
	buf = append(buf, codeHash[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(attempts))
	buf = binary.BigEndian.AppendUint64(buf, uint64(expiresAt))
	return buf
}

func decodeOTP(data []byte) (codeHash [32]byte, attempts int, expiresAt int64, err error) {
	if len(data) != 42 {
		return codeHash, 0, 0, errors.New("corrupt otp record")
	}
	copy(codeHash[:], data[:32])
	attempts = int(binary.BigEndian.Uint16(data[32:34]))
	expiresAt = int64(binary.BigEndian.Uint64(data[34:42]))
	return codeHash, attempts, expiresAt, nil
}

// Put stores a fresh pending code, replacing any existing one.
func (s *OTPStore) Put(ctx context.Context, userID string, codeHash [32]byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Unix()
	err := s.redis.Set(ctx, s.key(userID), encodeOTP(codeHash, 0, expiresAt), ttl).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Verify checks a submitted code hash against the pending record. A match
// deletes the record so the code is single-use. A mismatch burns one attempt
// and returns [MismatchError] with the remaining budget; once the budget is
// spent every further attempt, right code included, reports [ErrExhausted]
// until the record ages out with its TTL.
//
// The read-check-write runs under WATCH and retries on conflict, so a burst
// of concurrent wrong guesses consumes exactly one attempt each.
func (s *OTPStore) Verify(ctx context.Context, userID string, submittedHash [32]byte, maxAttempts int) error {
	key := s.key(userID)

	for attempt := 0; attempt < watchRetries; attempt++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrNoPending
				}
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}

			storedHash, attempts, expiresAt, err := decodeOTP(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > expiresAt {
				_, _ = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return ErrNoPending
			}
			if attempts >= maxAttempts {
				return ErrExhausted
			}

			if subtle.ConstantTimeCompare(storedHash[:], submittedHash[:]) == 1 {
				_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			// The record survives exhaustion so the caller keeps seeing the
			// attempt budget, not a missing challenge.
			attempts++
			_, pipeErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encodeOTP(storedHash, attempts, expiresAt), redis.KeepTTL)
				return nil
			})
			if pipeErr != nil {
				return pipeErr
			}
			if attempts >= maxAttempts {
				return ErrExhausted
			}
			return &MismatchError{Remaining: maxAttempts - attempts}
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("%w: transaction contention", ErrUnavailable)
}

// Clear drops any pending code for the user.
func (s *OTPStore) Clear(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
