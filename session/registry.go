package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session exists for a key.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps backend failures so callers can distinguish
// outages from misses.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Registry is the Redis-backed session store. One record per successful
// authentication, keyed by session ID, with a per-user index set. Records
// expire with the Redis TTL, which is how expired sessions are physically
// removed (passive garbage collection).
type Registry struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRegistry(client redis.UniversalClient, prefix string) *Registry {
	if prefix == "" {
		prefix = "cm"
	}
	return &Registry{redis: client, prefix: prefix}
}

func (r *Registry) key(sessionID string) string {
	return r.prefix + ":s:" + sessionID
}

func (r *Registry) userKey(userID string) string {
	return r.prefix + ":u:" + userID
}

// Save persists a new session with TTL through its expiry and indexes it
// under the owning user.
func (r *Registry) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, r.userKey(sess.UserID), sess.SessionID)
		// The index outlives its members by at most the refresh window; it
		// is pruned on every read and re-armed on every save.
		pipe.Expire(ctx, r.userKey(sess.UserID), ttl+24*time.Hour)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get retrieves a session by ID. Expired records are deleted and reported
// as not found.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.redis.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	if time.Now().Unix() > sess.ExpiresAt {
		_ = r.Delete(ctx, sess.UserID, sessionID)
		return nil, ErrNotFound
	}
	return sess, nil
}

// Update rewrites a session record in place, preserving the remaining TTL.
// Used for activity stamps, token rotation, and invalidation. Updating a
// vanished session is not an error: the record already reached its terminal
// state by expiry.
func (r *Registry) Update(ctx context.Context, sess *Session) error {
	key := r.key(sess.SessionID)

	pttl, err := r.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if pttl <= 0 {
		return nil
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := r.redis.Set(ctx, key, data, pttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Touch refreshes the last-activity timestamp.
func (r *Registry) Touch(ctx context.Context, sess *Session) error {
	sess.LastActivity = time.Now().Unix()
	return r.Update(ctx, sess)
}

// MarkInactive flips the active flag and stamps the termination reason and
// logout time. The record stays until its natural TTL so session listings
// can show how it ended. Idempotent: a second call with any reason leaves
// the first reason in place.
func (r *Registry) MarkInactive(ctx context.Context, sessionID string, reason Reason) error {
	sess, err := r.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !sess.Active {
		return nil
	}

	sess.Active = false
	sess.Reason = reason
	sess.LogoutAt = time.Now().Unix()

	// The record and its index entry survive until the natural TTL so
	// session listings can show how the session ended.
	return r.Update(ctx, sess)
}

// Delete removes a session record and its index entry.
func (r *Registry) Delete(ctx context.Context, userID, sessionID string) error {
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(sessionID))
		pipe.SRem(ctx, r.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveForUser returns the user's active, unexpired sessions sorted by
// most-recent activity first. Index entries whose records are gone are
// pruned as a side effect.
func (r *Registry) ActiveForUser(ctx context.Context, userID string) ([]*Session, error) {
	return r.loadForUser(ctx, userID, true)
}

// AllForUser returns every surviving session record for a user, active or
// not, most recent activity first. Used for session listings.
func (r *Registry) AllForUser(ctx context.Context, userID string) ([]*Session, error) {
	return r.loadForUser(ctx, userID, false)
}

func (r *Registry) loadForUser(ctx context.Context, userID string, activeOnly bool) ([]*Session, error) {
	sessionIDs, err := r.redis.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sid := range sessionIDs {
		cmds[i] = pipe.Get(ctx, r.key(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	nowUnix := time.Now().Unix()
	sessions := make([]*Session, 0, len(sessionIDs))
	var stale []interface{}

	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, sessionIDs[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			return nil, decErr
		}
		sess.SessionID = sessionIDs[i]
		if activeOnly && (!sess.Active || nowUnix > sess.ExpiresAt) {
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		_ = r.redis.SRem(ctx, r.userKey(userID), stale...).Err()
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].LastActivity != sessions[j].LastActivity {
			return sessions[i].LastActivity > sessions[j].LastActivity
		}
		return sessions[i].CreatedAt > sessions[j].CreatedAt
	})

	return sessions, nil
}

// Ping reports Redis availability and round-trip latency.
func (r *Registry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
