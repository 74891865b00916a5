package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errs "github.com/vaultmesh/backup-sentinel/internal/domain/errors"
)

// Key prefixes. Every key carries a TTL so counters, violation tallies
// and block entries all expire on their own.
const (
	counterPrefix   = "rl:"
	violationPrefix = "rlv:"
	blockPrefix     = "rlb:"
)

// Store keeps admission state in Redis: fixed-window request counters,
// violation tallies and block entries.
type Store struct {
	client *redis.Client
}

// NewStore creates a Redis-backed admission store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// IncrWindow atomically increments the fixed-window counter for key and
// returns the new count together with the moment the window resets. The
// window boundary is baked into the Redis key, so concurrent callers in
// the same window always hit the same counter.
func (s *Store) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := time.Now()
	bucket := now.Truncate(window).Unix()
	resetAt := time.Unix(bucket, 0).Add(window)
	redisKey := fmt.Sprintf("%s%s:%d", counterPrefix, key, bucket)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, resetAt, err
	}

	// Expiration set on the first hit in the window, with a second of
	// slack so the key outlives the window it counts. A key without a
	// TTL would never leave Redis, so an Expire failure is an error.
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window+time.Second).Err(); err != nil {
			return 0, resetAt, fmt.Errorf("setting counter expiry: %w", err)
		}
	}

	return count, resetAt, nil
}

// IncrViolation bumps the rolling violation tally for a subject and
// returns the new total. The tally expires after period, so a subject
// that behaves for a while starts from zero again.
func (s *Store) IncrViolation(ctx context.Context, subject string, period time.Duration) (int64, error) {
	key := violationPrefix + subject
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, period).Err(); err != nil {
			return 0, fmt.Errorf("setting violation expiry: %w", err)
		}
	}
	return count, nil
}

// SetBlock records a temporary block for a subject. The entry expires
// after ttl, which unblocks the subject automatically.
func (s *Store) SetBlock(ctx context.Context, subject, reason string, ttl time.Duration) error {
	return s.client.Set(ctx, blockPrefix+subject, reason, ttl).Err()
}

// GetBlock looks up an active block for a subject. It returns the block
// reason and the time remaining until the block lifts. found is false
// when no block exists.
func (s *Store) GetBlock(ctx context.Context, subject string) (reason string, remaining time.Duration, found bool, err error) {
	key := blockPrefix + subject

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err = pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", 0, false, nil
		}
		return "", 0, false, err
	}

	reason = getCmd.Val()
	remaining = ttlCmd.Val()
	if remaining < 0 {
		remaining = 0
	}
	return reason, remaining, true, nil
}

// RemoveBlock lifts a block before its TTL runs out. Returns
// ErrBlockNotFound when no block exists for the subject.
func (s *Store) RemoveBlock(ctx context.Context, subject string) error {
	removed, err := s.client.Del(ctx, blockPrefix+subject).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return errs.ErrBlockNotFound
	}
	return nil
}

// ResetCounters clears the violation tally for a subject. Window
// counters are left alone; they expire on their own within a day.
func (s *Store) ResetCounters(ctx context.Context, subject string) error {
	return s.client.Del(ctx, violationPrefix+subject).Err()
}
