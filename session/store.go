package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any Redis transport failure from the store.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNoSession is returned by Load when no session record exists.
var ErrNoSession = errors.New("no stored session")

// Store is the single owner of the persisted session record. Only the
// core loads, saves, and clears through it; controllers never touch
// persistence directly.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; ttl bounds how long an untouched
// session record survives.
func NewStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) key() string {
	return s.prefix + ":current"
}

// Save persists the session record, replacing any prior one.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Load retrieves the persisted session record. Returns [ErrNoSession]
// when nothing is stored.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// Clear removes the persisted session record. Clearing an absent record
// is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
