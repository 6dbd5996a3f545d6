package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// redisCmdable is the subset of redis.Cmdable used by RedisSet.
type redisCmdable interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisSet keeps the seen ids in a Redis set. The key embeds the
// coordinator's instance id so two coordinators never share a set.
type RedisSet struct {
	client redisCmdable
	key    string
	ttl    time.Duration
}

var _ Set = (*RedisSet)(nil)

// NewRedisSet creates a set stored under <prefix>seen:<instanceID>.
// A positive ttl is refreshed on every insert.
func NewRedisSet(client redis.Cmdable, prefix, instanceID string, ttl time.Duration) *RedisSet {
	return newRedisSet(client, prefix, instanceID, ttl)
}

// OpenRedisSet creates the set and drops ids left by an earlier run under
// the same instance id, so a restarted coordinator starts from an empty set
// like the memory backend does.
func OpenRedisSet(ctx context.Context, client redis.Cmdable, prefix, instanceID string, ttl time.Duration) (*RedisSet, error) {
	return openRedisSet(ctx, client, prefix, instanceID, ttl)
}

func openRedisSet(ctx context.Context, client redisCmdable, prefix, instanceID string, ttl time.Duration) (*RedisSet, error) {
	s := newRedisSet(client, prefix, instanceID, ttl)
	if err := s.Clear(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newRedisSet(client redisCmdable, prefix, instanceID string, ttl time.Duration) *RedisSet {
	return &RedisSet{
		client: client,
		key:    prefix + "seen:" + instanceID,
		ttl:    ttl,
	}
}

// Key returns the Redis key holding the set.
func (s *RedisSet) Key() string { return s.key }

func (s *RedisSet) Add(ctx context.Context, id string) (bool, error) {
	n, err := s.client.SAdd(ctx, s.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("sadd %s: %w", s.key, err)
	}
	if n > 0 && s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			return true, fmt.Errorf("expire %s: %w", s.key, err)
		}
	}
	return n > 0, nil
}

func (s *RedisSet) Contains(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", s.key, err)
	}
	return ok, nil
}

func (s *RedisSet) Len(ctx context.Context) (int64, error) {
	n, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("scard %s: %w", s.key, err)
	}
	return n, nil
}

// Clear deletes the set. The daemon calls it on open and on shutdown.
func (s *RedisSet) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", s.key, err)
	}
	return nil
}
