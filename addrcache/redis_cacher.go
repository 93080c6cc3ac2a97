package addrcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisLockTTL     = 10 * time.Second
	redisWaitTimeout = 10 * time.Second
	redisMaxBackoff  = 250 * time.Millisecond
)

// releaseLockScript deletes the lock only while we still own it.
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisCacher is a Cacher stored in Redis, so several processes driving the
// same devices share one resolution cache. Every key is namespaced with a
// prefix; ItemCount and DeleteByPrefix only see keys under that namespace.
// Values are stored as JSON.
type RedisCacher[T any] struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisCacher creates a Redis backed Cacher.
//
// Parameters:
//   - client: Connected Redis client (single node, sentinel or cluster)
//   - namespace: Prefix prepended to every key, e.g. "netprint:"
//
// Returns:
//   - A new RedisCacher
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	cache := addrcache.NewRedisCacher[[]string](client, "netprint:")
func NewRedisCacher[T any](client redis.UniversalClient, namespace string) *RedisCacher[T] {
	return &RedisCacher[T]{
		client:    client,
		namespace: namespace,
	}
}

// GetOrFetch implements Cacher. A miss takes a short lived lock key
// ("<key>:lock") with SETNX; the owner fetches and stores the value while
// other callers poll for it with exponential backoff.
func (c *RedisCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T
	fullKey := c.namespace + key

	val, found, err := c.get(ctx, fullKey)
	if err != nil || found {
		return val, err
	}

	lockKey := fullKey + ":lock"
	token := strconv.FormatInt(time.Now().UnixNano(), 10)

	acquired, err := c.client.SetNX(ctx, lockKey, token, redisLockTTL).Result()
	if err != nil {
		return zero, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !acquired {
		return c.waitFor(ctx, fullKey, lockKey)
	}

	defer releaseLockScript.Run(context.Background(), c.client, []string{lockKey}, token)

	fetched, err := fetchFn(ctx)
	if err != nil {
		return zero, fmt.Errorf("fetch function failed: %w", err)
	}

	data, err := json.Marshal(fetched)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
		return zero, fmt.Errorf("failed to cache result: %w", err)
	}

	return fetched, nil
}

// get reads and decodes key. found is false on a cache miss.
func (c *RedisCacher[T]) get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("redis get error: %w", err)
	}

	var result T
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return result, true, nil
}

// waitFor polls until the lock owner has populated key, the lock disappears
// without a value, or redisWaitTimeout passes.
func (c *RedisCacher[T]) waitFor(ctx context.Context, key, lockKey string) (T, error) {
	var zero T

	backoff := 10 * time.Millisecond
	deadline := time.Now().Add(redisWaitTimeout)

	for time.Now().Before(deadline) {
		val, found, err := c.get(ctx, key)
		if err != nil || found {
			return val, err
		}

		exists, err := c.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return zero, fmt.Errorf("failed to check lock existence: %w", err)
		}

		if exists == 0 {
			// last look in case the owner stored the value right before releasing
			if val, found, err := c.get(ctx, key); err != nil || found {
				return val, err
			}

			return zero, errors.New("fetch operation failed or cache not populated")
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, redisMaxBackoff)
	}

	return zero, errors.New("timeout waiting for cache")
}

// Delete implements Cacher.
func (c *RedisCacher[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.namespace+key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// ItemCount implements Cacher by scanning the namespace.
func (c *RedisCacher[T]) ItemCount(ctx context.Context) (int, error) {
	keys, err := c.scan(ctx, c.namespace)
	if err != nil {
		return 0, err
	}

	return len(keys), nil
}

// DeleteByPrefix implements Cacher.
func (c *RedisCacher[T]) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := c.scan(ctx, c.namespace+prefix)
	if err != nil {
		return 0, err
	}

	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}

	return int(deleted), nil
}

func (c *RedisCacher[T]) scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := c.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	return keys, nil
}
