// Package addrcache caches host name resolution for device connections.
// Printers on a shop floor are usually addressed by a DNS name that rarely
// changes, while reconnects can be frequent; a Resolver backed by a Cacher
// avoids a DNS round trip per reconnect and can be shared between processes
// through Redis.
package addrcache

import (
	"context"
	"time"
)

// FetchFunc fetches a value from the source when a cache miss occurs.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher caches values with automatic fetching on cache misses.
// Implementations are safe for concurrent use and make sure that concurrent
// misses for the same key trigger a single fetch.
type Cacher[T any] interface {
	// GetOrFetch retrieves a value from the cache, or fetches it using the provided
	// function if it's not cached. The fetched value is then stored in the cache
	// with the specified TTL for future requests.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key to retrieve or set
	//   - ttl: Time-to-live duration for the cached value
	//   - fetchFn: Function to fetch the value if not in cache
	//
	// Returns:
	//   - The cached or fetched value of type T
	//   - An error if retrieval or fetching fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete removes a key from the cache. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ItemCount returns the number of items in the cache.
	ItemCount(ctx context.Context) (int, error)

	// DeleteByPrefix deletes all keys with the given prefix.
	//
	// Returns:
	//   - The number of keys deleted
	//   - An error if the operation fails
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}
