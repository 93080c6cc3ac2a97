package addrcache

import (
	"context"
	"fmt"
	"net"
	"time"
)

// keyPrefix namespaces resolution entries inside a shared Cacher.
const keyPrefix = "addr:"

// DefaultTTL is how long a resolved address list is trusted.
const DefaultTTL = 5 * time.Minute

// LookupFunc resolves a host name into its addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Resolver turns a host name into dialable IP addresses.
type Resolver interface {
	// Resolve returns the addresses for host. IP literals are returned as is.
	Resolve(ctx context.Context, host string) ([]string, error)

	// Forget drops any cached entry for host so the next Resolve goes to DNS.
	Forget(ctx context.Context, host string) error
}

// CachingResolver is a Resolver that keeps lookup results in a Cacher.
type CachingResolver struct {
	cache  Cacher[[]string]
	ttl    time.Duration
	lookup LookupFunc
}

// NewCachingResolver creates a Resolver caching lookups in cache.
//
// Parameters:
//   - cache: Storage for resolved address lists
//   - ttl: Lifetime of an entry; DefaultTTL when zero or negative
//   - lookup: Lookup used on misses; net.DefaultResolver.LookupHost when nil
//
// Returns:
//   - A new CachingResolver
func NewCachingResolver(cache Cacher[[]string], ttl time.Duration, lookup LookupFunc) *CachingResolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}

	return &CachingResolver{
		cache:  cache,
		ttl:    ttl,
		lookup: lookup,
	}
}

// NewMemoryResolver is a CachingResolver over a fresh MemoryCacher using
// the system resolver.
func NewMemoryResolver(ttl time.Duration) *CachingResolver {
	return NewCachingResolver(NewMemoryCacher[[]string](ttl, 2*ttl), ttl, nil)
}

// Resolve implements Resolver.
func (r *CachingResolver) Resolve(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}

	addrs, err := r.cache.GetOrFetch(ctx, keyPrefix+host, r.ttl, func(ctx context.Context) ([]string, error) {
		found, err := r.lookup(ctx, host)
		if err != nil {
			return nil, err
		}

		if len(found) == 0 {
			return nil, fmt.Errorf("no addresses found for %s", host)
		}

		return found, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	return addrs, nil
}

// Forget implements Resolver.
func (r *CachingResolver) Forget(ctx context.Context, host string) error {
	return r.cache.Delete(ctx, keyPrefix+host)
}

// Flush drops every cached resolution.
//
// Returns:
//   - The number of entries removed
//   - An error if the cache could not be cleared
func (r *CachingResolver) Flush(ctx context.Context) (int, error) {
	return r.cache.DeleteByPrefix(ctx, keyPrefix)
}

// Size reports the number of cached entries.
func (r *CachingResolver) Size(ctx context.Context) (int, error) {
	return r.cache.ItemCount(ctx)
}
