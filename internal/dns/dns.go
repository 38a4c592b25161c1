package dns

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	names     []string
	err       error
	timestamp time.Time
}

// CachedResolver resolves source IPs of report records to host names.
// Results, including failures, are cached so every address is only looked
// up once per cache period.
type CachedResolver struct {
	ctx          context.Context
	timeout      time.Duration
	cacheTimeout time.Duration
	resolver     *net.Resolver
	mutex        sync.Mutex
	cache        map[netip.Addr]cacheEntry
	logger       *slog.Logger
}

// NewCachedResolver uses the system resolver if server is empty
func NewCachedResolver(ctx context.Context, server string, connectTimeout, timeout, cacheTimeout time.Duration, logger *slog.Logger) *CachedResolver {
	resolver := net.DefaultResolver
	if server != "" {
		resolver = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				d := net.Dialer{
					Timeout: connectTimeout,
				}
				return d.DialContext(ctx, network, server)
			},
		}
	}
	return &CachedResolver{
		ctx:          ctx,
		timeout:      timeout,
		cacheTimeout: cacheTimeout,
		resolver:     resolver,
		cache:        make(map[netip.Addr]cacheEntry),
		logger:       logger,
	}
}

// LookupAddr returns the PTR names of ip without the trailing dot
func (r *CachedResolver) LookupAddr(ip netip.Addr) ([]string, error) {
	if entry, ok := r.getCacheEntry(ip); ok {
		return entry.names, entry.err
	}

	r.logger.Debug("resolving", "ip", ip)
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	names, err := r.resolver.LookupAddr(ctx, ip.String())
	if err != nil {
		// store the failure so we do not reresolve the ip
		r.updateCache(ip, nil, err)
		return nil, err
	}

	for i := range names {
		names[i] = strings.TrimSuffix(names[i], ".")
	}
	r.updateCache(ip, names, nil)
	return names, nil
}

func (r *CachedResolver) updateCache(ip netip.Addr, names []string, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cache[ip] = cacheEntry{
		names:     names,
		err:       err,
		timestamp: time.Now(),
	}
}

func (r *CachedResolver) getCacheEntry(ip netip.Addr) (cacheEntry, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	entry, ok := r.cache[ip]
	if !ok {
		return cacheEntry{}, false
	}
	// check if the cache expired
	if time.Since(entry.timestamp) > r.cacheTimeout {
		r.logger.Debug("deleting stale DNS entry", "ip", ip, "stored", entry.timestamp)
		delete(r.cache, ip)
		return cacheEntry{}, false
	}
	return entry, true
}
