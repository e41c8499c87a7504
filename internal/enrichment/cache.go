package enrichment

import (
	"context"
	"fmt"
	"time"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/observability"

	"github.com/jellydator/ttlcache/v3"
)

// cacheKey rounds to five decimals (about one meter).
func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("%.5f,%.5f", lat, lng)
}

// CachedAddressResolver wraps an AddressResolver with a TTL cache.
// Only successful lookups are cached.
type CachedAddressResolver struct {
	inner   AddressResolver
	cache   *ttlcache.Cache[string, string]
	metrics *observability.Metrics
}

func NewCachedAddressResolver(inner AddressResolver, ttl time.Duration, capacity uint64, metrics *observability.Metrics) *CachedAddressResolver {
	return &CachedAddressResolver{
		inner: inner,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, string](ttl),
			ttlcache.WithCapacity[string, string](capacity),
		),
		metrics: metrics,
	}
}

func (c *CachedAddressResolver) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	key := cacheKey(lat, lng)
	if item := c.cache.Get(key); item != nil {
		c.metrics.EnrichmentCache.WithLabelValues(providerGeoapify, "hit").Inc()
		return item.Value(), nil
	}
	c.metrics.EnrichmentCache.WithLabelValues(providerGeoapify, "miss").Inc()

	addr, err := c.inner.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, addr, ttlcache.DefaultTTL)
	return addr, nil
}

// CachedWeatherProvider wraps a WeatherProvider with a TTL cache.
type CachedWeatherProvider struct {
	inner   WeatherProvider
	cache   *ttlcache.Cache[string, domain.Weather]
	metrics *observability.Metrics
}

func NewCachedWeatherProvider(inner WeatherProvider, ttl time.Duration, capacity uint64, metrics *observability.Metrics) *CachedWeatherProvider {
	return &CachedWeatherProvider{
		inner: inner,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, domain.Weather](ttl),
			ttlcache.WithCapacity[string, domain.Weather](capacity),
		),
		metrics: metrics,
	}
}

func (c *CachedWeatherProvider) Current(ctx context.Context, lat, lng float64) (*domain.Weather, error) {
	key := cacheKey(lat, lng)
	if item := c.cache.Get(key); item != nil {
		c.metrics.EnrichmentCache.WithLabelValues(providerOpenWeather, "hit").Inc()
		w := item.Value()
		return &w, nil
	}
	c.metrics.EnrichmentCache.WithLabelValues(providerOpenWeather, "miss").Inc()

	w, err := c.inner.Current(ctx, lat, lng)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, *w, ttlcache.DefaultTTL)
	return w, nil
}
