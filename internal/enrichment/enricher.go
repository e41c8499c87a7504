package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/observability"
)

const (
	providerGeoapify    = "geoapify"
	providerOpenWeather = "openweather"
)

// Enricher runs the address and weather lookups side by side.
// Failures never propagate: they fall back to the unknown address and no weather.
type Enricher struct {
	address AddressResolver
	weather WeatherProvider
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewEnricher(address AddressResolver, weather WeatherProvider, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Enricher {
	return &Enricher{
		address: address,
		weather: weather,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

func (e *Enricher) Enrich(ctx context.Context, lat, lng float64) Enrichment {
	out := Enrichment{Address: domain.UnknownAddress}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		start := time.Now()
		addr, err := e.address.ReverseGeocode(ctx, lat, lng)
		e.metrics.EnrichmentDuration.WithLabelValues(providerGeoapify).Observe(time.Since(start).Seconds())
		if err != nil || addr == "" {
			e.metrics.EnrichmentRequests.WithLabelValues(providerGeoapify, "error").Inc()
			if !errors.Is(err, ErrNoResult) {
				e.logger.Warn("reverse geocode failed", slog.Float64("lat", lat), slog.Float64("lng", lng), slog.Any("error", err))
			}
			return
		}
		e.metrics.EnrichmentRequests.WithLabelValues(providerGeoapify, "success").Inc()
		out.Address = addr
	}()

	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		start := time.Now()
		w, err := e.weather.Current(ctx, lat, lng)
		e.metrics.EnrichmentDuration.WithLabelValues(providerOpenWeather).Observe(time.Since(start).Seconds())
		switch {
		case errors.Is(err, ErrWeatherDisabled):
			e.metrics.EnrichmentRequests.WithLabelValues(providerOpenWeather, "skipped").Inc()
			return
		case err != nil:
			e.metrics.EnrichmentRequests.WithLabelValues(providerOpenWeather, "error").Inc()
			e.logger.Warn("weather lookup failed", slog.Float64("lat", lat), slog.Float64("lng", lng), slog.Any("error", err))
			return
		}
		e.metrics.EnrichmentRequests.WithLabelValues(providerOpenWeather, "success").Inc()
		out.Weather = w
	}()

	wg.Wait()
	return out
}
