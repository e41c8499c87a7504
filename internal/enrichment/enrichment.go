// Package enrichment resolves a street address and current weather for a
// reported coordinate using Geoapify and OpenWeather.
package enrichment

import (
	"context"
	"errors"

	"hyperlocal/internal/domain"
)

var (
	// ErrNoResult means the provider answered but had nothing for the point.
	ErrNoResult = errors.New("enrichment: no result")
	// ErrWeatherDisabled means no usable OpenWeather key is configured.
	ErrWeatherDisabled = errors.New("enrichment: weather lookup disabled")
)

type AddressResolver interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

type WeatherProvider interface {
	Current(ctx context.Context, lat, lng float64) (*domain.Weather, error)
}

// Enrichment is the best-effort outcome of a lookup. Address is never empty.
type Enrichment struct {
	Address string
	Weather *domain.Weather
}
