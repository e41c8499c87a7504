package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	calls int
	addr  string
	err   error
}

func (r *countingResolver) ReverseGeocode(context.Context, float64, float64) (string, error) {
	r.calls++
	return r.addr, r.err
}

type countingWeather struct {
	calls int
	w     *domain.Weather
	err   error
}

func (p *countingWeather) Current(context.Context, float64, float64) (*domain.Weather, error) {
	p.calls++
	return p.w, p.err
}

func TestCachedAddressResolver_HitsWithinRounding(t *testing.T) {
	inner := &countingResolver{addr: "Connaught Place"}
	c := NewCachedAddressResolver(inner, time.Hour, 10, observability.NewMetricsForTesting())

	a, err := c.ReverseGeocode(context.Background(), 28.632891, 77.219411)
	require.NoError(t, err)
	b, err := c.ReverseGeocode(context.Background(), 28.632889, 77.219409)
	require.NoError(t, err)

	assert.Equal(t, "Connaught Place", a)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedAddressResolver_DoesNotCacheErrors(t *testing.T) {
	inner := &countingResolver{err: errors.New("boom")}
	c := NewCachedAddressResolver(inner, time.Hour, 10, observability.NewMetricsForTesting())

	_, err := c.ReverseGeocode(context.Background(), 1, 1)
	require.Error(t, err)
	_, err = c.ReverseGeocode(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedWeatherProvider_ReturnsCopies(t *testing.T) {
	inner := &countingWeather{w: &domain.Weather{Temperature: 20, Condition: "clear sky", Humidity: 30}}
	c := NewCachedWeatherProvider(inner, time.Minute, 10, observability.NewMetricsForTesting())

	first, err := c.Current(context.Background(), 1, 1)
	require.NoError(t, err)
	first.Temperature = 99

	second, err := c.Current(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 20.0, second.Temperature)
	assert.Equal(t, 1, inner.calls)
}
