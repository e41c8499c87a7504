package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"hyperlocal/internal/domain"
)

const (
	openWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"

	// PlaceholderOpenWeatherKey is the sample value shipped in example env files.
	PlaceholderOpenWeatherKey = "your_openweather_api_key_here"
)

// OpenWeatherClient implements WeatherProvider using the current weather API.
type OpenWeatherClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewOpenWeatherClient(apiKey string, timeout time.Duration, logger *slog.Logger) *OpenWeatherClient {
	return &OpenWeatherClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    openWeatherBaseURL,
		logger:     logger,
	}
}

func (c *OpenWeatherClient) Enabled() bool {
	return c.apiKey != "" && c.apiKey != PlaceholderOpenWeatherKey
}

func (c *OpenWeatherClient) Current(ctx context.Context, lat, lng float64) (*domain.Weather, error) {
	if !c.Enabled() {
		return nil, ErrWeatherDisabled
	}

	params := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(lng, 'f', -1, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openweather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openweather API error: status %d: %s", resp.StatusCode, body)
	}

	var wr weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(wr.Weather) == 0 {
		return nil, ErrNoResult
	}

	return &domain.Weather{
		Temperature: wr.Main.Temp,
		Condition:   wr.Weather[0].Description,
		Humidity:    wr.Main.Humidity,
	}, nil
}

// OpenWeather API response types.

type weatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}
