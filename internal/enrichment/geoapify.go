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
)

const geoapifyBaseURL = "https://api.geoapify.com/v1/geocode/reverse"

// GeoapifyClient implements AddressResolver using the Geoapify reverse geocoding API.
type GeoapifyClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewGeoapifyClient(apiKey string, timeout time.Duration, logger *slog.Logger) *GeoapifyClient {
	return &GeoapifyClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    geoapifyBaseURL,
		logger:     logger,
	}
}

func (c *GeoapifyClient) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	params := url.Values{
		"lat":    {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(lng, 'f', -1, 64)},
		"apiKey": {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("geoapify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("geoapify API error: status %d: %s", resp.StatusCode, body)
	}

	var gr geoapifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(gr.Features) == 0 {
		return "", ErrNoResult
	}
	p := gr.Features[0].Properties
	switch {
	case p.Formatted != "":
		return p.Formatted, nil
	case p.AddressLine1 != "":
		return p.AddressLine1, nil
	}
	return "", ErrNoResult
}

// Geoapify API response types.

type geoapifyResponse struct {
	Features []geoapifyFeature `json:"features"`
}

type geoapifyFeature struct {
	Properties struct {
		Formatted    string `json:"formatted"`
		AddressLine1 string `json:"address_line1"`
	} `json:"properties"`
}
