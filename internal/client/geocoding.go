package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
)

// DefaultGeocodingURL is the keyless Open-Meteo geocoding search endpoint.
const DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

// OpenMeteoGeocoder resolves cities with the Open-Meteo geocoding API.
type OpenMeteoGeocoder struct {
	upstream upstream
}

// NewOpenMeteoGeocoder returns a geocoder for apiURL. Each call is bounded by timeout.
func NewOpenMeteoGeocoder(apiURL string, timeout time.Duration) *OpenMeteoGeocoder {
	if apiURL == "" {
		apiURL = DefaultGeocodingURL
	}
	return &OpenMeteoGeocoder{upstream: newUpstream("geocoding", apiURL, timeout)}
}

// SetCircuitBreaker guards geocoding calls with cb. nil disables the guard.
func (g *OpenMeteoGeocoder) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	g.upstream.breaker = cb
}

type geocodingResponse struct {
	Results []struct {
		Name      string   `json:"name"`
		Country   string   `json:"country"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"results"`
}

// Resolve returns the first search result for city.
// Empty city fails with ErrInvalidInput before any request is made.
func (g *OpenMeteoGeocoder) Resolve(ctx context.Context, city string) (models.Location, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return models.Location{}, fmt.Errorf("%w: city is required", ErrInvalidInput)
	}

	params := url.Values{}
	params.Set("name", city)
	params.Set("count", "1")
	params.Set("language", "en")
	params.Set("format", "json")

	body, err := g.upstream.getJSON(ctx, params)
	if err != nil {
		return models.Location{}, err
	}

	var resp geocodingResponse
	if err := decodeJSON(body, &resp); err != nil {
		return models.Location{}, err
	}
	if len(resp.Results) == 0 {
		return models.Location{}, fmt.Errorf("%w: %q", ErrLocationNotFound, city)
	}

	top := resp.Results[0]
	return models.Location{
		Name:      top.Name,
		Country:   top.Country,
		Latitude:  top.Latitude,
		Longitude: top.Longitude,
	}, nil
}
