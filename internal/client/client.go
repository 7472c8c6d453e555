// Package client talks to the Open-Meteo geocoding and forecast APIs.
package client

import (
	"context"
	"errors"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
)

// Geocoder resolves a free-text city name to its first matching location.
type Geocoder interface {
	Resolve(ctx context.Context, city string) (models.Location, error)
}

// WeatherFetcher fetches the current observation for a location.
type WeatherFetcher interface {
	FetchCurrent(ctx context.Context, loc models.Location, system models.UnitSystem) (models.WeatherReading, error)
}

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrLocationNotFound  = errors.New("city not found")
	ErrNoCurrentWeather  = errors.New("no current weather available")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUnsupportedSystem = errors.New("unsupported unit system")
)

// IsUpstreamFailure reports whether err came from transport, timeout or a
// non-success upstream status. Used as the circuit breaker failure filter.
func IsUpstreamFailure(err error) bool {
	return errors.Is(err, ErrUpstreamFailure) || errors.Is(err, ErrUpstreamTimeout)
}
