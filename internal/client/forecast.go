package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/units"
)

// DefaultForecastURL is the keyless Open-Meteo forecast endpoint.
const DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteoForecast fetches current weather from the Open-Meteo forecast API.
type OpenMeteoForecast struct {
	upstream upstream
	units    units.Table
}

// NewOpenMeteoForecast returns a fetcher for apiURL using the given unit table.
func NewOpenMeteoForecast(apiURL string, timeout time.Duration, table units.Table) *OpenMeteoForecast {
	if apiURL == "" {
		apiURL = DefaultForecastURL
	}
	return &OpenMeteoForecast{
		upstream: newUpstream("forecast", apiURL, timeout),
		units:    table,
	}
}

// SetCircuitBreaker guards forecast calls with cb. nil disables the guard.
func (f *OpenMeteoForecast) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	f.upstream.breaker = cb
}

type forecastResponse struct {
	CurrentWeather json.RawMessage `json:"current_weather"`
}

type currentWeather struct {
	Temperature *float64 `json:"temperature"`
	WindSpeed   *float64 `json:"windspeed"`
	Time        string   `json:"time"`
	WeatherCode *int     `json:"weathercode"`
}

// FetchCurrent returns the current observation at loc in the requested unit system.
// An unknown system fails with ErrUnsupportedSystem before any request is made.
// Nil coordinates are omitted from the query and left for upstream to reject.
func (f *OpenMeteoForecast) FetchCurrent(ctx context.Context, loc models.Location, system models.UnitSystem) (models.WeatherReading, error) {
	profile, ok := f.units.Lookup(system)
	if !ok {
		return models.WeatherReading{}, fmt.Errorf("%w: %w %q", ErrInvalidInput, ErrUnsupportedSystem, system)
	}

	params := url.Values{}
	if loc.Latitude != nil {
		params.Set("latitude", strconv.FormatFloat(*loc.Latitude, 'f', -1, 64))
	}
	if loc.Longitude != nil {
		params.Set("longitude", strconv.FormatFloat(*loc.Longitude, 'f', -1, 64))
	}
	params.Set("current_weather", "true")
	params.Set("temperature_unit", profile.TemperatureUnit)
	params.Set("windspeed_unit", profile.WindUnit)

	body, err := f.upstream.getJSON(ctx, params)
	if err != nil {
		return models.WeatherReading{}, err
	}

	var resp forecastResponse
	if err := decodeJSON(body, &resp); err != nil {
		return models.WeatherReading{}, err
	}
	cw, err := parseCurrentWeather(resp.CurrentWeather)
	if err != nil {
		return models.WeatherReading{}, err
	}

	return models.WeatherReading{
		Name:             loc.Name,
		Country:          loc.Country,
		Temperature:      cw.Temperature,
		WindSpeed:        cw.WindSpeed,
		UnitSystem:       system,
		TemperatureLabel: profile.TemperatureLabel,
		WindLabel:        profile.WindLabel,
		ObservedAt:       cw.Time,
		WeatherCode:      cw.WeatherCode,
	}, nil
}

// parseCurrentWeather treats an absent or empty current_weather value of any
// JSON type (null, false, 0, "", [], {}) as no current weather. A non-empty
// value that is not an object is a parse failure. Individual fields are passed
// through without validation.
func parseCurrentWeather(raw json.RawMessage) (currentWeather, error) {
	var v interface{}
	if len(raw) > 0 {
		if err := decodeJSON(raw, &v); err != nil {
			return currentWeather{}, err
		}
	}
	if isEmptyJSON(v) {
		return currentWeather{}, ErrNoCurrentWeather
	}

	var cw currentWeather
	if err := decodeJSON(raw, &cw); err != nil {
		return currentWeather{}, err
	}
	return cw, nil
}

func isEmptyJSON(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}
