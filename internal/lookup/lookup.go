// Package lookup composes geocoding and current-weather retrieval into one
// stateless, one-shot pipeline.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/units"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

// Options configures input checks beyond "city is non-empty". With StrictCity
// unset every non-empty city goes to the geocoder, which decides whether it exists.
type Options struct {
	// StrictCity enables the length bounds (runes, zero disables a bound) and
	// the character whitelist of validation.ValidateCity.
	StrictCity    bool
	CityMinLength int
	CityMaxLength int
}

// Service runs lookups. It holds no per-lookup state and is safe for concurrent use.
type Service struct {
	geocoder client.Geocoder
	fetcher  client.WeatherFetcher
	units    units.Table
	opts     Options
}

// NewService returns a Service using the given stages and read-only unit table.
func NewService(geocoder client.Geocoder, fetcher client.WeatherFetcher, table units.Table, opts Options) *Service {
	return &Service{
		geocoder: geocoder,
		fetcher:  fetcher,
		units:    table,
		opts:     opts,
	}
}

// Lookup validates city and unitSystem, resolves the city, then fetches its current
// weather. Both inputs are checked before any network call. Any stage failure is
// returned as a *Error; no partial reading is ever returned.
func (s *Service) Lookup(ctx context.Context, city, unitSystem string) (models.WeatherReading, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	reading, err := s.lookup(ctx, city, unitSystem)
	outcome := "success"
	if err != nil {
		var lerr *Error
		if errors.As(err, &lerr) {
			outcome = lerr.Kind.String()
		}
	}
	observability.RecordLookup(outcome, time.Since(start))

	if logger != nil {
		if err != nil {
			logger.Debug("lookup failed", zap.String("city", city), zap.String("units", unitSystem), zap.String("outcome", outcome), zap.Error(err))
		} else {
			logger.Debug("lookup served", zap.String("city", reading.Name), zap.String("units", string(reading.UnitSystem)), zap.Duration("duration", time.Since(start)))
		}
	}
	return reading, err
}

func (s *Service) lookup(ctx context.Context, city, unitSystem string) (models.WeatherReading, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return models.WeatherReading{}, invalidInput(msgCityRequired, validation.ErrCityEmpty)
	}
	if s.opts.StrictCity {
		if _, err := validation.ValidateCity(city, s.opts.CityMinLength, s.opts.CityMaxLength); err != nil {
			return models.WeatherReading{}, invalidInput(cityMessage(err), err)
		}
	}
	system, ok := s.units.Parse(unitSystem)
	if !ok {
		return models.WeatherReading{}, invalidInput(msgUnits, validation.ErrUnitSystem)
	}

	observability.RecordCityLookup(city)

	loc, err := s.geocoder.Resolve(ctx, city)
	if err != nil {
		return models.WeatherReading{}, classify(StageGeocoding, err)
	}

	reading, err := s.fetcher.FetchCurrent(ctx, loc, system)
	if err != nil {
		return models.WeatherReading{}, classify(StageWeather, err)
	}
	return reading, nil
}

// Looker runs one lookup. *Service satisfies it.
type Looker interface {
	Lookup(ctx context.Context, city, unitSystem string) (models.WeatherReading, error)
}

// Go runs l.Lookup on its own goroutine and delivers exactly one Result on the
// returned channel, which is then closed. A panic inside the lookup is delivered
// as a failed Result.
func Go(ctx context.Context, l Looker, city, unitSystem string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				out <- Result{Err: &Error{
					Kind:    KindNetwork,
					Message: "Unexpected error",
					Err:     fmt.Errorf("lookup panicked: %v", r),
				}}
			}
		}()
		reading, err := l.Lookup(ctx, city, unitSystem)
		out <- Result{Reading: reading, Err: err}
	}()
	return out
}

func cityMessage(err error) string {
	switch {
	case errors.Is(err, validation.ErrCityTooShort):
		return "City name is too short"
	case errors.Is(err, validation.ErrCityTooLong):
		return "City name is too long"
	default:
		return "City name contains invalid characters"
	}
}
