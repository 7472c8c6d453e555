package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kelvins/geocoder"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kjstillabower/weather-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// googleMu serializes calls because kelvins/geocoder reads its key from a package variable.
var googleMu sync.Mutex

// GoogleGeocoder resolves cities with the Google Geocoding API via kelvins/geocoder.
// The provider returns coordinates only, so Name echoes the query and Country
// comes from a best-effort reverse lookup.
type GoogleGeocoder struct {
	apiKey  string
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker

	// forward and reverse default to the kelvins/geocoder functions; tests swap them.
	forward func(geocoder.Address) (geocoder.Location, error)
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

// NewGoogleGeocoder returns a geocoder using apiKey. Each call is bounded by timeout.
func NewGoogleGeocoder(apiKey string, timeout time.Duration) (*GoogleGeocoder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: google geocoder requires an API key", ErrInvalidInput)
	}
	return &GoogleGeocoder{
		apiKey:  apiKey,
		timeout: timeout,
		forward: geocoder.Geocoding,
		reverse: geocoder.GeocodingReverse,
	}, nil
}

// SetCircuitBreaker guards geocoding calls with cb. nil disables the guard.
func (g *GoogleGeocoder) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	g.breaker = cb
}

type googleResult struct {
	loc models.Location
	err error
}

// Resolve implements Geocoder. The underlying library takes no context, so the
// call runs on its own goroutine and is abandoned when ctx or the timeout ends.
func (g *GoogleGeocoder) Resolve(ctx context.Context, city string) (models.Location, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return models.Location{}, fmt.Errorf("%w: city is required", ErrInvalidInput)
	}

	ctx, span := observability.Tracer().Start(ctx, "geocoding",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream.endpoint", "geocoding"),
			attribute.String("upstream.provider", "google"),
		),
	)
	defer span.End()

	var loc models.Location
	call := func() error {
		var err error
		loc, err = g.call(ctx, city)
		return err
	}
	var err error
	if g.breaker != nil {
		err = g.breaker.Call(ctx, call)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			err = fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
		}
	} else {
		err = call()
	}
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues("geocoding", string(CategorizeError(err))).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.Location{}, err
	}
	return loc, nil
}

func (g *GoogleGeocoder) call(ctx context.Context, city string) (models.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan googleResult, 1)
	go func() {
		done <- g.resolve(city)
	}()

	select {
	case <-ctx.Done():
		observability.UpstreamCallsTotal.WithLabelValues("geocoding", "error").Inc()
		observability.UpstreamDuration.WithLabelValues("geocoding", "error").Observe(time.Since(start).Seconds())
		return models.Location{}, fmt.Errorf("%w: %w", ErrUpstreamTimeout, ctx.Err())
	case res := <-done:
		status := "success"
		if res.err != nil {
			status = "error"
		}
		observability.UpstreamCallsTotal.WithLabelValues("geocoding", status).Inc()
		observability.UpstreamDuration.WithLabelValues("geocoding", status).Observe(time.Since(start).Seconds())
		return res.loc, res.err
	}
}

func (g *GoogleGeocoder) resolve(city string) googleResult {
	googleMu.Lock()
	defer googleMu.Unlock()
	geocoder.ApiKey = g.apiKey

	loc, err := g.forward(geocoder.Address{City: city})
	if err != nil {
		return googleResult{err: mapGoogleError(city, err)}
	}

	lat, lon := loc.Latitude, loc.Longitude
	out := models.Location{Name: city, Latitude: &lat, Longitude: &lon}
	if addrs, err := g.reverse(loc); err == nil && len(addrs) > 0 {
		out.Country = addrs[0].Country
		if addrs[0].City != "" {
			out.Name = addrs[0].City
		}
	}
	return googleResult{loc: out}
}

// mapGoogleError translates Google status errors onto the client sentinels.
func mapGoogleError(city string, err error) error {
	if strings.Contains(err.Error(), "ZERO_RESULTS") {
		return fmt.Errorf("%w: %q", ErrLocationNotFound, city)
	}
	return fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
}
