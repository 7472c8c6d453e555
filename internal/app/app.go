// Package app builds the lookup pipeline from configuration. Both binaries share it.
package app

import (
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/config"
	"github.com/kjstillabower/weather-lookup-service/internal/lookup"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/units"
)

// Pipeline is a wired lookup service plus the breakers guarding its stages.
type Pipeline struct {
	Service  *lookup.Service
	Units    units.Table
	Breakers map[string]*circuitbreaker.CircuitBreaker
}

// BreakerStates returns state funcs suitable for the health handler.
func (p *Pipeline) BreakerStates() map[string]func() string {
	out := make(map[string]func() string, len(p.Breakers))
	for name, cb := range p.Breakers {
		out[name] = cb.State
	}
	return out
}

// Build wires the geocoder selected by cfg, the Open-Meteo forecast client and,
// when enabled, one circuit breaker per upstream.
func Build(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	table := units.Default()
	p := &Pipeline{Units: table, Breakers: map[string]*circuitbreaker.CircuitBreaker{}}

	forecast := client.NewOpenMeteoForecast(cfg.ForecastURL, cfg.UpstreamTimeout, table)
	if cb := newBreaker(cfg, "forecast", logger); cb != nil {
		forecast.SetCircuitBreaker(cb)
		p.Breakers["forecast"] = cb
	}

	var geocoder client.Geocoder
	switch cfg.GeocodingProvider {
	case config.ProviderGoogle:
		g, err := client.NewGoogleGeocoder(cfg.APIKey, cfg.UpstreamTimeout)
		if err != nil {
			return nil, err
		}
		if cb := newBreaker(cfg, "geocoding", logger); cb != nil {
			g.SetCircuitBreaker(cb)
			p.Breakers["geocoding"] = cb
		}
		geocoder = g
		logger.Info("geocoding provider: google")
	default:
		g := client.NewOpenMeteoGeocoder(cfg.GeocodingURL, cfg.UpstreamTimeout)
		if cb := newBreaker(cfg, "geocoding", logger); cb != nil {
			g.SetCircuitBreaker(cb)
			p.Breakers["geocoding"] = cb
		}
		geocoder = g
		logger.Info("geocoding provider: open_meteo", zap.String("url", cfg.GeocodingURL))
	}

	p.Service = lookup.NewService(geocoder, forecast, table, lookup.Options{
		StrictCity:    cfg.CityStrict,
		CityMinLength: cfg.CityMinLength,
		CityMaxLength: cfg.CityMaxLength,
	})
	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}
	return p, nil
}

func newBreaker(cfg *config.Config, component string, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	if !cfg.CircuitBreakerEnabled {
		return nil
	}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        component,
		IsFailure:        client.IsUpstreamFailure,
		OnStateChange: func(from, to string) {
			observability.RecordCircuitBreakerTransition(component, from, to)
			logger.Warn("circuit breaker state change",
				zap.String("component", component),
				zap.String("from", from),
				zap.String("to", to))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(component).Set(0)
	return cb
}
