package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenMeteo = "open_meteo"
	ProviderGoogle    = "google"
)

// Config holds service configuration loaded from .env files, YAML and env.
type Config struct {
	ServerPort string

	APIKey            string
	GeocodingProvider string
	GeocodingURL      string
	ForecastURL       string
	UpstreamTimeout   time.Duration

	RequestTimeout time.Duration
	DefaultUnits   string
	CityMinLength  int
	CityMaxLength  int
	// CityStrict turns on the city length bounds and character whitelist.
	// Off, any non-blank city goes to the geocoder.
	CityStrict bool

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	CanaryCity     string
	CanaryUnits    string
	CanaryInterval time.Duration

	ZipkinEndpoint string

	TrackedCities []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Geocoding struct {
		Provider string `yaml:"provider"`
		URL      string `yaml:"url"`
	} `yaml:"geocoding"`

	Forecast struct {
		URL string `yaml:"url"`
	} `yaml:"forecast"`

	Upstream struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"upstream"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Lookup struct {
		DefaultUnits  string `yaml:"default_units"`
		CityMinLength int    `yaml:"city_min_length"`
		CityMaxLength int    `yaml:"city_max_length"`
		StrictCity    bool   `yaml:"strict_city"`
	} `yaml:"lookup"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Canary struct {
		City     string `yaml:"city"`
		Units    string `yaml:"units"`
		Interval string `yaml:"interval"`
	} `yaml:"canary"`

	Tracing struct {
		ZipkinEndpoint string `yaml:"zipkin_endpoint"`
	} `yaml:"tracing"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

// Load reads .env files, then config/{ENV_NAME}.yaml (default dev), then env overrides.
// Missing config/dev.yaml is allowed when ENV_NAME is unset; all keys have defaults.
// Call from project root.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	env := os.Getenv("ENV_NAME")
	explicitEnv := env != ""
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")

	var fc fileConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		if explicitEnv {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := fromFile(fc)
	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env from the working directory without overriding the
// environment, then .env beside the executable, which overrides both.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil
	}
	path := filepath.Join(filepath.Dir(exe), ".env")
	if err := godotenv.Overload(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func fromFile(fc fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = orDefault(fc.Server.Port, "8080")

	cfg.GeocodingProvider = strings.ToLower(orDefault(fc.Geocoding.Provider, ProviderOpenMeteo))
	cfg.GeocodingURL = orDefault(fc.Geocoding.URL, "https://geocoding-api.open-meteo.com/v1/search")
	cfg.ForecastURL = orDefault(fc.Forecast.URL, "https://api.open-meteo.com/v1/forecast")
	cfg.UpstreamTimeout = parseDurationOrZero(fc.Upstream.Timeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 25*time.Second)

	cfg.DefaultUnits = strings.ToLower(orDefault(fc.Lookup.DefaultUnits, "metric"))
	cfg.CityMinLength = orDefaultInt(fc.Lookup.CityMinLength, 1)
	cfg.CityMaxLength = orDefaultInt(fc.Lookup.CityMaxLength, 100)
	cfg.CityStrict = fc.Lookup.StrictCity

	cfg.RateLimitRPS = orDefaultInt(fc.Reliability.RateLimitRPS, 10)
	cfg.RateLimitBurst = orDefaultInt(fc.Reliability.RateLimitBurst, 20)

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = orDefaultInt(cb.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = orDefaultInt(cb.SuccessThreshold, 1)
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Health.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = orDefaultInt(fc.Health.OverloadThresholdPct, 80)
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = orDefaultInt(fc.Health.DegradedErrorPct, 20)

	cfg.CanaryCity = strings.TrimSpace(fc.Canary.City)
	cfg.CanaryUnits = strings.ToLower(orDefault(fc.Canary.Units, cfg.DefaultUnits))
	cfg.CanaryInterval = parseDurationOrZero(fc.Canary.Interval, 0)

	cfg.ZipkinEndpoint = strings.TrimSpace(fc.Tracing.ZipkinEndpoint)
	cfg.TrackedCities = fc.Metrics.TrackedCities
	return cfg
}

func applyEnv(cfg *Config) {
	cfg.APIKey = strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY"))
	if v := os.Getenv("PORT"); v != "" {
		cfg.ServerPort = v
	}
	if v := os.Getenv("GEOCODING_PROVIDER"); v != "" {
		cfg.GeocodingProvider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("GEOCODING_URL"); v != "" {
		cfg.GeocodingURL = v
	}
	if v := os.Getenv("FORECAST_URL"); v != "" {
		cfg.ForecastURL = v
	}
	if v := os.Getenv("UPSTREAM_TIMEOUT"); v != "" {
		cfg.UpstreamTimeout = parseDurationOrZero(v, cfg.UpstreamTimeout)
	}
	if v := os.Getenv("ZIPKIN_ENDPOINT"); v != "" {
		cfg.ZipkinEndpoint = v
	}
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised to cover
// both sequential upstream calls when it is shorter.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if floor := 2*cfg.UpstreamTimeout + time.Second; cfg.RequestTimeout < floor {
		cfg.RequestTimeout = floor
	}
	switch cfg.DefaultUnits {
	case "metric", "imperial":
	default:
		return fmt.Errorf("lookup.default_units must be metric or imperial, got %q", cfg.DefaultUnits)
	}
	if cfg.CityMaxLength < cfg.CityMinLength {
		return fmt.Errorf("lookup.city_max_length (%d) must be >= city_min_length (%d)", cfg.CityMaxLength, cfg.CityMinLength)
	}
	switch cfg.GeocodingProvider {
	case ProviderOpenMeteo:
	case ProviderGoogle:
		if cfg.APIKey == "" {
			return fmt.Errorf("OPENWEATHER_API_KEY required when geocoding.provider is %s", ProviderGoogle)
		}
	default:
		return fmt.Errorf("geocoding.provider must be %s or %s, got %q", ProviderOpenMeteo, ProviderGoogle, cfg.GeocodingProvider)
	}
	return nil
}
