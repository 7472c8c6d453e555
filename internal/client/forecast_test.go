package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/units"
)

func floatPtr(v float64) *float64 { return &v }

func london() models.Location {
	return models.Location{Name: "London", Country: "GB", Latitude: floatPtr(51.5), Longitude: floatPtr(-0.1)}
}

func TestOpenMeteoForecast_FetchCurrent_Units(t *testing.T) {
	tests := []struct {
		system       models.UnitSystem
		wantTempUnit string
		wantWindUnit string
		wantTemp     string
		wantWind     string
	}{
		{models.UnitSystemMetric, "celsius", "ms", "°C", "m/s"},
		{models.UnitSystemImperial, "fahrenheit", "mph", "°F", "mph"},
	}
	for _, tt := range tests {
		t.Run(string(tt.system), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				want := map[string]string{
					"latitude":         "51.5",
					"longitude":        "-0.1",
					"current_weather":  "true",
					"temperature_unit": tt.wantTempUnit,
					"windspeed_unit":   tt.wantWindUnit,
				}
				for k, v := range want {
					if got := q.Get(k); got != v {
						t.Errorf("query %s = %q, want %q", k, got, v)
					}
				}
				_, _ = w.Write([]byte(`{"current_weather":{"temperature":15.2,"windspeed":10,"time":"2026-10-19T12:00","weathercode":3}}`))
			}))
			defer server.Close()

			f := NewOpenMeteoForecast(server.URL, 2*time.Second, units.Default())
			got, err := f.FetchCurrent(context.Background(), london(), tt.system)
			if err != nil {
				t.Fatalf("FetchCurrent() error = %v", err)
			}
			if got.Name != "London" || got.Country != "GB" {
				t.Errorf("name/country = %q/%q, want London/GB", got.Name, got.Country)
			}
			if got.Temperature == nil || *got.Temperature != 15.2 {
				t.Errorf("Temperature = %v, want 15.2", got.Temperature)
			}
			if got.WindSpeed == nil || *got.WindSpeed != 10 {
				t.Errorf("WindSpeed = %v, want 10", got.WindSpeed)
			}
			if got.TemperatureLabel != tt.wantTemp || got.WindLabel != tt.wantWind {
				t.Errorf("labels = %q/%q, want %q/%q", got.TemperatureLabel, got.WindLabel, tt.wantTemp, tt.wantWind)
			}
			if got.UnitSystem != tt.system {
				t.Errorf("UnitSystem = %q, want %q", got.UnitSystem, tt.system)
			}
			if got.ObservedAt != "2026-10-19T12:00" || got.WeatherCode == nil || *got.WeatherCode != 3 {
				t.Errorf("ObservedAt/WeatherCode = %q/%v", got.ObservedAt, got.WeatherCode)
			}
		})
	}
}

func TestOpenMeteoForecast_FetchCurrent_AbsentFieldsStayUnset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"current_weather":{"time":"2026-10-19T12:00"}}`))
	}))
	defer server.Close()

	got, err := NewOpenMeteoForecast(server.URL, 2*time.Second, units.Default()).
		FetchCurrent(context.Background(), london(), models.UnitSystemMetric)
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if got.Temperature != nil || got.WindSpeed != nil {
		t.Errorf("Temperature/WindSpeed = %v/%v, want nil", got.Temperature, got.WindSpeed)
	}
}

func TestOpenMeteoForecast_FetchCurrent_NoCurrentWeather(t *testing.T) {
	bodies := map[string]string{
		"absent":       `{"latitude":51.5}`,
		"null":         `{"current_weather":null}`,
		"empty object": `{"current_weather":{}}`,
		"empty array":  `{"current_weather":[]}`,
		"empty string": `{"current_weather":""}`,
		"false":        `{"current_weather":false}`,
		"zero":         `{"current_weather":0}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := NewOpenMeteoForecast(server.URL, 2*time.Second, units.Default()).
				FetchCurrent(context.Background(), london(), models.UnitSystemMetric)
			if !errors.Is(err, ErrNoCurrentWeather) {
				t.Errorf("FetchCurrent() error = %v, want ErrNoCurrentWeather", err)
			}
		})
	}
}

func TestOpenMeteoForecast_FetchCurrent_NonObjectCurrentWeatherIsUpstreamFailure(t *testing.T) {
	for name, body := range map[string]string{
		"array":  `{"current_weather":[1]}`,
		"string": `{"current_weather":"sunny"}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := NewOpenMeteoForecast(server.URL, 2*time.Second, units.Default()).
				FetchCurrent(context.Background(), london(), models.UnitSystemMetric)
			if !errors.Is(err, ErrUpstreamFailure) || errors.Is(err, ErrNoCurrentWeather) {
				t.Errorf("FetchCurrent() error = %v, want ErrUpstreamFailure", err)
			}
		})
	}
}

func TestOpenMeteoForecast_FetchCurrent_UnsupportedSystemMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	f := NewOpenMeteoForecast(server.URL, 2*time.Second, units.Default())
	_, err := f.FetchCurrent(context.Background(), london(), "kelvin")
	if !errors.Is(err, ErrInvalidInput) || !errors.Is(err, ErrUnsupportedSystem) {
		t.Errorf("FetchCurrent() error = %v, want ErrInvalidInput/ErrUnsupportedSystem", err)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("upstream called %d times, want 0", n)
	}
}

func TestOpenMeteoForecast_FetchCurrent_NilCoordinatesOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("latitude") || r.URL.Query().Has("longitude") {
			t.Errorf("query = %q, want no coordinates", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewOpenMeteoForecast(server.URL, 2*time.Second, units.Default()).
		FetchCurrent(context.Background(), models.Location{Name: "Nowhere"}, models.UnitSystemMetric)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("FetchCurrent() error = %v, want ErrUpstreamFailure", err)
	}
}

func TestOpenMeteoForecast_FetchCurrent_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewOpenMeteoForecast(url, 2*time.Second, units.Default()).
		FetchCurrent(context.Background(), london(), models.UnitSystemMetric)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("FetchCurrent() error = %v, want ErrUpstreamFailure", err)
	}
}
