package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/lookup"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/units"
)

// fakeOpenMeteo serves both geocoding and forecast endpoints and counts calls.
type fakeOpenMeteo struct {
	server        *httptest.Server
	geocodeCalls  atomic.Int32
	forecastCalls atomic.Int32
}

func newFakeOpenMeteo(t *testing.T) *fakeOpenMeteo {
	t.Helper()
	f := &fakeOpenMeteo{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		f.geocodeCalls.Add(1)
		if r.URL.Query().Get("name") == "London" {
			_, _ = w.Write([]byte(`{"results":[{"name":"London","country":"GB","latitude":51.5085,"longitude":-0.1257}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"generationtime_ms":0.5}`))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		f.forecastCalls.Add(1)
		if r.URL.Query().Get("temperature_unit") == "fahrenheit" {
			_, _ = w.Write([]byte(`{"current_weather":{"temperature":59.4,"windspeed":22.4}}`))
			return
		}
		_, _ = w.Write([]byte(`{"current_weather":{"temperature":15.2,"windspeed":10.0}}`))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newIntegrationServer(t *testing.T, upstream *fakeOpenMeteo, limiter *rate.Limiter) *httptest.Server {
	t.Helper()
	resetHealthState(t)
	table := units.Default()
	svc := lookup.NewService(
		client.NewOpenMeteoGeocoder(upstream.server.URL+"/v1/search", 2*time.Second),
		client.NewOpenMeteoForecast(upstream.server.URL+"/v1/forecast", 2*time.Second, table),
		table,
		lookup.Options{CityMinLength: 1, CityMaxLength: 100},
	)
	h := NewHandler(svc, table, "metric", &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50}, zap.NewNop())
	srv := httptest.NewServer(NewRouter(h, RouterConfig{Limiter: limiter, RequestTimeout: 5 * time.Second}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIntegration_LookupMetricAndImperial(t *testing.T) {
	upstream := newFakeOpenMeteo(t)
	srv := newIntegrationServer(t, upstream, nil)

	tests := []struct {
		units     string
		wantTemp  float64
		wantLabel string
		wantWind  string
	}{
		{"metric", 15.2, "°C", "m/s"},
		{"imperial", 59.4, "°F", "mph"},
	}
	for _, tt := range tests {
		t.Run(tt.units, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/api/weather?city=London&units=" + tt.units)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if resp.Header.Get("X-Correlation-ID") == "" {
				t.Error("X-Correlation-ID missing")
			}
			var got models.WeatherReading
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Country != "GB" || got.Temperature == nil || *got.Temperature != tt.wantTemp {
				t.Errorf("reading = %+v", got)
			}
			if got.TemperatureLabel != tt.wantLabel || got.WindLabel != tt.wantWind {
				t.Errorf("labels = %q/%q", got.TemperatureLabel, got.WindLabel)
			}
		})
	}
}

func TestIntegration_CityNotFoundNeverCallsForecast(t *testing.T) {
	upstream := newFakeOpenMeteo(t)
	srv := newIntegrationServer(t, upstream, nil)

	resp, err := http.Get(srv.URL + "/api/weather?city=Atlantis")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if upstream.forecastCalls.Load() != 0 {
		t.Errorf("forecast calls = %d, want 0", upstream.forecastCalls.Load())
	}
}

func TestIntegration_PunctuatedCityReachesGeocoder(t *testing.T) {
	upstream := newFakeOpenMeteo(t)
	srv := newIntegrationServer(t, upstream, nil)

	q := url.Values{"city": {"Trinidad & Tobago"}}
	resp, err := http.Get(srv.URL + "/api/weather?" + q.Encode())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if n := upstream.geocodeCalls.Load(); n != 1 {
		t.Errorf("geocode calls = %d, want 1", n)
	}
}

func TestIntegration_InvalidInputMakesNoUpstreamCall(t *testing.T) {
	upstream := newFakeOpenMeteo(t)
	srv := newIntegrationServer(t, upstream, nil)

	for _, q := range []string{"city=%20", "city=London&units=kelvin", "city=London&units=Imperial"} {
		resp, err := http.Get(srv.URL + "/api/weather?" + q)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
	if n := upstream.geocodeCalls.Load() + upstream.forecastCalls.Load(); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}
}

func TestIntegration_IndexForm(t *testing.T) {
	upstream := newFakeOpenMeteo(t)
	srv := newIntegrationServer(t, upstream, nil)

	resp, err := http.Get(srv.URL + "/?city=London&units=imperial")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{"London, GB", "59.4 °F", "Wind: 22.4 mph"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestIntegration_HealthAndMetrics(t *testing.T) {
	upstream := newFakeOpenMeteo(t)
	srv := newIntegrationServer(t, upstream, nil)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "httpRequestsTotal") {
		t.Error("/metrics missing httpRequestsTotal")
	}
}

func TestIntegration_RateLimiting(t *testing.T) {
	upstream := newFakeOpenMeteo(t)
	srv := newIntegrationServer(t, upstream, rate.NewLimiter(rate.Limit(1), 2))

	var ok, limited int
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/api/weather?city=London")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			limited++
		}
	}
	if ok < 2 || limited == 0 {
		t.Errorf("ok = %d limited = %d, want burst of 2 then 429s", ok, limited)
	}

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		t.Error("/health must not be rate limited")
	}
}
