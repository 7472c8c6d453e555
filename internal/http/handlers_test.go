package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-lookup-service/internal/degraded"
	"github.com/kjstillabower/weather-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-service/internal/lookup"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/overload"
	"github.com/kjstillabower/weather-lookup-service/internal/units"
)

func floatPtr(v float64) *float64 { return &v }

type mockLooker struct {
	reading models.WeatherReading
	err     error
	calls   atomic.Int32
	city    string
	units   string
}

func (m *mockLooker) Lookup(ctx context.Context, city, unitSystem string) (models.WeatherReading, error) {
	m.calls.Add(1)
	m.city, m.units = city, unitSystem
	return m.reading, m.err
}

type stubCanary struct{ healthy bool }

func (p stubCanary) Healthy() bool { return p.healthy }

func londonReading() models.WeatherReading {
	return models.WeatherReading{
		Name:             "London",
		Country:          "GB",
		Temperature:      floatPtr(15.2),
		WindSpeed:        floatPtr(10),
		UnitSystem:       models.UnitSystemMetric,
		TemperatureLabel: "°C",
		WindLabel:        "m/s",
	}
}

func newTestHandler(looker Looker, hc *HealthConfig) *Handler {
	return NewHandler(looker, units.Default(), "metric", hc, zap.NewNop())
}

func resetHealthState(t *testing.T) {
	t.Helper()
	overload.Reset()
	degraded.Reset()
	lifecycle.SetShuttingDown(false)
	t.Cleanup(func() {
		overload.Reset()
		degraded.Reset()
		lifecycle.SetShuttingDown(false)
	})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body struct {
		Error map[string]string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestHandler_GetWeather_Success(t *testing.T) {
	resetHealthState(t)
	looker := &mockLooker{reading: londonReading()}
	h := newTestHandler(looker, nil)

	w := httptest.NewRecorder()
	h.GetWeather(w, httptest.NewRequest("GET", "/api/weather?city=London", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if looker.units != "metric" {
		t.Errorf("units passed = %q, want default metric", looker.units)
	}
	var got models.WeatherReading
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "London" || got.TemperatureLabel != "°C" || got.Temperature == nil || *got.Temperature != 15.2 {
		t.Errorf("body = %+v", got)
	}
	if _, total := degraded.ErrorRate(time.Minute); total != 1 {
		t.Errorf("degraded total = %d, want 1", total)
	}
}

func TestHandler_GetWeather_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantMsg string
	}{
		{"missing city", "/api/weather", "City is required"},
		{"blank city", "/api/weather?city=%20%20", "City is required"},
		{"bad units", "/api/weather?city=London&units=kelvin", "Units must be 'metric' or 'imperial'"},
		{"upper-case units", "/api/weather?city=London&units=METRIC", "Units must be 'metric' or 'imperial'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			looker := &mockLooker{reading: londonReading()}
			h := newTestHandler(looker, nil)

			w := httptest.NewRecorder()
			h.GetWeather(w, httptest.NewRequest("GET", tt.query, nil))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			body := decodeError(t, w)
			if body["code"] != "INVALID_INPUT" || body["message"] != tt.wantMsg {
				t.Errorf("error = %v", body)
			}
			if looker.calls.Load() != 0 {
				t.Error("lookup called for invalid input")
			}
		})
	}
}

func TestHandler_GetWeather_LookupErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantStage  string
	}{
		{
			"not found",
			&lookup.Error{Kind: lookup.KindNotFound, Stage: lookup.StageGeocoding, Message: "City not found"},
			http.StatusNotFound, "NOT_FOUND", "geocoding",
		},
		{
			"network",
			&lookup.Error{Kind: lookup.KindNetwork, Stage: lookup.StageWeather, Message: "Network error (weather): refused"},
			http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "weather",
		},
		{
			"invalid",
			&lookup.Error{Kind: lookup.KindInvalidInput, Message: "City name contains invalid characters"},
			http.StatusBadRequest, "INVALID_INPUT", "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealthState(t)
			h := newTestHandler(&mockLooker{err: tt.err}, nil)

			w := httptest.NewRecorder()
			h.GetWeather(w, httptest.NewRequest("GET", "/api/weather?city=X&units=imperial", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeError(t, w)
			if body["code"] != tt.wantCode || body["message"] != tt.err.Error() || body["stage"] != tt.wantStage {
				t.Errorf("error = %v", body)
			}
		})
	}
}

func TestHandler_GetWeather_NetworkErrorCountsTowardDegraded(t *testing.T) {
	resetHealthState(t)
	h := newTestHandler(&mockLooker{err: &lookup.Error{Kind: lookup.KindNetwork, Stage: lookup.StageGeocoding, Message: "x"}}, nil)

	h.GetWeather(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/weather?city=London", nil))

	if errs, total := degraded.ErrorRate(time.Minute); errs != 1 || total != 1 {
		t.Errorf("ErrorRate = %d/%d, want 1/1", errs, total)
	}
}

func TestHandler_GetIndex_EmptyForm(t *testing.T) {
	looker := &mockLooker{}
	h := newTestHandler(looker, nil)

	w := httptest.NewRecorder()
	h.GetIndex(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`name="city"`, `<option value="imperial"`, `<option value="metric" selected`, "Ready"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if looker.calls.Load() != 0 {
		t.Error("lookup called without a city")
	}
}

func TestHandler_GetIndex_RendersReading(t *testing.T) {
	resetHealthState(t)
	h := newTestHandler(&mockLooker{reading: londonReading()}, nil)

	w := httptest.NewRecorder()
	h.GetIndex(w, httptest.NewRequest("GET", "/?city=London&units=metric", nil))

	body := w.Body.String()
	for _, want := range []string{"London, GB", "15.2 °C", "Wind: 10 m/s"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestHandler_GetIndex_RendersErrorVerbatim(t *testing.T) {
	resetHealthState(t)
	h := newTestHandler(&mockLooker{err: &lookup.Error{Kind: lookup.KindNotFound, Stage: lookup.StageGeocoding, Message: "City not found"}}, nil)

	w := httptest.NewRecorder()
	h.GetIndex(w, httptest.NewRequest("GET", "/?city=Atlantis", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "City not found") {
		t.Error("error message not rendered")
	}
}

func getHealth(t *testing.T, h *Handler) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest("GET", "/health", nil))
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return w.Code, body
}

func TestHandler_GetHealth(t *testing.T) {
	resetHealthState(t)
	h := newTestHandler(&mockLooker{}, &HealthConfig{
		DegradedWindow:   time.Minute,
		DegradedErrorPct: 50,
		Breakers:         map[string]func() string{"geocoding": func() string { return "closed" }},
	})

	code, body := getHealth(t, h)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v, want 200 healthy", code, body["status"])
	}
	checks, _ := body["checks"].(map[string]interface{})
	if checks["circuit_geocoding"] != "closed" || checks["canary"] != "disabled" {
		t.Errorf("checks = %v", checks)
	}
}

func TestHandler_GetHealth_ShuttingDown(t *testing.T) {
	resetHealthState(t)
	lifecycle.SetShuttingDown(true)
	h := newTestHandler(&mockLooker{}, nil)

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "shutting-down" {
		t.Errorf("health = %d %v, want 503 shutting-down", code, body["status"])
	}
}

func TestHandler_GetHealth_Overloaded(t *testing.T) {
	resetHealthState(t)
	for i := 0; i < 10; i++ {
		overload.RecordDenial()
	}
	h := newTestHandler(&mockLooker{}, &HealthConfig{
		OverloadWindow:       time.Second,
		OverloadThresholdPct: 50,
		RateLimitRPS:         4,
	})

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "overloaded" {
		t.Errorf("health = %d %v, want 503 overloaded", code, body["status"])
	}
}

func TestHandler_GetHealth_DegradedErrorRate(t *testing.T) {
	resetHealthState(t)
	degraded.RecordError()
	degraded.RecordError()
	degraded.RecordSuccess()
	h := newTestHandler(&mockLooker{}, &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50})

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("health = %d %v, want 503 degraded", code, body["status"])
	}
}

func TestHandler_GetHealth_NotDegraded_BelowErrorThreshold(t *testing.T) {
	resetHealthState(t)
	degraded.RecordError()
	for i := 0; i < 9; i++ {
		degraded.RecordSuccess()
	}
	h := newTestHandler(&mockLooker{}, &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50})

	if _, body := getHealth(t, h); body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestHandler_GetHealth_CanaryFailed(t *testing.T) {
	resetHealthState(t)
	h := newTestHandler(&mockLooker{}, &HealthConfig{Canary: stubCanary{healthy: false}})

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("health = %d %v, want 503 degraded", code, body["status"])
	}
	checks, _ := body["checks"].(map[string]interface{})
	if checks["canary"] != "unhealthy" || checks["upstream"] != "unhealthy" {
		t.Errorf("checks = %v", checks)
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	resetHealthState(t)
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewHandler(&mockLooker{}, units.Default(), "metric", &HealthConfig{}, zap.New(core))

	getHealth(t, h)
	lifecycle.SetShuttingDown(true)
	getHealth(t, h)

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("got %d transition logs, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["previous_status"] != "healthy" || ctx["current_status"] != "shutting-down" {
		t.Errorf("transition fields = %v", ctx)
	}
}
