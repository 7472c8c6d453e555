package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/degraded"
	"github.com/kjstillabower/weather-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-service/internal/lookup"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/overload"
	"github.com/kjstillabower/weather-lookup-service/internal/presenter"
	"github.com/kjstillabower/weather-lookup-service/internal/units"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

//go:embed templates/index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// Looker runs one lookup. *lookup.Service satisfies it.
type Looker interface {
	Lookup(ctx context.Context, city, unitSystem string) (models.WeatherReading, error)
}

// CanaryStatus reports the outcome of the last upstream canary.
type CanaryStatus interface {
	Healthy() bool
}

// HealthConfig holds thresholds and dependencies for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// Canary, when set, marks the service degraded after a failed canary lookup.
	Canary CanaryStatus
	// Breakers maps a component name to its circuit breaker state func.
	Breakers map[string]func() string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	looker       Looker
	units        units.Table
	defaultUnits string
	healthConfig *HealthConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. defaultUnits applies when a request omits units.
func NewHandler(looker Looker, table units.Table, defaultUnits string, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		looker:       looker,
		units:        table,
		defaultUnits: defaultUnits,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetWeather handles GET /api/weather?city=&units=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query, err := validation.BindLookupQuery(q.Get("city"), q.Get("units"), h.defaultUnits)
	if err != nil {
		msg := "City is required"
		if errors.Is(err, validation.ErrUnitSystem) {
			msg = "Units must be 'metric' or 'imperial'"
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", msg)
		return
	}

	reading, err := h.looker.Lookup(r.Context(), query.City, query.Units)
	recordOutcome(err)
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

type indexPage struct {
	City    string
	Units   string
	Systems []models.UnitSystem
	View    presenter.View
	Queried bool
}

// GetIndex handles GET /. With a city query parameter it runs the lookup and
// renders the result or the error message in the panel.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := indexPage{
		City:    q.Get("city"),
		Units:   q.Get("units"),
		Systems: h.units.Systems(),
		Queried: q.Has("city"),
	}
	if page.Units == "" {
		page.Units = h.defaultUnits
	}

	panel := presenter.NewPanel()
	status := http.StatusOK
	if page.Queried {
		reading, err := h.looker.Lookup(r.Context(), page.City, page.Units)
		recordOutcome(err)
		if err != nil {
			status = lookupStatus(err)
			panel.ShowError(err.Error())
		} else {
			panel.ShowReading(reading)
		}
	}
	page.View = panel.View()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, page); err != nil {
		h.logger.Error("render index", zap.Error(err))
	}
}

// recordOutcome feeds the degraded error-rate window. Only network failures count
// as errors; input errors never reached upstream.
func recordOutcome(err error) {
	switch {
	case err == nil:
		degraded.RecordSuccess()
	case errors.Is(err, lookup.ErrNetwork):
		degraded.RecordError()
	case errors.Is(err, lookup.ErrNotFound):
		degraded.RecordSuccess()
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"upstream": "healthy"}
	if result.reason == "error_rate_breach" || result.reason == "canary_failed" {
		checks["upstream"] = "unhealthy"
	}
	if h.healthConfig != nil {
		switch {
		case h.healthConfig.Canary == nil:
			checks["canary"] = "disabled"
		case h.healthConfig.Canary.Healthy():
			checks["canary"] = "healthy"
		default:
			checks["canary"] = "unhealthy"
		}
		for name, state := range h.healthConfig.Breakers {
			checks["circuit_"+name] = state()
		}
	}

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-lookup-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	cfg := h.healthConfig
	if overload.Exceeded(cfg.OverloadWindow, cfg.RateLimitRPS, cfg.OverloadThresholdPct) {
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
	}
	if degraded.Breached(cfg.DegradedWindow, cfg.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	if cfg.Canary != nil && !cfg.Canary.Healthy() {
		return healthResult{"degraded", http.StatusServiceUnavailable, "canary_failed"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// lookupStatus maps a lookup error kind to its HTTP status.
func lookupStatus(err error) int {
	switch {
	case errors.Is(err, lookup.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, lookup.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func lookupCode(err error) string {
	switch {
	case errors.Is(err, lookup.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, lookup.ErrNotFound):
		return "NOT_FOUND"
	default:
		return "UPSTREAM_UNAVAILABLE"
	}
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error body with code, message and requestId.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeLookupError writes a failed lookup. The message is the user-facing text;
// the failing stage is included when known.
func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	body := map[string]string{
		"code":      lookupCode(err),
		"message":   err.Error(),
		"requestId": observability.CorrelationID(r.Context()),
	}
	var lerr *lookup.Error
	if errors.As(err, &lerr) && lerr.Stage != "" {
		body["stage"] = string(lerr.Stage)
	}
	writeJSON(w, lookupStatus(err), map[string]interface{}{"error": body})
	if logger := observability.LoggerFromContext(r.Context()); logger != nil {
		logger.Debug("lookup error", zap.Error(err))
	}
}
