package client

import (
	"context"
	"errors"
	"strings"

	"github.com/kjstillabower/weather-lookup-service/internal/circuitbreaker"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as the upstreamErrorsTotal category label.
const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryNoCurrentWeather ErrorCategory = "no_current_weather"
	ErrorCategoryUpstreamStatus   ErrorCategory = "upstream_status"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryValidation       ErrorCategory = "validation"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ErrorCategoryCircuitOpen
	}
	if errors.Is(err, ErrInvalidInput) {
		return ErrorCategoryValidation
	}
	if errors.Is(err, ErrLocationNotFound) {
		return ErrorCategoryLocationNotFound
	}
	if errors.Is(err, ErrNoCurrentWeather) {
		return ErrorCategoryNoCurrentWeather
	}

	errStr := err.Error()
	if strings.Contains(errStr, "parse response") {
		return ErrorCategoryParsing
	}
	if strings.Contains(errStr, "HTTP ") {
		return ErrorCategoryUpstreamStatus
	}
	if errors.Is(err, ErrUpstreamFailure) || strings.Contains(errStr, "connection") {
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}
