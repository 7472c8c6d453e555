package lookup

import (
	"errors"
	"fmt"

	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
)

// Kind tags a failed lookup.
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindNetwork
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNetwork:
		return "network"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Stage names the pipeline step that failed. Empty for input errors.
type Stage string

const (
	StageGeocoding Stage = "geocoding"
	StageWeather   Stage = "weather"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNetwork      = errors.New("network error")
	ErrNotFound     = errors.New("not found")
)

// Error is the tagged failure of a lookup. Message is safe to show to users verbatim.
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels so callers can write errors.Is(err, lookup.ErrNotFound).
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// Result is the outcome of an asynchronous lookup: exactly one of Reading or Err is meaningful.
type Result struct {
	Reading models.WeatherReading
	Err     error
}

// OK reports whether the lookup succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

func invalidInput(msg string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg, Err: err}
}

// classify converts a client error from stage into a tagged *Error.
func classify(stage Stage, err error) *Error {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr
	}
	switch {
	case errors.Is(err, client.ErrInvalidInput):
		return invalidInput(inputMessage(err), err)
	case errors.Is(err, client.ErrLocationNotFound):
		return &Error{Kind: KindNotFound, Stage: stage, Message: "City not found", Err: err}
	case errors.Is(err, client.ErrNoCurrentWeather):
		return &Error{Kind: KindNotFound, Stage: stage, Message: "No current weather available for this location", Err: err}
	default:
		return &Error{Kind: KindNetwork, Stage: stage, Message: fmt.Sprintf("Network error (%s): %v", stage, err), Err: err}
	}
}

func inputMessage(err error) string {
	if errors.Is(err, client.ErrUnsupportedSystem) {
		return msgUnits
	}
	return msgCityRequired
}

const (
	msgCityRequired = "City is required"
	msgUnits        = "Units must be 'metric' or 'imperial'"
)
