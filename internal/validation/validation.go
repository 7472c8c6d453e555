package validation

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrCityEmpty is returned when city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooShort is returned when city length is below the minimum.
var ErrCityTooShort = errors.New("city too short")

// ErrCityTooLong is returned when city length exceeds the maximum.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when city contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ErrUnitSystem is returned for unit systems other than metric and imperial.
var ErrUnitSystem = errors.New("units must be 'metric' or 'imperial'")

var validate = validator.New()

// LookupQuery is the bound query string of a weather lookup request.
type LookupQuery struct {
	City  string `validate:"required"`
	Units string `validate:"omitempty,oneof=metric imperial"`
}

// BindLookupQuery trims the raw values, applies defaultUnits when
// units is blank, then checks the struct tags. Returned errors wrap ErrCityEmpty
// or ErrUnitSystem so callers can branch with errors.Is.
func BindLookupQuery(city, units, defaultUnits string) (LookupQuery, error) {
	q := LookupQuery{
		City:  strings.TrimSpace(city),
		Units: strings.TrimSpace(units),
	}
	if q.Units == "" {
		q.Units = defaultUnits
	}
	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "City" {
			return q, ErrCityEmpty
		}
		return q, ErrUnitSystem
	}
	return q, nil
}

// ValidateCity trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to allowed characters: letters (Unicode, with marks), digits,
// space, comma, hyphen, apostrophe, period. Returns the trimmed string.
func ValidateCity(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'', '.', '’':
		return true
	}
	return false
}
