// Package units holds the read-only unit system table shared by the
// forecast client, the lookup service and the presentation layer.
package units

import (
	"sort"
	"strings"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
)

// Table is an immutable set of unit profiles keyed by unit system.
type Table struct {
	profiles map[models.UnitSystem]models.UnitProfile
}

// Default returns the metric/imperial table used against Open-Meteo.
func Default() Table {
	return NewTable(map[models.UnitSystem]models.UnitProfile{
		models.UnitSystemMetric: {
			TemperatureUnit:  "celsius",
			WindUnit:         "ms",
			TemperatureLabel: "°C",
			WindLabel:        "m/s",
		},
		models.UnitSystemImperial: {
			TemperatureUnit:  "fahrenheit",
			WindUnit:         "mph",
			TemperatureLabel: "°F",
			WindLabel:        "mph",
		},
	})
}

// NewTable copies profiles into a new Table. Later changes to the map do not leak in.
func NewTable(profiles map[models.UnitSystem]models.UnitProfile) Table {
	t := Table{profiles: make(map[models.UnitSystem]models.UnitProfile, len(profiles))}
	for k, v := range profiles {
		t.profiles[k] = v
	}
	return t
}

// Lookup returns the profile for system. The token is matched exactly;
// callers normalize with Parse first.
func (t Table) Lookup(system models.UnitSystem) (models.UnitProfile, bool) {
	p, ok := t.profiles[system]
	return p, ok
}

// Parse trims s and reports whether the table knows it. Tokens are case-sensitive:
// "METRIC" is not a unit system.
func (t Table) Parse(s string) (models.UnitSystem, bool) {
	system := models.UnitSystem(strings.TrimSpace(s))
	_, ok := t.profiles[system]
	return system, ok
}

// Systems returns the known unit systems in a stable order.
func (t Table) Systems() []models.UnitSystem {
	out := make([]models.UnitSystem, 0, len(t.profiles))
	for k := range t.profiles {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
