package models

// UnitSystem selects the temperature and wind units of a lookup.
type UnitSystem string

const (
	UnitSystemMetric   UnitSystem = "metric"
	UnitSystemImperial UnitSystem = "imperial"
)

// UnitProfile maps a unit system to upstream query tokens and display labels.
type UnitProfile struct {
	TemperatureUnit  string `json:"temperatureUnit"`
	WindUnit         string `json:"windUnit"`
	TemperatureLabel string `json:"temperatureLabel"`
	WindLabel        string `json:"windLabel"`
}

// Location is the first geocoding match for a city query.
// Latitude and Longitude are nil when upstream omits them.
type Location struct {
	Name      string   `json:"name"`
	Country   string   `json:"country"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// WeatherReading is the current observation for one lookup.
// Temperature and WindSpeed stay nil when upstream omits them.
type WeatherReading struct {
	Name             string     `json:"name"`
	Country          string     `json:"country"`
	Temperature      *float64   `json:"temperature"`
	WindSpeed        *float64   `json:"windSpeed"`
	UnitSystem       UnitSystem `json:"unitSystem"`
	TemperatureLabel string     `json:"temperatureLabel"`
	WindLabel        string     `json:"windLabel"`
	ObservedAt       string     `json:"observedAt,omitempty"`
	WeatherCode      *int       `json:"weatherCode,omitempty"`
}
