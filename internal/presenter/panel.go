// Package presenter holds the view model of the lookup form and the
// controller that drives one lookup at a time.
package presenter

import (
	"strconv"
	"strings"
	"sync"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
)

const (
	StatusReady   = "Ready"
	StatusLoading = "Loading..."

	placeholder = "--"
)

// View is a snapshot of the panel's display labels.
type View struct {
	Title       string
	Temperature string
	Wind        string
	Status      string
	Error       string
	Busy        bool
}

// Panel is the results panel. Every method is safe for concurrent use.
type Panel struct {
	mu   sync.Mutex
	view View
}

// NewPanel returns an idle panel with placeholder values.
func NewPanel() *Panel {
	return &Panel{view: idleView()}
}

func idleView() View {
	return View{
		Title:       placeholder,
		Temperature: placeholder,
		Wind:        "Wind: " + placeholder,
		Status:      StatusReady,
	}
}

// View returns the current labels.
func (p *Panel) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// SetBusy toggles the loading state. The previous reading stays visible.
func (p *Panel) SetBusy(busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view.Busy = busy
	if busy {
		p.view.Status = StatusLoading
		p.view.Error = ""
	} else {
		p.view.Status = StatusReady
	}
}

// ShowReading replaces the labels with r and clears any previous error.
func (p *Panel) ShowReading(r models.WeatherReading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	busy := p.view.Busy
	p.view = Render(r)
	p.view.Busy = busy
	if busy {
		p.view.Status = StatusLoading
	}
}

// ShowError displays msg verbatim and resets the reading labels.
func (p *Panel) ShowError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	busy, status := p.view.Busy, p.view.Status
	p.view = idleView()
	p.view.Busy, p.view.Status = busy, status
	p.view.Error = msg
}

// Render formats r into display labels.
func Render(r models.WeatherReading) View {
	return View{
		Title:       Title(r.Name, r.Country),
		Temperature: formatValue(r.Temperature, r.TemperatureLabel),
		Wind:        "Wind: " + formatValue(r.WindSpeed, r.WindLabel),
		Status:      StatusReady,
	}
}

// Title joins name and country as "London, GB", dropping an empty country.
func Title(name, country string) string {
	name = strings.TrimSpace(name)
	country = strings.TrimSpace(country)
	switch {
	case name == "" && country == "":
		return placeholder
	case country == "":
		return name
	case name == "":
		return country
	}
	return name + ", " + country
}

func formatValue(v *float64, label string) string {
	if v == nil {
		return placeholder
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	if label == "" {
		return s
	}
	return s + " " + label
}
