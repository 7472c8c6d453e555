package presenter

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/lookup"
)

// ErrBusy is returned by Submit while a lookup is already in flight.
var ErrBusy = errors.New("lookup already in progress")

// Controller runs at most one lookup at a time against a Panel.
type Controller struct {
	looker lookup.Looker
	panel  *Panel
	logger *zap.Logger
	busy   atomic.Bool
}

// NewController returns a controller writing into panel. A nil logger is replaced with a no-op.
func NewController(looker lookup.Looker, panel *Panel, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if panel == nil {
		panel = NewPanel()
	}
	return &Controller{looker: looker, panel: panel, logger: logger}
}

// Panel returns the panel the controller writes to.
func (c *Controller) Panel() *Panel {
	return c.panel
}

// Busy reports whether a lookup is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Submit starts a lookup with lookup.Go. The returned channel yields exactly one
// Result and is then closed; the panel is updated and the busy flag cleared
// before the Result is sent. A trigger that arrives while a lookup is in flight
// is ignored with ErrBusy.
func (c *Controller) Submit(ctx context.Context, city, unitSystem string) (<-chan lookup.Result, error) {
	if !c.busy.CompareAndSwap(false, true) {
		c.logger.Debug("lookup ignored while busy", zap.String("city", city))
		return nil, ErrBusy
	}
	c.panel.SetBusy(true)

	results := lookup.Go(ctx, c.looker, city, unitSystem)
	out := make(chan lookup.Result, 1)
	go func() {
		defer close(out)
		res, ok := <-results
		if !ok {
			res = lookup.Result{Err: errors.New("lookup ended without a result")}
		}
		c.finish(city, res)
		out <- res
	}()
	return out, nil
}

func (c *Controller) finish(city string, res lookup.Result) {
	defer func() {
		c.panel.SetBusy(false)
		c.busy.Store(false)
	}()
	if res.Err != nil {
		c.logger.Info("lookup failed", zap.String("city", city), zap.Error(res.Err))
		c.panel.ShowError(res.Err.Error())
		return
	}
	c.panel.ShowReading(res.Reading)
}
