// Package canary runs a periodic canary lookup so /health reflects upstream
// reachability between user requests.
package canary

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// Looker runs one lookup. *lookup.Service satisfies it.
type Looker interface {
	Lookup(ctx context.Context, city, unitSystem string) (models.WeatherReading, error)
}

// Config holds the canary target and schedule.
type Config struct {
	City     string
	Units    string
	Interval time.Duration
	Timeout  time.Duration
}

// Status is the outcome of the most recent canary run.
type Status struct {
	Ran     bool
	OK      bool
	Error   string
	Checked time.Time
}

// Runner schedules canary lookups and keeps the last outcome.
type Runner struct {
	looker    Looker
	cfg       Config
	logger    *zap.Logger
	scheduler *gocron.Scheduler

	mu   sync.RWMutex
	last Status
}

// New returns a Runner. A nil logger is replaced with a no-op.
func New(looker Looker, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Runner{
		looker:    looker,
		cfg:       cfg,
		logger:    logger,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules RunOnce every Interval, starting immediately. A zero interval
// or empty city leaves the runner idle.
func (p *Runner) Start() error {
	if p.cfg.Interval <= 0 || p.cfg.City == "" {
		p.logger.Info("canary disabled")
		return nil
	}
	_, err := p.scheduler.Every(p.cfg.Interval).SingletonMode().Do(func() {
		p.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}
	p.scheduler.StartAsync()
	p.logger.Info("canary started", zap.String("city", p.cfg.City), zap.Duration("interval", p.cfg.Interval))
	return nil
}

// Stop halts the scheduler. Safe to call when Start was a no-op.
func (p *Runner) Stop() {
	p.scheduler.Stop()
}

// RunOnce performs one canary lookup and records its outcome.
func (p *Runner) RunOnce(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	_, err := p.looker.Lookup(ctx, p.cfg.City, p.cfg.Units)
	st := Status{Ran: true, OK: err == nil, Checked: time.Now()}
	if err != nil {
		st.Error = err.Error()
		observability.CanaryUp.Set(0)
		p.logger.Warn("canary lookup failed", zap.String("city", p.cfg.City), zap.Error(err))
	} else {
		observability.CanaryUp.Set(1)
	}

	p.mu.Lock()
	p.last = st
	p.mu.Unlock()
	return st
}

// Last returns the outcome of the most recent run.
func (p *Runner) Last() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Healthy reports false only when the runner has run and its last run failed.
func (p *Runner) Healthy() bool {
	st := p.Last()
	return !st.Ran || st.OK
}
