package health

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/metrics"
	"github.com/rs/zerolog"
)

// Result is one probe outcome
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker probes one dependency
type Checker interface {
	Check(ctx context.Context) Result
}

// Config is the probe schedule
type Config struct {
	Interval time.Duration
	// Timeout bounds a single Check call
	Timeout time.Duration
	// Retries is how many failures in a row turn the component unhealthy
	Retries int
}

// DefaultConfig returns the schedule used for zero fields
func DefaultConfig() Config {
	return Config{Interval: 15 * time.Second, Timeout: 5 * time.Second, Retries: 3}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Retries <= 0 {
		c.Retries = def.Retries
	}
	return c
}

// Status is the folded view of consecutive results. A component starts
// healthy and a single success restores it.
type Status struct {
	Healthy   bool
	Failures  int
	Successes int
	Last      Result
	Since     time.Time // last flip, zero until the first one
}

// NewStatus returns a healthy status with no history
func NewStatus() *Status {
	return &Status{Healthy: true}
}

// Update folds r into s and reports whether Healthy flipped
func (s *Status) Update(r Result, cfg Config) bool {
	s.Last = r
	prev := s.Healthy

	switch {
	case r.Healthy:
		s.Successes, s.Failures = s.Successes+1, 0
		s.Healthy = true
	default:
		s.Failures, s.Successes = s.Failures+1, 0
		s.Healthy = s.Healthy && s.Failures < cfg.Retries
	}

	if prev == s.Healthy {
		return false
	}
	s.Since = r.CheckedAt
	return true
}

// Monitor runs a Checker on a ticker and mirrors the outcome into the
// metrics health registry under its name.
type Monitor struct {
	name    string
	checker Checker
	cfg     Config

	mu        sync.Mutex
	status    *Status
	observers []func(healthy bool)

	stopCh   chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewMonitor creates a monitor; zero fields of cfg take DefaultConfig values
func NewMonitor(name string, checker Checker, cfg Config) *Monitor {
	return &Monitor{
		name:    name,
		checker: checker,
		cfg:     cfg.withDefaults(),
		status:  NewStatus(),
		stopCh:  make(chan struct{}),
		logger:  log.WithComponent("health").With().Str("check", name).Logger(),
	}
}

// OnChange registers fn for healthy/unhealthy flips
func (m *Monitor) OnChange(fn func(healthy bool)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Start launches the probe loop
func (m *Monitor) Start() {
	go func() {
		t := time.NewTicker(m.cfg.Interval)
		defer t.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-t.C:
				m.CheckNow()
			}
		}
	}()
}

// Stop ends the probe loop. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// CheckNow probes once, outside the ticker, and returns the new status
func (m *Monitor) CheckNow() Status {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	r := m.checker.Check(ctx)
	cancel()

	m.mu.Lock()
	flipped := m.status.Update(r, m.cfg)
	snap := *m.status
	observers := append([]func(bool){}, m.observers...)
	m.mu.Unlock()

	metrics.UpdateComponent(m.name, snap.Healthy, r.Message)
	if !flipped {
		return snap
	}

	if snap.Healthy {
		m.logger.Info().Msg("Backend probe recovered")
	} else {
		m.logger.Warn().
			Str("reason", r.Message).
			Int("failures", snap.Failures).
			Msg("Backend probe failing")
	}
	for _, fn := range observers {
		fn(snap.Healthy)
	}
	return snap
}

// Status returns a snapshot of the current status
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.status
}
