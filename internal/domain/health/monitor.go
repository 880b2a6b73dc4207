package health

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single liveness request
const DefaultTimeout = 5 * time.Second

// Status is the tri-state liveness of a module
type Status string

const (
	StatusChecking  Status = "checking"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Report is the latest liveness observation
type Report struct {
	Status              Status    `json:"status"`
	Err                 string    `json:"error,omitempty"`
	CheckedAt           time.Time `json:"checked_at,omitempty"`
	LastHealthy         time.Time `json:"last_healthy,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Monitor polls the liveness endpoint of one network-hosted module.
// A module without enabled health checking is healthy from the start and
// never probed.
type Monitor struct {
	url      string
	enabled  bool
	interval time.Duration
	timeout  time.Duration
	retries  int
	prober   Prober
	log      *logging.Logger
	metrics  *monitoring.Metrics

	flight singleflight.Group

	mu          sync.Mutex
	report      Report
	subscribers map[int]func(Report)
	nextSub     int
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// Option configures a Monitor
type Option func(*Monitor)

// WithProber replaces the HTTP prober
func WithProber(p Prober) Option {
	return func(m *Monitor) { m.prober = p }
}

// WithLogger sets the logger
func WithLogger(log *logging.Logger) Option {
	return func(m *Monitor) { m.log = log }
}

// WithMetrics records check outcomes
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithTimeout sets the per-request timeout used when the link does not set one
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewMonitor creates a monitor for link
func NewMonitor(link *types.ComponentLink, opts ...Option) *Monitor {
	m := &Monitor{
		timeout:     DefaultTimeout,
		log:         logging.NewNop(),
		subscribers: make(map[int]func(Report)),
		report:      Report{Status: StatusHealthy},
	}

	for _, opt := range opts {
		opt(m)
	}

	if link != nil {
		m.url = link.HealthURL()
		if hc := link.HealthCheck; hc != nil && hc.Enabled {
			m.enabled = true
			m.interval = hc.Interval.Std()
			if hc.Timeout > 0 {
				m.timeout = hc.Timeout.Std()
			}
			if hc.Retries > 0 {
				m.retries = hc.Retries
			}
			m.report = Report{Status: StatusChecking}
		}
	}
	if m.prober == nil {
		var auth *types.AuthConfig
		if link != nil {
			auth = link.Auth
		}
		m.prober = NewHTTPProber(auth)
	}
	m.log = m.log.Named("health").With(zap.String("url", m.url))
	return m
}

// Enabled reports whether the monitor issues requests
func (m *Monitor) Enabled() bool {
	return m.enabled
}

// Report returns the latest observation
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

// Subscribe registers fn for every completed check and returns an unsubscribe func
func (m *Monitor) Subscribe(fn func(Report)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// Check runs one liveness check. Concurrent callers share a single
// outstanding request. Each attempt is bounded by the configured timeout and
// failed attempts are retried up to the configured count.
func (m *Monitor) Check(ctx context.Context) Report {
	if !m.enabled {
		return m.Report()
	}

	ch := m.flight.DoChan("check", func() (interface{}, error) {
		return m.run(ctx), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Report)
	case <-ctx.Done():
		return m.Report()
	}
}

func (m *Monitor) run(ctx context.Context) Report {
	var err error
	for attempt := 0; attempt <= m.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err = m.prober.Probe(attemptCtx, m.url)
		cancel()
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil && ctx.Err() != nil {
		// Cancelled by the caller, not an observation of the endpoint
		return m.Report()
	}

	m.mu.Lock()
	now := time.Now()
	m.report.CheckedAt = now
	if err == nil {
		m.report.Status = StatusHealthy
		m.report.Err = ""
		m.report.ConsecutiveFailures = 0
		m.report.LastHealthy = now
	} else {
		m.report.Status = StatusUnhealthy
		m.report.Err = err.Error()
		m.report.ConsecutiveFailures++
	}
	report := m.report
	subscribers := make([]func(Report), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subscribers = append(subscribers, fn)
	}
	m.mu.Unlock()

	m.metrics.RecordHealthCheck(string(report.Status))
	if err != nil {
		m.log.Debug("health check failed", zap.Int("consecutive_failures", report.ConsecutiveFailures), zap.Error(err))
	}
	for _, fn := range subscribers {
		fn(report)
	}
	return report
}

// Start polls on the configured interval until Stop or ctx ends. It is a
// no-op when checking is disabled or no interval is set.
func (m *Monitor) Start(ctx context.Context) {
	if !m.enabled || m.interval <= 0 {
		return
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop cancels the poll timer and any in-flight request
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	if p, ok := m.prober.(interface{ Close() }); ok {
		p.Close()
	}
}
