// Package health probes the services the registry depends on (the ledger
// RPC node, the pinning service, the database) and tracks their status.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status values reported for a dependency.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe checks one dependency. Check returns nil when it is reachable.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// DependencyStatus is the last observed state of a dependency.
type DependencyStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	FailCount int       `json:"fail_count"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// WebhookDispatchFunc is an optional callback for dispatching health-degraded events.
type WebhookDispatchFunc func(ctx context.Context, eventType string, payload map[string]string)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, success bool)

// HealthChecker runs periodic dependency probes.
type HealthChecker struct {
	probes    []Probe
	state     map[string]*DependencyStatus
	mu        sync.Mutex
	cfg       Config
	onWebhook WebhookDispatchFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new HealthChecker.
func New(cfg Config, logger *zap.Logger, probes ...Probe) *HealthChecker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	state := make(map[string]*DependencyStatus, len(probes))
	for _, p := range probes {
		state[p.Name] = &DependencyStatus{Name: p.Name, Status: StatusUnknown}
	}
	return &HealthChecker{
		probes: probes,
		state:  state,
		cfg:    cfg,
		logger: logger,
	}
}

// SetWebhookDispatch configures the webhook dispatch callback.
func (h *HealthChecker) SetWebhookDispatch(fn WebhookDispatchFunc) {
	h.onWebhook = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *HealthChecker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Interval is the configured time between checks.
func (h *HealthChecker) Interval() time.Duration { return h.cfg.CheckInterval }

// Snapshot returns the current status of every dependency in probe order.
func (h *HealthChecker) Snapshot() []DependencyStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]DependencyStatus, 0, len(h.probes))
	for _, p := range h.probes {
		out = append(out, *h.state[p.Name])
	}
	return out
}

// Healthy reports whether no dependency is degraded.
func (h *HealthChecker) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.state {
		if s.Status == StatusDegraded {
			return false
		}
	}
	return true
}

// CheckAll runs every probe concurrently and updates the recorded status.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := p.Check(pctx)
			cancel()
			h.observe(ctx, p.Name, err)
		}(p)
	}
	wg.Wait()
}

func (h *HealthChecker) observe(ctx context.Context, name string, err error) {
	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(name, success)
	}

	h.mu.Lock()
	st := h.state[name]
	prev := st.Status
	st.CheckedAt = time.Now().UTC()
	if success {
		st.FailCount = 0
		st.LastError = ""
		st.Status = StatusHealthy
	} else {
		st.FailCount++
		st.LastError = err.Error()
		if st.FailCount >= h.cfg.FailThreshold {
			st.Status = StatusDegraded
		}
	}
	count, status := st.FailCount, st.Status
	h.mu.Unlock()

	switch {
	case success && prev == StatusDegraded:
		h.logger.Info("health: recovered", zap.String("dependency", name))
	case !success && count == h.cfg.FailThreshold:
		// Transition: healthy → degraded (exactly at threshold)
		h.logger.Warn("health: degraded",
			zap.String("dependency", name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
		if h.onWebhook != nil {
			h.onWebhook(ctx, "dependency.degraded", map[string]string{
				"dependency": name,
				"error":      err.Error(),
			})
		}
	case !success:
		h.logger.Debug("health: probe failed",
			zap.String("dependency", name),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}
