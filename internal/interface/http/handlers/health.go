package handlers

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// Критичные проверки (ростер, Postgres) влияют на Ready, необязательные
// (Redis, ключ Gemini) только на Healthy и Degraded.
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker is what /health and /ready call.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc returns nil when the dependency is fine.
type HealthCheckFunc func(ctx context.Context) error

type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Degraded  []string               `json:"degraded,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type registeredCheck struct {
	name     string
	fn       HealthCheckFunc
	optional bool
}

// CompositeHealthChecker runs registered checks concurrently, each under its
// own timeout (3s unless SetTimeout says otherwise).
type CompositeHealthChecker struct {
	version string
	started time.Time

	mu      sync.RWMutex
	checks  []registeredCheck
	timeout time.Duration
}

func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{version: version, started: time.Now(), timeout: 3 * time.Second}
}

func (c *CompositeHealthChecker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// AddCheck registers a critical check. A name registered twice replaces
// the earlier check.
func (c *CompositeHealthChecker) AddCheck(name string, fn HealthCheckFunc) {
	c.register(registeredCheck{name: name, fn: fn})
}

func (c *CompositeHealthChecker) AddOptionalCheck(name string, fn HealthCheckFunc) {
	c.register(registeredCheck{name: name, fn: fn, optional: true})
}

func (c *CompositeHealthChecker) register(rc registeredCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = slices.DeleteFunc(c.checks, func(x registeredCheck) bool { return x.name == rc.name })
	c.checks = append(c.checks, rc)
}

func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := slices.Clone(c.checks)
	timeout := c.timeout
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, rc := range checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, rc, timeout)
			return nil
		})
	}
	_ = g.Wait()

	st := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	var failed []string
	for i, rc := range checks {
		res := results[i]
		st.Checks[rc.name] = res
		if res.Healthy {
			continue
		}
		st.Healthy = false
		failed = append(failed, rc.name)
		if rc.optional {
			st.Degraded = append(st.Degraded, rc.name)
		} else {
			st.Ready = false
		}
	}
	slices.Sort(failed)
	slices.Sort(st.Degraded)

	switch {
	case len(checks) == 0:
		st.Message = "no checks registered"
	case len(failed) == 0:
		st.Message = "all checks passed"
	default:
		st.Message = "failing: " + strings.Join(failed, ", ")
	}
	return st
}

func runCheck(ctx context.Context, rc registeredCheck, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := rc.fn(ctx)
	res := CheckResult{
		Healthy:  err == nil,
		Optional: rc.optional,
		Message:  "ok",
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger: the Postgres connection or the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewPingCheck(p Pinger) HealthCheckFunc { return p.Ping }

// RosterSizer reports how many students are loaded.
type RosterSizer interface {
	Len() int
}

// NewRosterCheck fails when no students are loaded.
func NewRosterCheck(r RosterSizer) HealthCheckFunc {
	return func(context.Context) error {
		if r == nil || r.Len() == 0 {
			return errors.New("roster is empty")
		}
		return nil
	}
}

// NewConfiguredCheck reports a missing optional integration, e.g. an unset
// provider key.
func NewConfiguredCheck(configured bool, what string) HealthCheckFunc {
	return func(context.Context) error {
		if !configured {
			return errors.New(what + " is not configured")
		}
		return nil
	}
}
