// Package health aggregates dependency probes for the liveness and readiness
// endpoints. The index engine and postgres are required; redis only degrades
// the report because search works without its caches.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/resilience"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) rank() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check probes one dependency. It should return promptly once ctx ends.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Ready reports whether the service should receive traffic. Degraded counts
// as ready.
func (r Report) Ready() bool {
	return r.Status != StatusDown
}

type Checker struct {
	mu           sync.RWMutex
	checks       map[string]Check
	checkTimeout time.Duration
	logger       *slog.Logger
}

type Option func(*Checker)

// WithCheckTimeout bounds each probe. A probe that overruns reports down.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *Checker) { c.checkTimeout = d }
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		checks:       make(map[string]Check),
		checkTimeout: 2 * time.Second,
		logger:       slog.Default().With("component", "health"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Run probes every component concurrently. The report status is the worst
// component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	checks := make([]Check, 0, len(c.checks))
	for name, check := range c.checks {
		names = append(names, name)
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			start := time.Now()
			res, err := resilience.WithTimeout(ctx, c.checkTimeout, func(ctx context.Context) (ComponentHealth, error) {
				return checks[i](ctx), nil
			})
			if err != nil {
				res = ComponentHealth{Status: StatusDown, Message: err.Error()}
			}
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			results[i] = res
			return nil
		})
	}
	g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(results)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, res := range results {
		report.Components[names[i]] = res
		if res.Status.rank() > report.Status.rank() {
			report.Status = res.Status
		}
	}
	if report.Status != StatusUp {
		c.logger.Warn("health degraded", "status", report.Status, "failing", failing(report))
	}
	return report
}

func failing(r Report) []string {
	var out []string
	for name, comp := range r.Components {
		if comp.Status != StatusUp {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// LiveHandler answers as long as the process serves HTTP.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler runs the checks and answers 503 only when a component is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		code := http.StatusOK
		if !report.Ready() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
