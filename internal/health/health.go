// Package health aggregates readiness signals for the fraud prevention
// service. The decision engine refuses traffic while its storage backend
// is unreachable, so readiness is driven by a registry of subsystem
// checkers rather than a bare process-up probe.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is the outcome of one subsystem check. LatencyMS carries how long
// the check took; a database probe that passes but crawls is an early
// warning that attempt writes are about to time out.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Checker probes one subsystem. It must honor ctx: readiness handlers run
// checks under a short deadline so a hung backend reports unhealthy
// instead of stalling the probe.
type Checker func(ctx context.Context) Status

// Registry holds named subsystem checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates an empty checker registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named subsystem checker. Checkers run in registration
// order.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs every registered checker, stamping each result with its
// measured latency. The service is healthy only if every subsystem is.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		start := time.Now()
		statuses[i] = nc.check(ctx)
		statuses[i].Name = nc.name
		statuses[i].LatencyMS = time.Since(start).Milliseconds()
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}
