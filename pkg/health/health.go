// SPDX-License-Identifier: Apache-2.0

// Package health aggregates per-component health checks for the
// serving surface. Components (memory backend, model provider, tool
// registry) register a Checker; the HTTP health endpoint reports the
// individual results and a rolled-up status.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the health state of a component.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"

	// StatusDegraded indicates the component works with reduced capacity.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy Status = "unhealthy"
)

// Result is the outcome of one component check.
type Result struct {
	Component string    `json:"component"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker checks the health of a single component. The context carries
// the caller's deadline.
type Checker interface {
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) Result

func (f CheckerFunc) Check(ctx context.Context) Result {
	r := f(ctx)
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now()
	}
	return r
}

// Static returns a checker with a fixed status and message.
func Static(status Status, message string) Checker {
	return CheckerFunc(func(context.Context) Result {
		return Result{Status: status, Message: message}
	})
}

// Registry holds named component checkers.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds or replaces the checker for a component.
func (r *Registry) Register(name string, c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = c
}

// Check runs the checker for one component.
func (r *Registry) Check(ctx context.Context, name string) (Result, error) {
	r.mu.RLock()
	c, ok := r.checkers[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("no checker registered for %q", name)
	}
	res := c.Check(ctx)
	res.Component = name
	return res, nil
}

// CheckAll runs every checker and rolls the results up: any unhealthy
// component makes the whole set unhealthy, otherwise any degraded one
// makes it degraded. Results come back sorted by component name.
func (r *Registry) CheckAll(ctx context.Context) ([]Result, Status) {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	snapshot := make(map[string]Checker, len(r.checkers))
	for name, c := range r.checkers {
		snapshot[name] = c
	}
	r.mu.RUnlock()
	sort.Strings(names)

	overall := StatusHealthy
	results := make([]Result, 0, len(names))
	for _, name := range names {
		res := snapshot[name].Check(ctx)
		res.Component = name
		results = append(results, res)

		switch res.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return results, overall
}
