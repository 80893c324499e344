// Package health runs preflight checks over the components a report build
// depends on: the record store, the rulebook, the signing key and the
// export directory.
//
// Checks run concurrently, each under its own timeout. A failing critical
// component makes the overall status unhealthy; a failing optional one only
// degrades it.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"carepulse/internal/rulebook"
	"carepulse/internal/signer"
	"carepulse/internal/store"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// DefaultTimeout bounds a check registered without one.
const DefaultTimeout = 5 * time.Second

// CheckResult represents the result of a health check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check is a function that performs a health check.
type Check func(ctx context.Context) CheckResult

// Component represents a health-checkable component.
type Component struct {
	Name     string
	Critical bool // failure makes the overall status unhealthy
	Check    Check
	Timeout  time.Duration
}

// Checker manages health checks.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	now        func() time.Time
}

// NewChecker creates a new Checker.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		now:        time.Now,
	}
}

// Register registers a health check component, replacing any component
// with the same name.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if component.Timeout <= 0 {
		component.Timeout = DefaultTimeout
	}
	c.components[component.Name] = component
	c.results[component.Name] = CheckResult{Status: StatusUnknown}
}

// RegisterFunc registers a check with the default timeout.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// Check runs all registered health checks.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(components))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, comp := range components {
		wg.Add(1)
		go func(comp *Component) {
			defer wg.Done()
			result := c.run(ctx, comp)

			mu.Lock()
			results[comp.Name] = result
			mu.Unlock()
		}(comp)
	}
	wg.Wait()

	c.mu.Lock()
	for name, result := range results {
		if _, ok := c.components[name]; ok {
			c.results[name] = result
		}
	}
	c.mu.Unlock()
	return results
}

// run executes one check under its timeout, converting panics and
// overruns into unhealthy results.
func (c *Checker) run(ctx context.Context, comp *Component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := c.now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{
					Status:  StatusUnhealthy,
					Message: "check panicked",
					Error:   fmt.Sprintf("%v", r),
				}
			}
		}()
		done <- comp.Check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-done:
	case <-checkCtx.Done():
		result = CheckResult{
			Status:  StatusUnhealthy,
			Message: "check timed out",
			Error:   checkCtx.Err().Error(),
		}
	}
	result.LastChecked = start
	result.Duration = time.Since(start)
	return result
}

// Results returns the last result of every component.
func (c *Checker) Results() map[string]CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]CheckResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// Names returns the registered component names in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsCritical reports whether the named component is critical.
func (c *Checker) IsCritical(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	comp := c.components[name]
	return comp != nil && comp.Critical
}

// OverallStatus returns the aggregated health status.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hasUnknown := false
	hasDegraded := false

	for name, result := range c.results {
		comp := c.components[name]
		if comp == nil {
			continue
		}

		switch result.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if comp.Critical {
				hasUnknown = true
			}
		}
	}

	if hasUnknown {
		return StatusUnknown
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Component checks.

// StoreCheck pings the database and confirms every table exists.
func StoreCheck(st *store.Store) Check {
	return func(ctx context.Context) CheckResult {
		if err := st.DB().PingContext(ctx); err != nil {
			return unhealthy("database connection failed", err)
		}
		if err := store.ValidateSchema(st.DB()); err != nil {
			return unhealthy("database schema incomplete", err)
		}
		status, err := store.GetMigrationStatus(st.DB())
		if err != nil {
			return unhealthy("migration status unavailable", err)
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "database ok",
			Details: map[string]any{
				"schema_version": status.CurrentVersion,
				"pending":        len(status.Pending),
			},
		}
	}
}

// RulebookCheck loads and validates the rulebook at path. An empty path
// checks the embedded default.
func RulebookCheck(path string) Check {
	return func(ctx context.Context) CheckResult {
		rb, err := rulebook.Load(path)
		if err != nil {
			return unhealthy("rulebook invalid", err)
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "rulebook ok",
			Details: map[string]any{
				"version": rb.Version,
				"source":  rb.Source,
			},
		}
	}
}

// SigningKeyCheck confirms the export key loads and matches the published
// public key. With no key configured, exports go out unsigned and the
// check reports degraded.
func SigningKeyCheck(keyPath, pubPath string, passphrase []byte) Check {
	return func(ctx context.Context) CheckResult {
		if keyPath == "" {
			return CheckResult{Status: StatusDegraded, Message: "signing disabled; exports are unsigned"}
		}
		priv, err := signer.LoadSigningKey(keyPath, passphrase)
		if err != nil {
			return unhealthy("signing key unreadable", err)
		}
		if pubPath == "" {
			return CheckResult{Status: StatusHealthy, Message: "signing key ok"}
		}
		pub, err := signer.LoadPublicKey(pubPath)
		if errors.Is(err, os.ErrNotExist) {
			return CheckResult{Status: StatusDegraded, Message: "public key not published"}
		}
		if err != nil {
			return unhealthy("public key unreadable", err)
		}
		if !pub.Equal(signer.GetPublicKey(priv)) {
			return CheckResult{Status: StatusUnhealthy, Message: "public key does not match signing key"}
		}
		return CheckResult{Status: StatusHealthy, Message: "signing key ok"}
	}
}

// WritableDirCheck confirms dir exists and accepts new files.
func WritableDirCheck(dir string) Check {
	return func(ctx context.Context) CheckResult {
		info, err := os.Stat(dir)
		if err != nil {
			return unhealthy("directory missing", err)
		}
		if !info.IsDir() {
			return CheckResult{Status: StatusUnhealthy, Message: "not a directory", Details: map[string]any{"path": dir}}
		}
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return unhealthy("directory not writable", err)
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
		return CheckResult{
			Status:  StatusHealthy,
			Message: "directory writable",
			Details: map[string]any{"path": filepath.Clean(dir)},
		}
	}
}

func unhealthy(msg string, err error) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Message: msg, Error: err.Error()}
}
