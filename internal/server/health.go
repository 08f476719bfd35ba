package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name    string                 `json:"name"`
	Status  HealthStatus           `json:"status"`
	Message string                 `json:"message,omitempty"`
	Latency string                 `json:"latency"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck checks one component.
type HealthCheck func(ctx context.Context) ComponentHealth

// Pinger is implemented by stores that can verify their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthChecker runs the registered component checks on demand.
type healthChecker struct {
	mu                 sync.RWMutex
	components         map[string]HealthCheck
	timeout            time.Duration
	memoryThreshold    uint64
	goroutineThreshold int
}

func newHealthChecker() *healthChecker {
	return &healthChecker{
		components:         make(map[string]HealthCheck),
		timeout:            5 * time.Second,
		memoryThreshold:    500 * 1024 * 1024,
		goroutineThreshold: 1000,
	}
}

// register adds a health check for a component.
func (h *healthChecker) register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = check
}

// databaseCheck reports the store unhealthy when it cannot be pinged.
func databaseCheck(p Pinger) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: err.Error()}
		}
		return ComponentHealth{Status: HealthStatusHealthy}
	}
}

// run executes every check concurrently and derives the overall status.
func (h *healthChecker) run(ctx context.Context) (HealthStatus, []ComponentHealth) {
	h.mu.RLock()
	checks := make(map[string]HealthCheck, len(h.components)+2)
	for name, check := range h.components {
		checks[name] = check
	}
	h.mu.RUnlock()
	checks["memory"] = h.checkMemory
	checks["goroutines"] = h.checkGoroutines

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan ComponentHealth, len(checks))
	for name, check := range checks {
		wg.Add(1)
		go func(n string, c HealthCheck) {
			defer wg.Done()
			start := time.Now()
			health := runCheck(ctx, c)
			health.Name = n
			health.Latency = time.Since(start).String()
			results <- health
		}(name, check)
	}
	wg.Wait()
	close(results)

	overall := HealthStatusHealthy
	components := make([]ComponentHealth, 0, len(checks))
	for health := range results {
		components = append(components, health)
		switch health.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return overall, components
}

// runCheck converts a panicking check into an unhealthy result.
func runCheck(ctx context.Context, check HealthCheck) (health ComponentHealth) {
	defer func() {
		if r := recover(); r != nil {
			health = ComponentHealth{
				Status:  HealthStatusUnhealthy,
				Message: fmt.Sprintf("panic recovered: %v", r),
			}
		}
	}()
	return check(ctx)
}

func (h *healthChecker) checkMemory(ctx context.Context) ComponentHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	health := ComponentHealth{
		Details: map[string]interface{}{
			"alloc_mb": memStats.Alloc / 1024 / 1024,
			"sys_mb":   memStats.Sys / 1024 / 1024,
			"num_gc":   memStats.NumGC,
		},
	}

	if memStats.Alloc > h.memoryThreshold {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("Memory usage high: %d MB", memStats.Alloc/1024/1024)
	} else {
		health.Status = HealthStatusHealthy
	}

	return health
}

func (h *healthChecker) checkGoroutines(ctx context.Context) ComponentHealth {
	numGoroutines := runtime.NumGoroutine()

	health := ComponentHealth{
		Details: map[string]interface{}{"count": numGoroutines},
	}

	if numGoroutines > h.goroutineThreshold {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("High goroutine count: %d", numGoroutines)
	} else {
		health.Status = HealthStatusHealthy
	}

	return health
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     HealthStatus      `json:"status"`
	Uptime     string            `json:"uptime"`
	ReadOnly   bool              `json:"read_only"`
	Components []ComponentHealth `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, components := s.health.run(r.Context())

	code := http.StatusOK
	if status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.handler.writeJSON(w, code, HealthResponse{
		Status:     status,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		ReadOnly:   s.readOnly(),
		Components: components,
	})
}
