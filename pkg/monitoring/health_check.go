// Package monitoring reports whether the service and its backing stores are usable.
package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	wssvc "github.com/jgirmay/livemesh/pkg/services/websocket"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Name       string                 `json:"name"`
	Status     HealthStatus           `json:"status"`
	Message    string                 `json:"message"`
	LastCheck  time.Time              `json:"lastCheck"`
	ResponseMs int64                  `json:"responseMs"`
	Metrics    map[string]interface{} `json:"metrics,omitempty"`
}

// ServiceHealth is the body of GET /health.
type ServiceHealth struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
	Uptime     int64             `json:"uptimeSeconds"`
	Version    string            `json:"version"`
}

// Pinger is an optional dependency such as Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HubStats exposes the live socket registry.
type HubStats interface {
	Stats() wssvc.Stats
}

// HealthChecker provides health check capabilities
type HealthChecker struct {
	mu            sync.Mutex
	db            *sql.DB
	redis         Pinger
	hub           HubStats
	version       string
	startTime     time.Time
	lastCheckTime time.Time
	cachedHealth  *ServiceHealth
	cacheDuration time.Duration
}

// NewHealthChecker creates a new health checker. redis and hub may be nil.
func NewHealthChecker(db *sql.DB, redis Pinger, hub HubStats, version string) *HealthChecker {
	return &HealthChecker{
		db:            db,
		redis:         redis,
		hub:           hub,
		version:       version,
		startTime:     time.Now(),
		cacheDuration: 2 * time.Second,
	}
}

// Check probes every component. Results are cached briefly so probes
// cannot hammer the database.
func (hc *HealthChecker) Check(ctx context.Context) *ServiceHealth {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if hc.cachedHealth != nil && time.Since(hc.lastCheckTime) < hc.cacheDuration {
		return hc.cachedHealth
	}

	health := &ServiceHealth{
		Timestamp: time.Now().UTC(),
		Uptime:    int64(time.Since(hc.startTime).Seconds()),
		Version:   hc.version,
	}
	health.Components = append(health.Components, hc.checkDatabase(ctx))
	if hc.redis != nil {
		health.Components = append(health.Components, hc.checkRedis(ctx))
	}
	if hc.hub != nil {
		health.Components = append(health.Components, hc.checkHub())
	}

	health.Status = HealthStatusHealthy
	for _, comp := range health.Components {
		if comp.Status == HealthStatusUnhealthy {
			health.Status = HealthStatusUnhealthy
		} else if comp.Status == HealthStatusDegraded && health.Status != HealthStatusUnhealthy {
			health.Status = HealthStatusDegraded
		}
	}

	hc.cachedHealth = health
	hc.lastCheckTime = time.Now()
	return health
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health := ComponentHealth{Name: "database", Status: HealthStatusHealthy, LastCheck: start.UTC()}

	var one int
	if err := hc.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		health.Status = HealthStatusUnhealthy
		health.Message = fmt.Sprintf("query test failed: %v", err)
		health.ResponseMs = time.Since(start).Milliseconds()
		return health
	}

	stats := hc.db.Stats()
	health.Metrics = map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
	}
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("connection pool saturated: %d/%d", stats.InUse, stats.MaxOpenConnections)
	} else {
		health.Message = "database healthy"
	}
	health.ResponseMs = time.Since(start).Milliseconds()
	return health
}

// checkRedis reports a failing Redis as degraded: the roster cache falls
// back to the database.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	health := ComponentHealth{Name: "redis", Status: HealthStatusHealthy, LastCheck: start.UTC(), Message: "redis healthy"}
	if err := hc.redis.Ping(ctx); err != nil {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("ping failed: %v", err)
	}
	health.ResponseMs = time.Since(start).Milliseconds()
	return health
}

func (hc *HealthChecker) checkHub() ComponentHealth {
	s := hc.hub.Stats()
	return ComponentHealth{
		Name:      "websocket_hub",
		Status:    HealthStatusHealthy,
		Message:   fmt.Sprintf("%d connections", s.Connections),
		LastCheck: time.Now().UTC(),
		Metrics: map[string]interface{}{
			"connections": s.Connections,
			"events":      s.Events,
			"users":       s.Users,
		},
	}
}

// Ready reports whether the database answers a ping.
func (hc *HealthChecker) Ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return hc.db.PingContext(ctx) == nil
}

// HandleHealth serves GET /health: 200 unless a required component is down.
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := hc.Check(r.Context())
	status := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(health)
}

// HandleReady serves GET /health/ready.
func (hc *HealthChecker) HandleReady(w http.ResponseWriter, r *http.Request) {
	if !hc.Ready(r.Context()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
