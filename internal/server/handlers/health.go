package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/watzon/cadence/internal/database/migrations"
)

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const healthCheckTimeout = 5 * time.Second

// Check is the result of one health probe.
type Check struct {
	Status  HealthStatus `json:"status"`
	Latency string       `json:"latency,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

type HealthResponse struct {
	Status  HealthStatus     `json:"status"`
	Version string           `json:"version"`
	Uptime  string           `json:"uptime"`
	Time    time.Time        `json:"time"`
	Checks  map[string]Check `json:"checks"`
}

// Health handles GET /health. Any failing check makes the whole response 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:  HealthStatusHealthy,
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Time:    time.Now().UTC(),
		Checks: map[string]Check{
			"database": h.pingDatabase(ctx),
		},
	}
	if resp.Checks["database"].Status == HealthStatusHealthy {
		resp.Checks["schema"] = h.checkSchema(ctx)
	}

	status := http.StatusOK
	for _, c := range resp.Checks {
		if c.Status != HealthStatusHealthy {
			resp.Status = HealthStatusUnhealthy
			status = http.StatusServiceUnavailable
		}
	}

	JSON(w, status, resp)
}

func (h *Handlers) pingDatabase(ctx context.Context) Check {
	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		return Check{Status: HealthStatusUnhealthy, Detail: "ping failed"}
	}
	return Check{Status: HealthStatusHealthy, Latency: time.Since(start).String()}
}

// checkSchema reports the newest applied migration, and fails when any
// embedded migration is still pending.
func (h *Handlers) checkSchema(ctx context.Context) Check {
	list, err := migrations.List(ctx, h.db.DB)
	if err != nil {
		return Check{Status: HealthStatusUnhealthy, Detail: "reading migrations failed"}
	}

	var current, pending int
	for _, m := range list {
		if m.AppliedAt == nil {
			pending++
			continue
		}
		current = m.Version
	}
	if pending > 0 {
		return Check{Status: HealthStatusUnhealthy, Detail: fmt.Sprintf("%d migrations pending", pending)}
	}
	return Check{Status: HealthStatusHealthy, Detail: fmt.Sprintf("version %d", current)}
}
