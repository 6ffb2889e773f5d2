package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/architeacher/amqp-topology/internal/domain"
)

// DependencyChecker reports the current health of the two things the demo
// services depend on: the outbox's Postgres connection and the topology
// library's broker connection.
type DependencyChecker interface {
	CheckStorage(ctx context.Context) domain.DependencyStatus
	CheckQueue(ctx context.Context) domain.DependencyStatus
}

// HealthHandler serves /healthz, /readyz and /health, mirroring the
// liveness/readiness/health split the teacher's domain.LivenessResult /
// ReadinessResult / HealthResult types already model.
type HealthHandler struct {
	checker     DependencyChecker
	serviceName string
	version     string
	startedAt   time.Time
}

func NewHealthHandler(checker DependencyChecker, serviceName, version string) *HealthHandler {
	return &HealthHandler{
		checker:     checker,
		serviceName: serviceName,
		version:     version,
		startedAt:   time.Now(),
	}
}

// Liveness reports whether the process itself is still able to serve
// requests; it never checks dependencies, so a degraded broker doesn't take
// the container out of the load balancer.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status domain.LivenessResponseStatus `json:"status"`
	}{domain.LivenessResponseStatusAlive})
}

// Readiness reports whether the service is ready to accept traffic: both
// storage and the queue connection must be healthy.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	result := domain.ReadinessResult{
		Storage: h.checker.CheckStorage(r.Context()),
		Queue:   h.checker.CheckQueue(r.Context()),
	}

	result.OverallStatus = domain.ReadinessResponseStatusReady
	statusCode := http.StatusOK

	switch {
	case result.Storage.Status == domain.DependencyCheckStatusUnhealthy || result.Queue.Status == domain.DependencyCheckStatusUnhealthy:
		result.OverallStatus = domain.ReadinessResponseStatusNotReady
		statusCode = http.StatusServiceUnavailable
	case result.Storage.Status == domain.DependencyCheckStatusDegraded || result.Queue.Status == domain.DependencyCheckStatusDegraded:
		result.OverallStatus = domain.ReadinessResponseStatusDegraded
	}

	writeJSON(w, statusCode, result)
}

// Health reports the full dependency picture plus process uptime.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	result := domain.HealthResult{
		Storage: h.checker.CheckStorage(r.Context()),
		Queue:   h.checker.CheckQueue(r.Context()),
		Uptime:  float32(time.Since(h.startedAt).Seconds()),
	}

	result.OverallStatus = domain.HealthResponseStatusHealthy
	statusCode := http.StatusOK

	switch {
	case result.Storage.Status == domain.DependencyCheckStatusUnhealthy || result.Queue.Status == domain.DependencyCheckStatusUnhealthy:
		result.OverallStatus = domain.HealthResponseStatusUnhealthy
		statusCode = http.StatusServiceUnavailable
	case result.Storage.Status == domain.DependencyCheckStatusDegraded || result.Queue.Status == domain.DependencyCheckStatusDegraded:
		result.OverallStatus = domain.HealthResponseStatusDegraded
	}

	writeJSON(w, statusCode, result)
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
