package middleware

import (
	"context"
	"net/http"
	"strings"
)

// healthEndpointSuffixes lists the path suffixes a liveness/readiness probe
// hits against the topology library's companion HTTP server. They're
// suffixes rather than exact paths so the filter still catches a mounted
// prefix like /internal/v1/healthz.
var healthEndpointSuffixes = []string{
	"/v1/health",
	"/v1/ready",
	"/v1/live",
	"/v1/readiness",
	"/health",
	"/ready",
	"/live",
	"/healthz",
	"/readyz",
	"/livez",
}

// HealthCheckFilter marks probe requests so AccessLogger can skip them,
// keeping access logs free of the noise a Kubernetes liveness/readiness
// probe generates every few seconds.
type HealthCheckFilter struct {
	logHealthChecks bool
}

func NewHealthCheckFilter(logHealthChecks bool) *HealthCheckFilter {
	return &HealthCheckFilter{logHealthChecks: logHealthChecks}
}

func (h *HealthCheckFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.logHealthChecks || !isHealthEndpoint(r.URL.Path) {
			next.ServeHTTP(w, r)

			return
		}

		ctx := context.WithValue(r.Context(), skipAccessLogKey, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isHealthEndpoint(path string) bool {
	for _, suffix := range healthEndpointSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}

	return false
}
