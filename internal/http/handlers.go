package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	applog "emitrack/internal/log"
)

const (
	apiName    = "EMI Tracking API"
	apiVersion = "1.0.0"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	NewResponse().
		Message("Welcome to " + apiName).
		Data(map[string]any{
			"version": apiVersion,
			"status":  "running",
			"endpoints": map[string]string{
				"health":       "/health",
				"emis":         "/api/emis",
				"transactions": "/api/transactions",
			},
		}).
		Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "OK",
		"message":   apiName + " is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.store == nil {
		checks["storage"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if err := s.store.Ping(ctx); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldError, err.Error())
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	summaryEntries := 0
	if s.summaries != nil {
		summaryEntries = s.summaries.Size()
	}
	checks["cache"] = map[string]any{
		"summary_entries": summaryEntries,
		"status":          "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	emisCreated := atomic.LoadInt64(&s.appMetrics.emisCreated)
	payments := atomic.LoadInt64(&s.appMetrics.paymentsRecorded)
	transactions := atomic.LoadInt64(&s.appMetrics.transactionsCreated)
	conflicts := atomic.LoadInt64(&s.appMetrics.conflicts)
	uptime := time.Since(s.appMetrics.uptime)

	summaryEntries := 0
	if s.summaries != nil {
		summaryEntries = s.summaries.Size()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	writeMetric(w, "http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	writeMetric(w, "http_server_errors_total", "counter", "Total number of 5xx responses", traceMetrics.ServerErrors)
	writeMetric(w, "http_response_time_microseconds", "gauge", "Moving average response time", traceMetrics.AverageResponseTime)
	writeMetric(w, "emis_created_total", "counter", "Total number of EMIs created", emisCreated)
	writeMetric(w, "emi_payments_total", "counter", "Total number of EMI payments recorded", payments)
	writeMetric(w, "transactions_created_total", "counter", "Total number of transactions created", transactions)
	writeMetric(w, "write_conflicts_total", "counter", "Writes abandoned after concurrent updates", conflicts)
	writeMetric(w, "summary_cache_entries", "gauge", "Current summary cache entries", int64(summaryEntries))
	writeMetric(w, "rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	writeMetric(w, "active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", int64(rateLimitMetrics.ClientCount))
	writeMetric(w, "suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	writeMetric(w, "invalid_ip_attempts_total", "counter", "Forwarded addresses that failed to parse", securityMetrics.InvalidIPAttempts)
	writeMetric(w, "uptime_seconds", "gauge", "Application uptime in seconds", int64(uptime.Seconds()))
}

// writeMetric writes one sample in Prometheus text format.
func writeMetric(w http.ResponseWriter, name, kind, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %d\n\n", name, value)
}
