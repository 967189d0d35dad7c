package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "automation_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automation_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "automation_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	triggerMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automation_layer",
			Subsystem: "engine",
			Name:      "trigger_matches_total",
			Help:      "Total number of workflows matched by a trigger event.",
		},
		[]string{"trigger_type"},
	)

	workflowExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automation_layer",
			Subsystem: "engine",
			Name:      "workflow_executions_total",
			Help:      "Total number of workflow executions by final status.",
		},
		[]string{"status"},
	)

	workflowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "automation_layer",
			Subsystem: "engine",
			Name:      "workflow_execution_duration_seconds",
			Help:      "Duration of workflow executions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"status"},
	)

	actionExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automation_layer",
			Subsystem: "engine",
			Name:      "action_executions_total",
			Help:      "Total number of workflow action executions.",
		},
		[]string{"action_type", "success"},
	)

	actionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "automation_layer",
			Subsystem: "engine",
			Name:      "action_execution_duration_seconds",
			Help:      "Duration of workflow action executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"action_type"},
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automation_layer",
			Subsystem: "messaging",
			Name:      "messages_total",
			Help:      "Total number of outbound messages by channel.",
		},
		[]string{"channel", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		triggerMatches,
		workflowExecutions,
		workflowDuration,
		actionExecutions,
		actionDuration,
		messagesSent,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordTriggerMatch counts a workflow matched by a trigger event.
func RecordTriggerMatch(triggerType string) {
	if triggerType == "" {
		triggerType = "unknown"
	}
	triggerMatches.WithLabelValues(triggerType).Inc()
}

// RecordWorkflowExecution records a finished workflow execution.
func RecordWorkflowExecution(status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	workflowExecutions.WithLabelValues(status).Inc()
	workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordActionExecution records a single workflow action run.
func RecordActionExecution(actionType string, duration time.Duration, success bool) {
	if actionType == "" {
		actionType = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	result := "false"
	if success {
		result = "true"
	}
	actionExecutions.WithLabelValues(actionType, result).Inc()
	actionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

// RecordMessageSent records an outbound message attempt.
func RecordMessageSent(channel string, success bool) {
	if channel == "" {
		channel = "unknown"
	}
	result := "false"
	if success {
		result = "true"
	}
	messagesSent.WithLabelValues(channel, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets the activity stream upgrade to WebSocket through the wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return "/"
	}
	switch parts[0] {
	case "accounts":
		if len(parts) == 1 {
			return "/accounts"
		}
		if len(parts) == 2 {
			return "/accounts/:account"
		}
		return "/accounts/" + parts[2]
	case "internal":
		if len(parts) >= 2 {
			return "/internal/" + parts[1]
		}
		return "/internal"
	default:
		return "/" + parts[0]
	}
}
