package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the shell's collectors; nothing is registered globally.
	Registry = prometheus.NewRegistry()

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowbit",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Outbound API requests by method, route and status.",
		},
		[]string{"method", "path", "status"},
	)

	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flowbit",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "path"},
	)

	sessionTeardowns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowbit",
			Subsystem: "session",
			Name:      "teardowns_total",
			Help:      "Session teardowns by reason (logout, unauthorized).",
		},
		[]string{"reason"},
	)

	remoteLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowbit",
			Subsystem: "remote",
			Name:      "loads_total",
			Help:      "Remote module load attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(apiRequests, apiDuration, sessionTeardowns, remoteLoads)
}

// RecordAPIRequest counts one outbound call. status 0 means no response was received.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequests.WithLabelValues(method, route, label).Inc()
	apiDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordTeardown counts a session teardown.
func RecordTeardown(reason string) {
	sessionTeardowns.WithLabelValues(reason).Inc()
}

// RecordRemoteLoad counts a resolved remote module load ("success" or "fallback").
func RecordRemoteLoad(outcome string) {
	remoteLoads.WithLabelValues(outcome).Inc()
}

// Serve exposes the registry on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
