// Package metrics provides counters, Prometheus collectors, and HTTP
// handlers for exporting drivesign runtime metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Internal state, the source of truth for the JSON snapshot.
var (
	signIns            int64
	signInsAlready     int64
	signInsFailed      int64
	notifyDelivered    int64
	notifyFailed       int64
	lastRun            int64
	lastRunAccountsVal int64
)

const counterInc int64 = 1

// Prometheus collectors.
var (
	promSignIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivesign_signins_total",
			Help: "Total sign-in attempts by outcome",
		},
		[]string{"status"},
	)
	promNotify = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivesign_notifications_total",
			Help: "Total notification deliveries by outcome",
		},
		[]string{"status"},
	)
	promRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drivesign_run_duration_seconds",
			Help:    "Duration of one full sign-in pass",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
	promLastRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drivesign_last_run_timestamp_seconds",
			Help: "Unix timestamp of last run",
		},
	)
	promLastRunAccounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drivesign_last_run_accounts",
			Help: "Accounts processed in the last run",
		},
	)
)

func init() {
	prometheus.MustRegister(
		promSignIns,
		promNotify,
		promRunDuration,
		promLastRun,
		promLastRunAccounts,
	)
}

// IncSignInSuccess counts an account signed in by this run.
func IncSignInSuccess() {
	atomic.AddInt64(&signIns, counterInc)
	promSignIns.WithLabelValues("success").Inc()
}

// IncSignInAlready counts an account that had already signed in today.
func IncSignInAlready() {
	atomic.AddInt64(&signInsAlready, counterInc)
	promSignIns.WithLabelValues("already").Inc()
}

// IncSignInFailed counts an account whose sign-in failed.
func IncSignInFailed() {
	atomic.AddInt64(&signInsFailed, counterInc)
	promSignIns.WithLabelValues("failure").Inc()
}

// IncNotifyDelivered counts a channel delivery that succeeded.
func IncNotifyDelivered() {
	atomic.AddInt64(&notifyDelivered, counterInc)
	promNotify.WithLabelValues("delivered").Inc()
}

// IncNotifyFailed counts a channel delivery that failed.
func IncNotifyFailed() {
	atomic.AddInt64(&notifyFailed, counterInc)
	promNotify.WithLabelValues("failed").Inc()
}

// ObserveRunDuration records the duration (in seconds) of a full pass.
func ObserveRunDuration(seconds float64) {
	promRunDuration.Observe(seconds)
}

// SetLastRun stores the last run timestamp and account count.
func SetLastRun(t time.Time, accounts int) {
	atomic.StoreInt64(&lastRun, t.Unix())
	atomic.StoreInt64(&lastRunAccountsVal, int64(accounts))
	promLastRun.Set(float64(t.Unix()))
	promLastRunAccounts.Set(float64(accounts))
}

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	SignIns         int64  `json:"signins"`
	SignInsAlready  int64  `json:"signins_already"`
	SignInsFailed   int64  `json:"signins_failed"`
	NotifyDelivered int64  `json:"notify_delivered"`
	NotifyFailed    int64  `json:"notify_failed"`
	LastRun         int64  `json:"last_run_timestamp"`
	LastRunAccounts int64  `json:"last_run_accounts"`
	LastRunHuman    string `json:"last_run_human"`
}

// GetSnapshot returns the current values of all internal counters.
func GetSnapshot() StatsSnapshot {
	ts := atomic.LoadInt64(&lastRun)
	return StatsSnapshot{
		SignIns:         atomic.LoadInt64(&signIns),
		SignInsAlready:  atomic.LoadInt64(&signInsAlready),
		SignInsFailed:   atomic.LoadInt64(&signInsFailed),
		NotifyDelivered: atomic.LoadInt64(&notifyDelivered),
		NotifyFailed:    atomic.LoadInt64(&notifyFailed),
		LastRun:         ts,
		LastRunAccounts: atomic.LoadInt64(&lastRunAccountsVal),
		LastRunHuman:    time.Unix(ts, 0).Format(time.RFC3339),
	}
}

// PromHandler returns an HTTP handler that exposes Prometheus metrics.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler returns an HTTP handler that serves the current metrics as
// a JSON-encoded StatsSnapshot.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
