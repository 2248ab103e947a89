// Package metrics holds the Prometheus collectors for bookings, disputes,
// sweeps, ledger writes and provider calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BookingsCanceledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolshed_bookings_canceled_total",
			Help: "Bookings canceled, by actor and whether the cancellation was automatic",
		},
		[]string{"actor", "auto"},
	)

	BookingTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolshed_booking_transitions_total",
			Help: "Booking status transitions",
		},
		[]string{"from", "to"},
	)

	DisputesOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolshed_disputes_opened_total",
			Help: "Disputes created, by category and initial status",
		},
		[]string{"category", "status"},
	)

	DisputesClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolshed_disputes_closed_total",
			Help: "Disputes reaching a terminal status",
		},
		[]string{"status"},
	)

	SweepProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolshed_sweep_processed_total",
			Help: "Rows changed by scheduled sweeps",
		},
		[]string{"job"},
	)

	SweepFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolshed_sweep_failed_total",
			Help: "Rows a scheduled sweep failed to process",
		},
		[]string{"job"},
	)

	LedgerWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolshed_ledger_writes_total",
			Help: "Ledger transactions written",
		},
		[]string{"kind"},
	)

	LedgerDuplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolshed_ledger_duplicates_total",
			Help: "Ledger writes skipped because the natural key already existed",
		},
		[]string{"kind"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolshed_provider_call_duration_seconds",
			Help:    "Latency of external provider calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"provider", "operation", "result"},
	)
)

func RecordCancellation(actor string, auto bool) {
	BookingsCanceledTotal.WithLabelValues(actor, boolLabel(auto)).Inc()
}

func RecordBookingTransition(from, to string) {
	BookingTransitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordDisputeOpened(category, status string) {
	DisputesOpenedTotal.WithLabelValues(category, status).Inc()
}

func RecordDisputeClosed(status string) {
	DisputesClosedTotal.WithLabelValues(status).Inc()
}

// RecordSweep adds one job run's totals.
func RecordSweep(job string, processed, failed int) {
	SweepProcessedTotal.WithLabelValues(job).Add(float64(processed))
	SweepFailedTotal.WithLabelValues(job).Add(float64(failed))
}

func RecordLedgerWrite(kind string, duplicate bool) {
	if duplicate {
		LedgerDuplicatesTotal.WithLabelValues(kind).Inc()
		return
	}
	LedgerWritesTotal.WithLabelValues(kind).Inc()
}

// ObserveProviderCall records the latency of a call that started at start.
func ObserveProviderCall(provider, operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ProviderCallDuration.WithLabelValues(provider, operation, result).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
