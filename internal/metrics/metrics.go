// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus collectors for buildmetad.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resolution metrics
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildmetad_timeout_resolutions_total",
		Help: "Timeout resolutions by winning source",
	}, []string{"source"}) // source=project|runner|job

	resolutionsEmptyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buildmetad_timeout_resolutions_empty_total",
		Help: "Resolution attempts where no candidate timeout was present",
	})

	resolutionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildmetad_timeout_resolution_errors_total",
		Help: "Failed resolution attempts by reason",
	}, []string{"reason"}) // reason=not_found|settings|store|journal

	// Store metrics
	storeOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buildmetad_store_op_duration_seconds",
		Help:    "SQLite store operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// Settings cache metrics
	settingsCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildmetad_settings_cache_total",
		Help: "Settings cache lookups by outcome",
	}, []string{"outcome"}) // outcome=hit|miss

	// Journal metrics
	journalAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buildmetad_journal_appends_total",
		Help: "Resolution journal entries appended",
	})

	journalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buildmetad_journal_errors_total",
		Help: "Resolution journal append failures",
	})
)

// RecordResolution counts a successful resolution by winning source.
func RecordResolution(source string) {
	resolutionsTotal.WithLabelValues(source).Inc()
}

// RecordEmptyResolution counts a resolution attempt with no candidates.
func RecordEmptyResolution() {
	resolutionsEmptyTotal.Inc()
}

// RecordResolutionError counts a failed resolution attempt.
func RecordResolutionError(reason string) {
	resolutionErrors.WithLabelValues(reason).Inc()
}

// ObserveStoreOp records the latency of a store operation.
func ObserveStoreOp(op string, d time.Duration) {
	storeOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordSettingsCache counts a settings cache lookup outcome ("hit" or "miss").
func RecordSettingsCache(outcome string) {
	settingsCacheTotal.WithLabelValues(outcome).Inc()
}

// RecordJournalAppend counts a journal append, failed or not.
func RecordJournalAppend(err error) {
	if err != nil {
		journalErrors.Inc()
		return
	}
	journalAppends.Inc()
}
