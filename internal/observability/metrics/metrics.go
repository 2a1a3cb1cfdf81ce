package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "solarshare_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	registrationsTotal *prometheus.CounterVec
	reportsTotal       *prometheus.CounterVec
	roundCloseLatency  prometheus.Histogram
	roundResidual      prometheus.Gauge

	measurementErrors  *prometheus.CounterVec
	submissionRetries  prometheus.Counter
	agentPeriodsTotal  *prometheus.CounterVec
	agentPeriodLatency prometheus.Histogram

	indexerQueriesTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers the metric set. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		registrationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "registrations_total",
				Help: "Total registration attempts by result",
			},
			[]string{"result"},
		)
		reportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reports_total",
				Help: "Total period reports by role and result",
			},
			[]string{"role", "result"},
		)
		roundCloseLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "round_close_latency_seconds",
				Help:    "Round close latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		roundResidual = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "round_residual_microkwh",
				Help: "Undistributed production left over by the last closed round",
			},
		)

		measurementErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "agent_measurement_errors_total",
				Help: "Total failed measurement fetches by reason",
			},
			[]string{"reason"},
		)
		submissionRetries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "agent_submission_retries_total",
				Help: "Total report submission retries",
			},
		)
		agentPeriodsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "agent_periods_total",
				Help: "Total completed agent periods by result",
			},
			[]string{"result"},
		)
		agentPeriodLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "agent_period_latency_seconds",
				Help:    "Time from period boundary to accepted report in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		indexerQueriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "indexer_queries_total",
				Help: "Total indexer queries by result",
			},
			[]string{"result"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			registrationsTotal,
			reportsTotal,
			roundCloseLatency,
			roundResidual,
			measurementErrors,
			submissionRetries,
			agentPeriodsTotal,
			agentPeriodLatency,
			indexerQueriesTotal,
			exportTotal,
			exportLatency,
		)
	})
}

// IncRegistration increments the registration counter.
func IncRegistration(result string) {
	if result == "" {
		result = resultSuccess
	}
	if registrationsTotal != nil {
		registrationsTotal.WithLabelValues(result).Inc()
	}
}

// IncReport increments the report counter.
func IncReport(role, result string) {
	if role == "" {
		role = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportsTotal != nil {
		reportsTotal.WithLabelValues(role, result).Inc()
	}
}

// ObserveRoundClose records round close latency and the round's residual.
func ObserveRoundClose(duration time.Duration, residualMicroKWh int64) {
	if roundCloseLatency != nil {
		roundCloseLatency.Observe(duration.Seconds())
	}
	if roundResidual != nil {
		roundResidual.Set(float64(residualMicroKWh))
	}
}

// IncMeasurementError increments the measurement error counter.
func IncMeasurementError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if measurementErrors != nil {
		measurementErrors.WithLabelValues(reason).Inc()
	}
}

// IncSubmissionRetry increments the submission retry counter.
func IncSubmissionRetry() {
	if submissionRetries != nil {
		submissionRetries.Inc()
	}
}

// ObserveAgentPeriod records one completed agent period.
func ObserveAgentPeriod(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if agentPeriodsTotal != nil {
		agentPeriodsTotal.WithLabelValues(result).Inc()
	}
	if agentPeriodLatency != nil {
		agentPeriodLatency.Observe(duration.Seconds())
	}
}

// IncIndexerQuery increments the indexer query counter.
func IncIndexerQuery(result string) {
	if result == "" {
		result = resultSuccess
	}
	if indexerQueriesTotal != nil {
		indexerQueriesTotal.WithLabelValues(result).Inc()
	}
}

// ObserveExport records export latency by format and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
