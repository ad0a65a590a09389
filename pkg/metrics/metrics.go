package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics of ripen.
//
// Create with New, and pass it to components.
type Metrics struct {
	// readings by ingestion outcome (received, inserted, duplicate_in_batch, duplicate_existing)
	Readings *prometheus.CounterVec

	// batches rejected by reason (schema_violation, batch_too_large)
	RejectedBatches *prometheus.CounterVec

	// labels resolved, by value ("0" or "1")
	ResolvedLabels *prometheus.CounterVec

	// training jobs by result (promoted, rejected, insufficient_data, locked, failed)
	TrainingJobs *prometheus.CounterVec

	TrainingDuration prometheus.Histogram

	// messages consumed from the broker, by result (ingested, invalid, failed)
	ConsumedMessages *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Readings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ripen",
				Name:      "ingested_readings_total",
				Help:      "Total number of readings by ingestion outcome",
			},
			[]string{"outcome"},
		),
		RejectedBatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ripen",
				Name:      "rejected_batches_total",
				Help:      "Total number of rejected telemetry batches",
			},
			[]string{"reason"},
		),
		ResolvedLabels: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ripen",
				Name:      "resolved_labels_total",
				Help:      "Total number of resolved labels",
			},
			[]string{"label"},
		),
		TrainingJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ripen",
				Name:      "training_jobs_total",
				Help:      "Total number of training jobs by result",
			},
			[]string{"result"},
		),
		TrainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "ripen",
				Name:      "training_duration_seconds",
				Help:      "Duration of training jobs",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
		ConsumedMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ripen",
				Name:      "consumed_messages_total",
				Help:      "Total number of consumed telemetry messages",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.Readings, m.RejectedBatches, m.ResolvedLabels,
			m.TrainingJobs, m.TrainingDuration, m.ConsumedMessages,
		)
	}
	return m
}

// Nop returns Metrics not registered anywhere.
func Nop() *Metrics {
	return New(nil)
}
