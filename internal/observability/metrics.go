package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	quoteIssuedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "risk_service",
		Subsystem: "quoting",
		Name:      "last_quote_issued_timestamp_seconds",
		Help:      "Unix timestamp of the most recent quote persisted to Postgres.",
	})
	windowDerivedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "risk_service",
		Subsystem: "features",
		Name:      "last_window_derived_timestamp_seconds",
		Help:      "Unix timestamp of the most recent feature window persisted.",
	})
	registrySegmentsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "risk_service",
		Subsystem: "rating",
		Name:      "registry_segments",
		Help:      "Number of fitted segments in the currently served registry snapshot.",
	})
	rejectedRecordsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "risk_service",
		Subsystem: "ingest",
		Name:      "rejected_records_total",
		Help:      "Number of raw telemetry records rejected by validation.",
	})
)

func init() {
	prometheus.MustRegister(quoteIssuedGauge, windowDerivedGauge, registrySegmentsGauge, rejectedRecordsCounter)
}

// RecordQuoteIssued updates the quoting watermark gauge.
func RecordQuoteIssued(ts time.Time) {
	if ts.IsZero() {
		return
	}
	quoteIssuedGauge.Set(float64(ts.Unix()))
}

// RecordWindowDerived updates the feature derivation watermark gauge.
func RecordWindowDerived(ts time.Time) {
	if ts.IsZero() {
		return
	}
	windowDerivedGauge.Set(float64(ts.Unix()))
}

// RecordRegistrySwap records the size of the snapshot now being served.
func RecordRegistrySwap(segments int) {
	registrySegmentsGauge.Set(float64(segments))
}

// RecordRejectedRecords counts validation rejections from a batch.
func RecordRejectedRecords(n int) {
	if n > 0 {
		rejectedRecordsCounter.Add(float64(n))
	}
}
