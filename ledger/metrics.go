package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	operations      *prometheus.CounterVec
	paymentVolume   *prometheus.CounterVec
	feesCollected   prometheus.Counter
	datasets        prometheus.Gauge
	categories      prometheus.Gauge
	publishFailures prometheus.Counter
}

// newMetrics builds the ledger collectors. A nil registerer leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Total number of ledger operations by result",
			},
			[]string{"op", "result"},
		),
		paymentVolume: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_payment_volume_total",
				Help: "Total payment amount received, in the smallest currency unit",
			},
			[]string{"kind"},
		),
		feesCollected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_fees_collected_total",
				Help: "Total platform fees paid out to the operator",
			},
		),
		datasets: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_datasets",
				Help: "Number of dataset ids assigned",
			},
		),
		categories: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_categories",
				Help: "Number of category ids assigned",
			},
		),
		publishFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_event_publish_failures_total",
				Help: "Total number of notifications that could not be published",
			},
		),
	}
}
