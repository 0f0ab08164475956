// Package metricsvc exposes workflow counters to Prometheus.
package metricsvc

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pnl-akademik/disiplin/core"
)

const namespace = "disiplin"

type Prometheus struct {
	enrollments *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	results     *prometheus.CounterVec
}

var _ core.Metrics = (*Prometheus)(nil)

// NewPrometheus registers the counters on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	m := &Prometheus{
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollment_outcomes_total",
			Help:      "Enrollment records processed, by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whatsapp_deliveries_total",
			Help:      "WhatsApp delivery attempts, by recipient kind and status.",
		}, []string{"recipient", "status"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clustering_rows_total",
			Help:      "Clustering rows handled on save, by status.",
		}, []string{"status"}),
	}
	for _, c := range []prometheus.Collector{m.enrollments, m.deliveries, m.results} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "registering metrics")
		}
	}
	return m, nil
}

func (m *Prometheus) EnrollmentOutcome(outcome string) {
	m.enrollments.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) Delivery(recipient string, delivered bool) {
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	m.deliveries.WithLabelValues(recipient, status).Inc()
}

func (m *Prometheus) ResultsSaved(saved, skipped int) {
	m.results.WithLabelValues("saved").Add(float64(saved))
	m.results.WithLabelValues("skipped").Add(float64(skipped))
}
