package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped"
	OutcomePlaceholder = "placeholder"
)

// Metrics groups the service counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry        *prometheus.Registry
	Generations     *prometheus.CounterVec
	ReferenceImages *prometheus.CounterVec
	Uploads         *prometheus.CounterVec
	HistorySaves    *prometheus.CounterVec
	PaymentSetups   *prometheus.CounterVec
}

// New registers the counters on a fresh registry tagged with server.
func New(server string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"server": server}
	m := &Metrics{
		registry: reg,
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "image_generations_total",
			Help:        "Total number of image generation requests by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		ReferenceImages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "reference_images_total",
			Help:        "Total number of reference images fetched by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "storage_uploads_total",
			Help:        "Total number of storage uploads by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		HistorySaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "history_saves_total",
			Help:        "Total number of history rows written by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		PaymentSetups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payment_setups_total",
			Help:        "Total number of payment setup runs by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		m.Generations,
		m.ReferenceImages,
		m.Uploads,
		m.HistorySaves,
		m.PaymentSetups,
	)
	return m
}

func (m *Metrics) Generation(outcome string) {
	if m != nil {
		m.Generations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ReferenceImage(outcome string) {
	if m != nil {
		m.ReferenceImages.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Upload(outcome string) {
	if m != nil {
		m.Uploads.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) HistorySave(outcome string) {
	if m != nil {
		m.HistorySaves.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) PaymentSetup(outcome string) {
	if m != nil {
		m.PaymentSetups.WithLabelValues(outcome).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
