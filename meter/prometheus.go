package meter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ineyio/voicepool"
)

const namespace = "voicepool"

// PrometheusMeter exports pool events as Prometheus metrics.
type PrometheusMeter struct {
	allocations *prometheus.CounterVec
	syncs       *prometheus.CounterVec
	results     *prometheus.CounterVec
	chars       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	remaining   *prometheus.GaugeVec
}

var _ voicepool.Meter = (*PrometheusMeter)(nil)

// NewPrometheusMeter creates the metrics and registers them with reg.
func NewPrometheusMeter(reg prometheus.Registerer) (*PrometheusMeter, error) {
	m := &PrometheusMeter{
		allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocations_total",
				Help:      "Total number of credential allocations",
			},
			[]string{"status"}, // status: success, rescued, error
		),
		syncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_syncs_total",
				Help:      "Total number of quota syncs against the provider",
			},
			[]string{"status"},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesis_requests_total",
				Help:      "Total number of provider synthesis calls",
			},
			[]string{"provider", "status"},
		),
		chars: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesized_chars_total",
				Help:      "Total number of characters synthesized per credential",
			},
			[]string{"credential"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synthesis_duration_seconds",
				Help:      "Duration of synthesis calls in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		remaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "credential_remaining_chars",
				Help:      "Remaining quota of a credential as of its last sync",
			},
			[]string{"credential"},
		),
	}

	for _, c := range []prometheus.Collector{m.allocations, m.syncs, m.results, m.chars, m.duration, m.remaining} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMeter) OnAllocate(e voicepool.AllocateEvent) {
	switch {
	case e.Error != nil:
		m.allocations.WithLabelValues("error").Inc()
	case e.Rescued:
		m.allocations.WithLabelValues("rescued").Inc()
	default:
		m.allocations.WithLabelValues("success").Inc()
	}
}

func (m *PrometheusMeter) OnSync(e voicepool.SyncEvent) {
	if !e.Success {
		m.syncs.WithLabelValues("error").Inc()
		return
	}
	m.syncs.WithLabelValues("success").Inc()
	m.remaining.WithLabelValues(e.Label).Set(float64(e.Remaining))
}

func (m *PrometheusMeter) OnResult(e voicepool.ResultEvent) {
	m.duration.WithLabelValues(e.Provider).Observe(e.Duration.Seconds())
	if !e.Success {
		m.results.WithLabelValues(e.Provider, "error").Inc()
		return
	}
	m.results.WithLabelValues(e.Provider, "success").Inc()
	m.chars.WithLabelValues(e.Label).Add(float64(e.Chars))
}
