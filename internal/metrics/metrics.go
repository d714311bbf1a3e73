package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vfsd"

// Metrics groups the collectors of one daemon instance. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	mailbox  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ns",
				Name:      "requests_total",
				Help:      "Namespace server requests by tag and result.",
			},
			[]string{"tag", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ns",
				Name:      "request_duration_seconds",
				Help:      "Time spent handling one namespace request.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
			[]string{"tag"},
		),
		mailbox: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ns",
			Name:      "mailbox_depth",
			Help:      "Requests waiting in the namespace server mailbox.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.mailbox)
	return m
}

func (m *Metrics) ObserveRequest(tag string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.requests.WithLabelValues(tag, result).Inc()
	m.duration.WithLabelValues(tag).Observe(seconds)
}

func (m *Metrics) SetMailboxDepth(n int) {
	if m == nil {
		return
	}
	m.mailbox.Set(float64(n))
}

// RegisterOpenFiles exports the occupancy of the open-file table.
func RegisterOpenFiles(reg prometheus.Registerer, inUse func() int, capacity int) {
	limit := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "kfile",
		Name:      "entries_capacity",
		Help:      "Open-file cache capacity.",
	})
	limit.Set(float64(capacity))

	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "kfile",
			Name:      "entries_in_use",
			Help:      "Occupied open-file cache entries.",
		}, func() float64 { return float64(inUse()) }),
		limit,
	)
}
