package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set holds the receiver's Prometheus collectors.
type Set struct {
	PacketsReceived *prometheus.CounterVec
	PacketsDropped  *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsRemoved *prometheus.CounterVec
	NiqLatency      prometheus.Gauge
	E2eLatency      prometheus.Gauge
	FreqCoeff       prometheus.Gauge
	QueueOverflows  prometheus.Counter
	FecRecovered    prometheus.Counter
	FecExpired      prometheus.Counter

	enabled bool
}

// New creates the collector set and registers it on reg. A nil reg
// returns a disabled set whose updates are discarded.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiorx_packets_received_total",
			Help: "Total packets accepted by the session router, by stream kind",
		}, []string{"kind"}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiorx_packets_dropped_total",
			Help: "Total packets dropped before queueing, by reason",
		}, []string{"reason"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiorx_active_sessions",
			Help: "Current number of live receiver sessions",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiorx_sessions_created_total",
			Help: "Total sessions created",
		}),
		SessionsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiorx_sessions_removed_total",
			Help: "Total sessions destroyed, by reason",
		}, []string{"reason"}),
		NiqLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiorx_niq_latency_seconds",
			Help: "Network-in-queue latency of the most recently updated session",
		}),
		E2eLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiorx_e2e_latency_seconds",
			Help: "End-to-end latency of the most recently updated session",
		}),
		FreqCoeff: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiorx_freq_coeff",
			Help: "Resampler scaling coefficient of the most recently updated session",
		}),
		QueueOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiorx_queue_overflows_total",
			Help: "Total packets evicted from full session queues",
		}),
		FecRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiorx_fec_recovered_total",
			Help: "Total source packets reconstructed from repair data",
		}),
		FecExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiorx_fec_expired_total",
			Help: "Total FEC blocks flushed incomplete",
		}),
	}

	if reg == nil {
		return s
	}
	s.enabled = true
	reg.MustRegister(
		s.PacketsReceived, s.PacketsDropped,
		s.ActiveSessions, s.SessionsCreated, s.SessionsRemoved,
		s.NiqLatency, s.E2eLatency, s.FreqCoeff,
		s.QueueOverflows, s.FecRecovered, s.FecExpired,
	)
	return s
}

// Enabled reports whether the set is registered on a registry.
func (s *Set) Enabled() bool { return s.enabled }
