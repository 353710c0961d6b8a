package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports ledger activity to Prometheus. A nil *Metrics is a valid
// no-op.
type Metrics struct {
	commits      prometheus.Counter
	reveals      prometheus.Counter
	rejections   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	stopped      prometheus.Gauge
	participants prometheus.Gauge
	pending      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_commits_total",
			Help: "Accepted vote commitments.",
		}),
		reveals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_reveals_total",
			Help: "Accepted vote reveals.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_rejections_total",
			Help: "Rejected ledger operations by operation and reason.",
		}, []string{"op", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Time spent applying ledger operations, journaling included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		stopped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_voting_stopped",
			Help: "1 once the administrator stopped voting.",
		}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_participants",
			Help: "Identities holding a commitment.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_pending_reveals",
			Help: "Commitments not yet revealed.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.commits, m.reveals, m.rejections, m.duration, m.stopped, m.participants, m.pending,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.rejections.WithLabelValues(op, Reason(err)).Inc()
		return
	}
	switch op {
	case opCommit:
		m.commits.Inc()
	case opReveal:
		m.reveals.Inc()
	}
}

// RecordRejection counts a request refused before it reached the ledger.
func (m *Metrics) RecordRejection(op string, err error) {
	if m == nil || err == nil {
		return
	}
	m.rejections.WithLabelValues(op, Reason(err)).Inc()
}

func (m *Metrics) setState(s *state) {
	if m == nil {
		return
	}
	if s.period.IsStopped() {
		m.stopped.Set(1)
	} else {
		m.stopped.Set(0)
	}
	m.participants.Set(float64(len(s.commits)))
	m.pending.Set(float64(len(s.commits) - s.revealed))
}
