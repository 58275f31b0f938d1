package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the reminder service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	commands         *prometheus.CounterVec
	remindersCreated prometheus.Counter
	jobs             *prometheus.GaugeVec
	fires            *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
}

// New registers the collectors with reg. Tests should pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remindbot",
			Name:      "commands_total",
			Help:      "Commands handled, by intent and outcome.",
		}, []string{"intent", "outcome"}),
		remindersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remindbot",
			Name:      "reminders_created_total",
			Help:      "Reminders persisted.",
		}),
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "remindbot",
			Subsystem: "scheduler",
			Name:      "jobs",
			Help:      "Live scheduled jobs by mode.",
		}, []string{"mode"}),
		fires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remindbot",
			Subsystem: "scheduler",
			Name:      "fires_total",
			Help:      "Job fires by mode and outcome.",
		}, []string{"mode", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remindbot",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Delivery attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.commands, m.remindersCreated, m.jobs, m.fires, m.deliveries)
	return m
}

func (m *Metrics) Command(intent, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(intent, outcome).Inc()
}

func (m *Metrics) ReminderCreated() {
	if m == nil {
		return
	}
	m.remindersCreated.Inc()
}

func (m *Metrics) SetJobs(mode string, n int) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(mode).Set(float64(n))
}

func (m *Metrics) Fired(mode, outcome string) {
	if m == nil {
		return
	}
	m.fires.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) Delivered(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}
