package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates the engine's prometheus collectors.
type Metrics struct {
	executionsStarted   *prometheus.CounterVec
	executionsCompleted prometheus.Counter
	executionsAborted   prometheus.Counter
	activeExecutions    prometheus.Gauge
	nodeExecutions      *prometheus.CounterVec
	emergencyStops      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenloom_executions_started_total",
			Help: "Flow executions started, by trigger type.",
		}, []string{"trigger"}),
		executionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenloom_executions_completed_total",
			Help: "Flow executions that reached a terminal node.",
		}),
		executionsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenloom_executions_aborted_total",
			Help: "Flow executions aborted by error or cancellation.",
		}),
		activeExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screenloom_active_executions",
			Help: "Currently running or suspended flow executions.",
		}),
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenloom_node_executions_total",
			Help: "Nodes executed, by kind.",
		}, []string{"kind"}),
		emergencyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenloom_emergency_stops_total",
			Help: "Emergency stop invocations.",
		}),
	}
	reg.MustRegister(
		m.executionsStarted,
		m.executionsCompleted,
		m.executionsAborted,
		m.activeExecutions,
		m.nodeExecutions,
		m.emergencyStops,
	)
	return m
}

func (m *Metrics) executionStarted(trigger string) {
	m.executionsStarted.WithLabelValues(trigger).Inc()
}
