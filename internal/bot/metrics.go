package bot

import (
	"errors"
	"fmt"

	"github.com/beemacro/beemacro/internal/event"
	"github.com/beemacro/beemacro/internal/runstate"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports executor telemetry. A nil *Metrics records nothing.
type Metrics struct {
	state      prometheus.GaugeFunc
	cycles     prometheus.Counter
	tasks      *prometheus.CounterVec
	reconnects *prometheus.CounterVec
}

// NewMetrics registers the executor collectors. The state gauge reads the cell on scrape.
func NewMetrics(namespace string, cell *runstate.Cell, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "beemacro"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		state: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_state",
			Help:      "Current run state code (0 stop requested .. 6 paused).",
		}, func() float64 { return float64(cell.Get()) }),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "cycles_total",
			Help:      "Completed task cycles.",
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tasks_total",
			Help:      "Finished tasks by outcome.",
		}, []string{"task", "reason"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.state, m.cycles, m.tasks, m.reconnects} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register executor metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) cycleDone() {
	if m == nil {
		return
	}
	m.cycles.Inc()
}

func (m *Metrics) taskDone(task string, reason event.FinishReason) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(task, string(reason)).Inc()
}

func (m *Metrics) reconnect(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	m.reconnects.WithLabelValues(result).Inc()
}
