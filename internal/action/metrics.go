package action

import (
	"errors"
	"fmt"
	"time"

	"github.com/beemacro/beemacro/internal/movement"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports hold telemetry. A nil *Metrics records nothing.
type Metrics struct {
	holds         *prometheus.CounterVec
	holdDuration  *prometheus.HistogramVec
	distanceError prometheus.Histogram
	inputErrors   *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "beemacro"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		holds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "holds_total",
			Help:      "Timed input holds by integration strategy and termination reason.",
		}, []string{"strategy", "reason"}),
		holdDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "hold_duration_seconds",
			Help:      "Wall-clock duration inputs were held down.",
			Buckets:   []float64{0.02, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"strategy"}),
		distanceError: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "distance_error_units",
			Help:      "Travelled minus requested distance for compensated holds.",
			Buckets:   prometheus.LinearBuckets(-4, 1, 9),
		}),
		inputErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "input_errors_total",
			Help:      "Key assertion and release failures.",
		}, []string{"op"}),
	}

	collectors := []prometheus.Collector{m.holds, m.holdDuration, m.distanceError, m.inputErrors}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register action metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeHold(mode string, res movement.Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.holds.WithLabelValues(mode, res.Reason.String()).Inc()
	m.holdDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if mode != modeFixed && res.Reason == movement.Reached {
		m.distanceError.Observe(res.DistanceError)
	}
}

func (m *Metrics) inputError(op string) {
	if m == nil {
		return
	}
	m.inputErrors.WithLabelValues(op).Inc()
}
