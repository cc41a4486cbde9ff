package preload

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var BuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rs3calc",
	Subsystem: "preload",
	Name:      "builds_total",
	Help:      "Preload builds by outcome (completed, aborted).",
}, []string{"result"})

var BuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "rs3calc",
	Subsystem: "preload",
	Name:      "build_duration_seconds",
	Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
})

var UnitFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rs3calc",
	Subsystem: "preload",
	Name:      "unit_failures_total",
	Help:      "Failed catalogue requests skipped during builds.",
}, []string{"kind"})

var IndexEntries = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "rs3calc",
	Subsystem: "preload",
	Name:      "index_entries",
	Help:      "Entries in the published index.",
})

// RegisterMetrics registers the preload collectors with reg. Collectors that
// are already registered are left as they are.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{BuildsTotal, BuildDuration, UnitFailures, IndexEntries} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
