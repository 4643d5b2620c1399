package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes noise map evaluation metrics
type Collector struct {
	gatherer prometheus.Gatherer

	CellDuration       prometheus.Histogram
	CellsEvaluated     prometheus.Counter
	ReceiversEvaluated prometheus.Counter
	PathsFound         *prometheus.CounterVec
	RunsCancelled      prometheus.Counter
}

// NewCollector registers the metrics against the provided registerer
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cellDuration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "noisemap_cell_duration_seconds",
		Help:    "Duration of one cell evaluation, scene preparation included.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}), "noisemap_cell_duration_seconds")
	if err != nil {
		return nil, err
	}

	cells, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "noisemap_cells_evaluated_total",
		Help: "Number of cells evaluated.",
	}), "noisemap_cells_evaluated_total")
	if err != nil {
		return nil, err
	}

	receivers, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "noisemap_receivers_evaluated_total",
		Help: "Number of receivers evaluated.",
	}), "noisemap_receivers_evaluated_total")
	if err != nil {
		return nil, err
	}

	paths, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "noisemap_paths_found_total",
		Help: "Number of propagation paths accepted, by kind.",
	}, []string{"kind"}), "noisemap_paths_found_total")
	if err != nil {
		return nil, err
	}

	cancelled, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "noisemap_runs_cancelled_total",
		Help: "Number of evaluations stopped before every cell was done.",
	}), "noisemap_runs_cancelled_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		CellDuration:       cellDuration,
		CellsEvaluated:     cells,
		ReceiversEvaluated: receivers,
		PathsFound:         paths,
		RunsCancelled:      cancelled,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveCell records one evaluated cell
func (c *Collector) ObserveCell(d time.Duration, receivers int) {
	if c == nil {
		return
	}
	c.CellDuration.Observe(d.Seconds())
	c.CellsEvaluated.Inc()
	c.ReceiversEvaluated.Add(float64(receivers))
}

// AddPaths counts accepted paths of one kind
func (c *Collector) AddPaths(kind string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.PathsFound.WithLabelValues(kind).Add(float64(n))
}

// IncCancelled counts a cancelled run
func (c *Collector) IncCancelled() {
	if c == nil {
		return
	}
	c.RunsCancelled.Inc()
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}
