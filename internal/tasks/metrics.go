package tasks

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "ydlwebui"
	metricsSubsystem = "tasks"
)

// Metrics counts repository outcomes. A nil *Metrics records nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewMetrics builds the repository counters and registers them with reg when
// reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "operations_total",
				Help:      "Repository calls by operation and result.",
			},
			[]string{"operation", "result"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "transitions_total",
				Help:      "Committed state changes by target state.",
			},
			[]string{"state"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.transitions)
	}
	return m
}

// observe records one call; result is "ok" or the error kind.
func (m *Metrics) observe(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = KindOf(err)
		if result == "" {
			result = "error"
		}
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) transition(state State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state.String()).Inc()
}

// StateCollector exports the current number of tasks per state, read from the
// store at scrape time.
type StateCollector struct {
	store   *Store
	timeout time.Duration
	desc    *prometheus.Desc
}

// NewStateCollector returns a collector over store. Register it with a
// prometheus.Registerer.
func NewStateCollector(store *Store) *StateCollector {
	return &StateCollector{
		store:   store,
		timeout: 5 * time.Second,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, metricsSubsystem, "state"),
			"Number of tasks currently in each state.",
			[]string{"state"},
			nil,
		),
	}
}

// Describe sends the single gauge descriptor.
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect reads the per-state counts from the store and emits one gauge
// sample per canonical state.
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	counts, err := c.store.ListState(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.desc, err)
		return
	}
	for _, state := range canonicalStates {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[state]), state.String())
	}
}
