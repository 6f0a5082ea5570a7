package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/limaJavier/timetabler/pkg/engine"
	"github.com/limaJavier/timetabler/pkg/repair"
)

type Config struct {
	Namespace string `koanf:"namespace"`
	// Optional node-exporter textfile written after each command
	Textfile string `koanf:"textfile"`
}

func (config *Config) SetDefaults() {
	if config.Namespace == "" {
		config.Namespace = "timetabler"
	}
}

// Recorder receives the outcome of every planning and repair run.
type Recorder interface {
	RecordRun(result *engine.Result)
	RecordRepair(outcome *repair.Outcome)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

func (NopRecorder) RecordRun(*engine.Result)     {}
func (NopRecorder) RecordRepair(*repair.Outcome) {}

// PromRecorder records runs in Prometheus metrics.
type PromRecorder struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	nodes    prometheus.Histogram
	repairs  *prometheus.CounterVec
	changes  prometheus.Histogram
}

// NewPromRecorder registers the collectors on reg, or on the default registerer when reg is
// nil. Collectors already registered under the same names are reused.
func NewPromRecorder(config Config, reg prometheus.Registerer) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	config.SetDefaults()

	recorder := &PromRecorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "runs_total",
			Help:      "Planning runs by outcome",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of planning runs",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"status"}),
		nodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "search_nodes",
			Help:      "Search nodes expanded per planning run",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 8),
		}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "repairs_total",
			Help:      "Repairs by outcome",
		}, []string{"status", "escalated"}),
		changes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "repair_changes",
			Help:      "Assignments changed by a successful repair",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),
	}

	var err error
	if recorder.runs, err = register(reg, recorder.runs); err != nil {
		return nil, err
	} else if recorder.duration, err = register(reg, recorder.duration); err != nil {
		return nil, err
	} else if recorder.nodes, err = register(reg, recorder.nodes); err != nil {
		return nil, err
	} else if recorder.repairs, err = register(reg, recorder.repairs); err != nil {
		return nil, err
	} else if recorder.changes, err = register(reg, recorder.changes); err != nil {
		return nil, err
	}
	return recorder, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, fmt.Errorf("register collector: %w", err)
	}
	return collector, nil
}

func (recorder *PromRecorder) RecordRun(result *engine.Result) {
	status := result.Status.String()
	recorder.runs.WithLabelValues(status).Inc()
	recorder.duration.WithLabelValues(status).Observe(result.Stats.Duration.Seconds())
	recorder.nodes.Observe(float64(result.Stats.Nodes))
}

func (recorder *PromRecorder) RecordRepair(outcome *repair.Outcome) {
	recorder.repairs.WithLabelValues(outcome.Status.String(), fmt.Sprint(outcome.Escalated)).Inc()
	if outcome.Status == repair.StatusRepaired {
		recorder.changes.Observe(float64(len(outcome.Changes)))
	}
}

// WriteTextfile dumps every metric of gatherer in the text exposition format.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
