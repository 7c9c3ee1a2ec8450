package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics exposes Prometheus collectors that report pipeline activity.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	rejections    *prometheus.CounterVec
	itemsActive   prometheus.Gauge
	finalized     prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics builds collectors against a private registry, so repeated
// runs in one process never collide and the run can dump its own metrics
// to a textfile afterwards.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	m.gatherer = reg
	return m
}

// MustNewMetrics constructs a Metrics instance using the provided
// registerer. Callers supply a fresh registry when unique metric names
// are required (for example in tests). A registration error panics,
// which mirrors promauto semantics and surfaces configuration bugs
// early.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "datasetpipe",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration spent in each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage", "status"},
	)
	rejections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datasetpipe",
			Subsystem: "pipeline",
			Name:      "rejections_total",
			Help:      "Items that left the pipeline early, by reason.",
		},
		[]string{"reason"},
	)
	itemsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "datasetpipe",
			Subsystem: "pipeline",
			Name:      "items_active",
			Help:      "Items currently being driven through their journey.",
		},
	)
	finalized := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "datasetpipe",
			Subsystem: "pipeline",
			Name:      "finalized_total",
			Help:      "Images that reached the finished dataset.",
		},
	)

	for _, collector := range []prometheus.Collector{stageDuration, rejections, itemsActive, finalized} {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				// Reuse the existing collector when it matches the expected type.
				switch collector {
				case stageDuration:
					stageDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case rejections:
					rejections = already.ExistingCollector.(*prometheus.CounterVec)
				case itemsActive:
					itemsActive = already.ExistingCollector.(prometheus.Gauge)
				case finalized:
					finalized = already.ExistingCollector.(prometheus.Counter)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		stageDuration: stageDuration,
		rejections:    rejections,
		itemsActive:   itemsActive,
		finalized:     finalized,
	}
}

// StageTimer starts timing a stage and returns the function that records
// the observation with its final status.
func (m *Metrics) StageTimer(stage string) func(status string) {
	start := time.Now()
	return func(status string) {
		m.ObserveStage(stage, status, time.Since(start))
	}
}

// ObserveStage records the time spent in a stage with the provided status label.
func (m *Metrics) ObserveStage(stage, status string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// IncRejection counts one early exit with the given reason.
func (m *Metrics) IncRejection(reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// IncActive marks an item journey as started.
func (m *Metrics) IncActive() {
	if m == nil || m.itemsActive == nil {
		return
	}
	m.itemsActive.Inc()
}

// DecActive marks an item journey as finished.
func (m *Metrics) DecActive() {
	if m == nil || m.itemsActive == nil {
		return
	}
	m.itemsActive.Dec()
}

// IncFinalized counts one image placed in the finished dataset.
func (m *Metrics) IncFinalized() {
	if m == nil || m.finalized == nil {
		return
	}
	m.finalized.Inc()
}

// WriteTextfile dumps the collected metrics in the text exposition
// format. It is a no-op for Metrics built on an external registerer,
// where gathering belongs to the owner of the registry.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || m.gatherer == nil {
		return nil
	}

	families, err := m.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(file, family); err != nil {
			_ = file.Close()
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return file.Close()
}
