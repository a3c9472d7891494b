package exporter

import "github.com/prometheus/client_golang/prometheus"

const selfSubsystem = "exporter"

// SelfMetrics are the exporter's own health series.
type SelfMetrics struct {
	RefreshTotal     prometheus.Counter
	RefreshErrors    prometheus.Counter
	RefreshSkipped   prometheus.Counter
	SkippedLines     prometheus.Counter
	ProjectionErrors prometheus.Counter
	LastSuccess      prometheus.Gauge
	LastDuration     prometheus.Gauge
	Up               prometheus.Gauge
}

// NewSelfMetrics creates the series under namespace. They are usable before
// and without registration.
func NewSelfMetrics(namespace string) *SelfMetrics {
	return &SelfMetrics{
		RefreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: selfSubsystem,
			Name:      "refresh_total",
			Help:      "Status command invocations.",
		}),
		RefreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: selfSubsystem,
			Name:      "refresh_errors_total",
			Help:      "Refreshes that kept the previous snapshot because the status command or the parse failed.",
		}),
		RefreshSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: selfSubsystem,
			Name:      "refresh_skipped_total",
			Help:      "Refresh ticks dropped because the previous refresh was still running.",
		}),
		SkippedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: selfSubsystem,
			Name:      "parse_skipped_lines_total",
			Help:      "Dump lines dropped by the parser.",
		}),
		ProjectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: selfSubsystem,
			Name:      "scrape_projection_errors_total",
			Help:      "Records left out of a scrape because a required field was missing.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: selfSubsystem,
			Name:      "last_refresh_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		LastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: selfSubsystem,
			Name:      "last_refresh_duration_seconds",
			Help:      "Duration of the last refresh attempt.",
		}),
		Up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: selfSubsystem,
			Name:      "up",
			Help:      "1 once a snapshot of the peer table is being served.",
		}),
	}
}

// Register adds every series to r.
func (m *SelfMetrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.RefreshTotal,
		m.RefreshErrors,
		m.RefreshSkipped,
		m.SkippedLines,
		m.ProjectionErrors,
		m.LastSuccess,
		m.LastDuration,
		m.Up,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
