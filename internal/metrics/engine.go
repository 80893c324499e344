package metrics

import (
	"time"
)

// Flag kinds tracked by FlagsTotal.
var flagKinds = []string{"risk", "sdoh", "hrs"}

// EngineMetrics holds the report engine metrics.
type EngineMetrics struct {
	registry *Registry

	// Counters
	ReportsTotal    *Counter
	BuildErrors     *Counter
	RecordsDropped  *Counter
	HRSElevated     *Counter
	SourcesDegraded *Counter
	ExportsTotal    *Counter
	RulebookReloads *Counter
	FlagsTotal      map[string]*Counter

	// Gauges
	LastBuildTs *Gauge

	// Histograms
	BuildDuration   *Histogram
	GatherDuration  *Histogram
	RecordsPerBuild *Histogram
}

// NewEngineMetrics creates and registers the engine metrics.
func NewEngineMetrics(registry *Registry) *EngineMetrics {
	if registry == nil {
		registry = Default()
	}

	m := &EngineMetrics{
		registry: registry,

		ReportsTotal: registry.RegisterCounter(
			"reports_built_total",
			"Total number of reports built",
			nil,
		),
		BuildErrors: registry.RegisterCounter(
			"build_errors_total",
			"Total number of report builds rejected for configuration errors",
			nil,
		),
		RecordsDropped: registry.RegisterCounter(
			"records_dropped_total",
			"Total number of malformed or out-of-window records dropped",
			nil,
		),
		HRSElevated: registry.RegisterCounter(
			"hrs_elevated_total",
			"Total number of reports with an elevated harm-risk classification",
			nil,
		),
		SourcesDegraded: registry.RegisterCounter(
			"sources_degraded_total",
			"Total number of source fetches that degraded to no data",
			nil,
		),
		ExportsTotal: registry.RegisterCounter(
			"exports_total",
			"Total number of report exports",
			nil,
		),
		RulebookReloads: registry.RegisterCounter(
			"rulebook_reloads_total",
			"Total number of rulebook reloads",
			nil,
		),
		FlagsTotal: make(map[string]*Counter, len(flagKinds)),

		LastBuildTs: registry.RegisterGauge(
			"last_build_timestamp",
			"Unix timestamp of the last report build",
			nil,
		),

		BuildDuration: registry.RegisterHistogram(
			"build_duration_seconds",
			"Duration of report builds in seconds",
			nil,
			DurationBuckets,
		),
		GatherDuration: registry.RegisterHistogram(
			"gather_duration_seconds",
			"Duration of source gathering in seconds",
			nil,
			DurationBuckets,
		),
		RecordsPerBuild: registry.RegisterHistogram(
			"records_per_build",
			"Number of normalized interactions per report",
			nil,
			CountBuckets,
		),
	}

	for _, kind := range flagKinds {
		m.FlagsTotal[kind] = registry.RegisterCounter(
			"flags_total",
			"Total number of flags emitted by kind",
			Labels{"kind": kind},
		)
	}

	return m
}

// Registry returns the registry the metrics are registered in.
func (m *EngineMetrics) Registry() *Registry {
	return m.registry
}

// RecordBuild records a completed report build.
func (m *EngineMetrics) RecordBuild(duration time.Duration, interactions, dropped int) {
	m.ReportsTotal.Inc()
	m.BuildDuration.ObserveDuration(duration)
	m.RecordsPerBuild.Observe(float64(interactions))
	if dropped > 0 {
		m.RecordsDropped.Add(uint64(dropped))
	}
	m.LastBuildTs.Set(time.Now().Unix())
}

// RecordFlags counts emitted flags of one kind. Unknown kinds are ignored.
func (m *EngineMetrics) RecordFlags(kind string, n int) {
	if c, ok := m.FlagsTotal[kind]; ok && n > 0 {
		c.Add(uint64(n))
	}
}

// RecordBuildError records a rejected build.
func (m *EngineMetrics) RecordBuildError() {
	m.BuildErrors.Inc()
}

// RecordHRSElevated records an elevated harm-risk classification.
func (m *EngineMetrics) RecordHRSElevated() {
	m.HRSElevated.Inc()
}

// RecordGather records a completed gather and its degraded sources.
func (m *EngineMetrics) RecordGather(duration time.Duration, degraded int) {
	m.GatherDuration.ObserveDuration(duration)
	if degraded > 0 {
		m.SourcesDegraded.Add(uint64(degraded))
	}
}

// RecordExport records a report export.
func (m *EngineMetrics) RecordExport() {
	m.ExportsTotal.Inc()
}

// RecordRulebookReload records a rulebook reload.
func (m *EngineMetrics) RecordRulebookReload() {
	m.RulebookReloads.Inc()
}
