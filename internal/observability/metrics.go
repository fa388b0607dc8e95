// Package observability holds the Prometheus metrics of the load pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "roadpulse"

// Metrics holds the Prometheus counters, histograms, and gauges for loads and playback.
type Metrics struct {
	// Load lifecycle metrics.
	LoadsStarted    prometheus.Counter
	LoadsApplied    prometheus.Counter
	LoadsSuperseded prometheus.Counter
	LoadsFailed     prometheus.Counter
	LoadInFlight    prometheus.Gauge
	LoadDuration    prometheus.Histogram

	// Join metrics.
	JoinDuration  prometheus.Histogram
	RoadsMatched  prometheus.Gauge
	RoadsSkipped  prometheus.Counter
	SamplesLoaded prometheus.Gauge

	// Playback metrics.
	PlaybackTicks   prometheus.Counter
	PlaybackPlaying prometheus.Gauge

	// Upstream fetch metrics.
	FetchRequests *prometheus.CounterVec // labels: dataset={samples,roads}, outcome={success,error}

	// Road cache warm metrics.
	WarmRegions *prometheus.CounterVec // labels: outcome={success,error,skipped}
}

func newMetrics() *Metrics {
	return &Metrics{
		LoadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_started_total",
			Help:      "Total data loads issued.",
		}),
		LoadsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_applied_total",
			Help:      "Total loads whose results replaced the current snapshot.",
		}),
		LoadsSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_superseded_total",
			Help:      "Total loads discarded because a newer load was issued.",
		}),
		LoadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_failed_total",
			Help:      "Total current loads that failed and kept the previous snapshot.",
		}),
		LoadInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "load_in_flight",
			Help:      "1 while the most recent load is outstanding, 0 otherwise.",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of fetching both datasets of a load.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		JoinDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "join_duration_seconds",
			Help:      "Duration of matching every road to its nearest sample.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		RoadsMatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "roads_matched",
			Help:      "Roads carrying a value in the current snapshot.",
		}),
		RoadsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roads_skipped_total",
			Help:      "Roads left out of a join because their geometry had no usable segment.",
		}),
		SamplesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "samples_loaded",
			Help:      "Samples in the current snapshot.",
		}),
		PlaybackTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_ticks_total",
			Help:      "Total playback ticks that advanced the selected time.",
		}),
		PlaybackPlaying: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_playing",
			Help:      "1 while playback is running, 0 when paused.",
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Data service fetches by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		WarmRegions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_warm_regions_total",
			Help:      "Regions processed by the road cache warm job by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LoadsStarted,
		m.LoadsApplied,
		m.LoadsSuperseded,
		m.LoadsFailed,
		m.LoadInFlight,
		m.LoadDuration,
		m.JoinDuration,
		m.RoadsMatched,
		m.RoadsSkipped,
		m.SamplesLoaded,
		m.PlaybackTicks,
		m.PlaybackPlaying,
		m.FetchRequests,
		m.WarmRegions,
	}
}

// NewMetrics creates all pipeline metrics and registers them with reg.
// A nil reg uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
