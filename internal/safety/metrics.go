package safety

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisLatencyBuckets are latency buckets for one full analysis call.
var AnalysisLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}

// Metrics tracks engine counters. The plain atomic counters back the
// Metrics() call contract; the Prometheus collectors mirror them for
// scraping.
type Metrics struct {
	totalRequests      atomic.Uint64
	blockedRequests    atomic.Uint64
	modifiedRequests   atomic.Uint64
	safeRequests       atomic.Uint64
	highRiskDetections atomic.Uint64
	totalProcessingUs  atomic.Uint64

	RequestTotal    *prometheus.CounterVec
	RequestLatency  prometheus.Histogram
	LayerFailures   *prometheus.CounterVec
	CacheHits       prometheus.Counter
	RiskLevelsTotal *prometheus.CounterVec
}

// MetricsSnapshot is the read-only counter view surfaced to callers.
// Counters are monotonically increasing except on process restart.
type MetricsSnapshot struct {
	TotalRequests      uint64  `json:"total_requests"`
	BlockedRequests    uint64  `json:"blocked_requests"`
	ModifiedRequests   uint64  `json:"modified_requests"`
	SafeRequests       uint64  `json:"safe_requests"`
	HighRiskDetections uint64  `json:"high_risk_detections"`
	AvgProcessingMs    float64 `json:"avg_processing_time_ms"`
	CacheHits          uint64  `json:"cache_hits"`
	CacheMisses        uint64  `json:"cache_misses"`
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safety_analysis_requests_total",
				Help: "Total analysis requests by outcome",
			},
			[]string{"outcome"},
		),
		RequestLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "safety_analysis_duration_seconds",
				Help:    "Analysis duration in seconds",
				Buckets: AnalysisLatencyBuckets,
			},
		),
		LayerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safety_layer_failures_total",
				Help: "Layer errors and timeouts by layer",
			},
			[]string{"layer", "kind"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "safety_cache_hits_total",
				Help: "Analysis results served from cache",
			},
		),
		RiskLevelsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safety_risk_levels_total",
				Help: "Assigned overall risk levels",
			},
			[]string{"level"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.RequestTotal, m.RequestLatency, m.LayerFailures, m.CacheHits, m.RiskLevelsTotal)
	}
	return m
}

func (m *Metrics) recordResult(result *AnalysisResult, processingMs float64) {
	m.totalRequests.Add(1)
	m.totalProcessingUs.Add(uint64(processingMs * 1000))

	outcome := "safe"
	switch {
	case !result.IsSafe:
		outcome = "blocked"
		m.blockedRequests.Add(1)
	case len(result.RequiredModifications) > 0:
		outcome = "modified"
		m.modifiedRequests.Add(1)
	default:
		m.safeRequests.Add(1)
	}
	if result.OverallRiskLevel >= RiskHigh {
		m.highRiskDetections.Add(1)
	}

	m.RequestTotal.WithLabelValues(outcome).Inc()
	m.RequestLatency.Observe(processingMs / 1000.0)
	m.RiskLevelsTotal.WithLabelValues(result.OverallRiskLevel.String()).Inc()
}

func (m *Metrics) snapshot(cacheHits, cacheMisses uint64) MetricsSnapshot {
	total := m.totalRequests.Load()
	avg := 0.0
	if total > 0 {
		avg = float64(m.totalProcessingUs.Load()) / 1000.0 / float64(total)
	}
	return MetricsSnapshot{
		TotalRequests:      total,
		BlockedRequests:    m.blockedRequests.Load(),
		ModifiedRequests:   m.modifiedRequests.Load(),
		SafeRequests:       m.safeRequests.Load(),
		HighRiskDetections: m.highRiskDetections.Load(),
		AvgProcessingMs:    avg,
		CacheHits:          cacheHits,
		CacheMisses:        cacheMisses,
	}
}
