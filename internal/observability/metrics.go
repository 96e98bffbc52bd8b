package observability

import (
	"strconv"
	"sync"
	"time"
)

// Pipeline outcomes counted by the worker pool and the recovery sweep.
const (
	OutcomeReady     = "ready"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
	OutcomeNotFound  = "not_found"
	OutcomeRecovered = "recovered"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	startedAt       time.Time
	requestCount    map[string]int64
	errorCount      map[string]int64
	outcomes        map[string]int64
	analysisCalls   int64
	analysisElapsed time.Duration
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds        float64          `json:"uptime_seconds"`
	Requests             map[string]int64 `json:"requests"`
	Errors               map[string]int64 `json:"errors"`
	PipelineOutcomes     map[string]int64 `json:"pipeline_outcomes"`
	AnalysisCalls        int64            `json:"analysis_calls"`
	AnalysisAvgLatencyMS float64          `json:"analysis_avg_latency_ms"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt:    time.Now(),
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		outcomes:     make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordOutcome counts one handled task by outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

// RecordAnalysis tracks one analysis call, successful or not.
func (m *Metrics) RecordAnalysis(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analysisCalls++
	m.analysisElapsed += elapsed
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds:    time.Since(m.startedAt).Seconds(),
		Requests:         copyCounts(m.requestCount),
		Errors:           copyCounts(m.errorCount),
		PipelineOutcomes: copyCounts(m.outcomes),
		AnalysisCalls:    m.analysisCalls,
	}
	if m.analysisCalls > 0 {
		snap.AnalysisAvgLatencyMS = float64(m.analysisElapsed.Milliseconds()) / float64(m.analysisCalls)
	}
	return snap
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
