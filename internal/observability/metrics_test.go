package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/tickets", "POST", 201, time.Millisecond)
	m.RecordRequest("/api/tickets", "POST", 201, time.Millisecond)
	m.RecordError("/api/tickets/:id", "GET", "NOT_FOUND")
	m.RecordOutcome(OutcomeReady)
	m.RecordAnalysis(100 * time.Millisecond)
	m.RecordAnalysis(300 * time.Millisecond)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.Requests["/api/tickets|POST|201"])
	assert.EqualValues(t, 1, snap.Errors["/api/tickets/:id|GET|NOT_FOUND"])
	assert.EqualValues(t, 1, snap.PipelineOutcomes[OutcomeReady])
	assert.EqualValues(t, 2, snap.AnalysisCalls)
	assert.InDelta(t, 200, snap.AnalysisAvgLatencyMS, 0.001)

	snap.PipelineOutcomes[OutcomeReady] = 99
	assert.EqualValues(t, 1, m.Snapshot().PipelineOutcomes[OutcomeReady])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOutcome(OutcomeFailed)
		m.RecordAnalysis(time.Second)
		_ = m.Snapshot()
	})
}
