// Package assist defines the external assistance capability the matching
// engine consumes: label similarity scoring and transaction categorization.
// Both are best-effort — every consumer must be prepared for the capability
// to be unavailable and fall back to the deterministic implementations in
// this package.
package assist

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/khiari-mohamed/approchement-backend/pkg/errors"
)

// ErrUnavailable is returned when the capability cannot be reached at all
// (not configured, endpoint down). Callers switch to the deterministic
// fallback; the error is never fatal to a reconciliation run.
var ErrUnavailable = apperrors.CapabilityError(apperrors.CodeUnavailable, "assist", nil)

// LabelComparison is the result of a similarity query between two labels.
type LabelComparison struct {
	// Score is the similarity in [0,1].
	Score float64
	// Fallback is true when the score came from the deterministic metric
	// rather than the external capability.
	Fallback bool
	// ResponseTime is the wall time of the external call, zero on fallback.
	ResponseTime time.Duration
}

// Categorization is the result of classifying a transaction description.
type Categorization struct {
	Category   string
	Confidence float64
	Fallback   bool
}

// LabelComparer scores the similarity of two transaction labels.
type LabelComparer interface {
	CompareLabels(ctx context.Context, a, b string) (LabelComparison, error)
}

// TransactionCategorizer assigns a category to a transaction description.
type TransactionCategorizer interface {
	CategorizeTransaction(ctx context.Context, description string) (Categorization, error)
}

// Metrics accumulates capability counters for one reconciliation run. It is
// an explicit per-run accumulator rather than package-level state, so
// concurrent runs never contaminate each other's numbers.
type Metrics struct {
	mu sync.Mutex

	totalCalls      int
	successfulCalls int
	failedCalls     int
	fallbacksUsed   int
	scoresClamped   int
	totalLatency    time.Duration
}

// NewMetrics returns a zeroed accumulator.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordSuccess counts a completed external call.
func (m *Metrics) RecordSuccess(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCalls++
	m.successfulCalls++
	m.totalLatency += latency
}

// RecordFailure counts a failed external call that degraded to the fallback.
func (m *Metrics) RecordFailure(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCalls++
	m.failedCalls++
	m.fallbacksUsed++
	m.totalLatency += latency
}

// RecordFallback counts a call answered by the deterministic fallback
// without attempting the capability.
func (m *Metrics) RecordFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCalls++
	m.fallbacksUsed++
}

// RecordClamp counts a capability response whose score fell outside [0,1]
// and had to be clamped.
func (m *Metrics) RecordClamp() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scoresClamped++
}

// MetricsSnapshot is a read-only view of the accumulated counters.
type MetricsSnapshot struct {
	TotalCalls      int           `json:"total_calls"`
	SuccessfulCalls int           `json:"successful_calls"`
	FailedCalls     int           `json:"failed_calls"`
	FallbacksUsed   int           `json:"fallbacks_used"`
	ScoresClamped   int           `json:"scores_clamped"`
	SuccessRate     float64       `json:"success_rate"`
	AvgLatency      time.Duration `json:"avg_latency"`
	Status          string        `json:"status"`
}

// Snapshot returns the current counter values with derived rates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		TotalCalls:      m.totalCalls,
		SuccessfulCalls: m.successfulCalls,
		FailedCalls:     m.failedCalls,
		FallbacksUsed:   m.fallbacksUsed,
		ScoresClamped:   m.scoresClamped,
	}
	if m.totalCalls > 0 {
		snap.SuccessRate = float64(m.successfulCalls) / float64(m.totalCalls) * 100
	}
	attempted := m.successfulCalls + m.failedCalls
	if attempted > 0 {
		snap.AvgLatency = m.totalLatency / time.Duration(attempted)
	}
	switch {
	case snap.SuccessRate > 90:
		snap.Status = "healthy"
	case snap.SuccessRate > 70:
		snap.Status = "degraded"
	default:
		snap.Status = "critical"
	}
	return snap
}
