package assist

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordSuccess(100 * time.Millisecond)
	m.RecordSuccess(300 * time.Millisecond)
	m.RecordFailure(200 * time.Millisecond)
	m.RecordFallback()
	m.RecordClamp()

	snap := m.Snapshot()
	assert.Equal(t, 4, snap.TotalCalls)
	assert.Equal(t, 2, snap.SuccessfulCalls)
	assert.Equal(t, 1, snap.FailedCalls)
	assert.Equal(t, 2, snap.FallbacksUsed)
	assert.Equal(t, 1, snap.ScoresClamped)
	assert.Equal(t, 200*time.Millisecond, snap.AvgLatency)
	assert.InDelta(t, 50.0, snap.SuccessRate, 0.001)
}

func TestMetricsStatus(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		want      string
	}{
		{"all good", 10, 0, "healthy"},
		{"mostly good", 8, 2, "degraded"},
		{"mostly failing", 3, 7, "critical"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics()
			for i := 0; i < tt.successes; i++ {
				m.RecordSuccess(time.Millisecond)
			}
			for i := 0; i < tt.failures; i++ {
				m.RecordFailure(time.Millisecond)
			}
			assert.Equal(t, tt.want, m.Snapshot().Status)
		})
	}
}

func TestMetricsConcurrentRecording(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordSuccess(time.Millisecond)
			m.RecordFallback()
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, 100, snap.TotalCalls)
	assert.Equal(t, 50, snap.SuccessfulCalls)
	assert.Equal(t, 50, snap.FallbacksUsed)
}
