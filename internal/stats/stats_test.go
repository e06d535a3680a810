package stats

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rule-console/internal/store"
)

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func snapshot(offset time.Duration, completed, failed int64) store.QueueStats {
	return store.QueueStats{
		Waiting:     2,
		Active:      1,
		Completed:   completed,
		Failed:      failed,
		CollectedAt: base.Add(offset),
	}
}

// TestNewTracker verifies the initialization of a new Tracker
func TestNewTracker(t *testing.T) {
	tracker := NewTracker()

	assert.NotNil(t, tracker)
	assert.WithinDuration(t, time.Now(), tracker.StartTime, 100*time.Millisecond)
	assert.Zero(t, tracker.Samples)

	stats := tracker.GetStats()
	assert.NotContains(t, stats, "waiting")
	assert.Equal(t, 0.0, stats["completed_per_sec"])
}

// TestObserve verifies rate computation across consecutive snapshots
func TestObserve(t *testing.T) {
	tests := []struct {
		name       string
		snapshots  []store.QueueStats
		want       Rates
		wantResets uint64
	}{
		{
			name:      "single snapshot has no rate",
			snapshots: []store.QueueStats{snapshot(0, 10, 1)},
			want:      Rates{},
		},
		{
			name:      "steady throughput",
			snapshots: []store.QueueStats{snapshot(0, 10, 1), snapshot(10*time.Second, 30, 3)},
			want:      Rates{CompletedPerSec: 2, FailedPerSec: 0.2},
		},
		{
			name: "duplicate snapshot keeps rates",
			snapshots: []store.QueueStats{
				snapshot(0, 10, 0),
				snapshot(5*time.Second, 20, 0),
				snapshot(5*time.Second, 20, 0),
			},
			want: Rates{CompletedPerSec: 2},
		},
		{
			name: "counter reset rebaselines",
			snapshots: []store.QueueStats{
				snapshot(0, 100, 5),
				snapshot(10*time.Second, 4, 0),
			},
			want:       Rates{},
			wantResets: 1,
		},
		{
			name: "rates resume after reset",
			snapshots: []store.QueueStats{
				snapshot(0, 100, 5),
				snapshot(10*time.Second, 4, 0),
				snapshot(14*time.Second, 12, 2),
			},
			want:       Rates{CompletedPerSec: 2, FailedPerSec: 0.5},
			wantResets: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker()
			var got Rates
			for _, s := range tt.snapshots {
				got = tracker.Observe(s)
			}
			assert.InDelta(t, tt.want.CompletedPerSec, got.CompletedPerSec, 1e-9)
			assert.InDelta(t, tt.want.FailedPerSec, got.FailedPerSec, 1e-9)
			stats := tracker.GetStats()
			assert.Equal(t, got.CompletedPerSec, stats["completed_per_sec"])
			assert.Equal(t, got.FailedPerSec, stats["failed_per_sec"])
			assert.Equal(t, uint64(len(tt.snapshots)), tracker.Samples)
			assert.Equal(t, tt.wantResets, tracker.Resets)
		})
	}
}

// TestGetStatsEncodesAsJSON verifies tracker stats survive JSON encoding
func TestGetStatsEncodesAsJSON(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe(snapshot(0, 10, 0))
	tracker.Observe(snapshot(5*time.Second, 20, 5))

	data, err := json.Marshal(tracker.GetStats())
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))

	expectedKeys := []string{
		"uptime", "samples", "resets", "completed_per_sec", "failed_per_sec",
		"failure_ratio", "last_update", "waiting", "active", "completed", "failed", "collected_at",
	}
	for _, key := range expectedKeys {
		assert.Contains(t, parsed, key, "JSON should contain key: "+key)
	}
	assert.Equal(t, float64(2), parsed["completed_per_sec"])
	assert.Equal(t, float64(20), parsed["completed"])
	assert.InDelta(t, 0.2, parsed["failure_ratio"], 1e-9)
}

func TestFailureRatio(t *testing.T) {
	tracker := NewTracker()
	assert.Zero(t, tracker.FailureRatio())

	tracker.Observe(snapshot(0, 0, 0))
	assert.Zero(t, tracker.FailureRatio())

	tracker.Observe(snapshot(time.Second, 30, 10))
	assert.InDelta(t, 0.25, tracker.FailureRatio(), 1e-9)
}

// TestConcurrentAccess verifies the tracker is safe for concurrent use
func TestConcurrentAccess(t *testing.T) {
	tracker := NewTracker()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tracker.Observe(snapshot(time.Duration(i)*time.Second, int64(i*10), 0))
		}(i)
		go func() {
			defer wg.Done()
			_ = tracker.GetStats()
			_ = tracker.FailureRatio()
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(50), tracker.Samples)
}
