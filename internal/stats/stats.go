package stats

import (
	"sync"
	"time"

	"rule-console/internal/store"
)

// Rates is the delivery throughput derived from two consecutive queue
// snapshots.
type Rates struct {
	CompletedPerSec float64 `json:"completedPerSec"`
	FailedPerSec    float64 `json:"failedPerSec"`
}

// Tracker turns queue snapshots into throughput figures
type Tracker struct {
	mu         sync.RWMutex
	StartTime  time.Time
	Samples    uint64
	Resets     uint64
	latest     *store.QueueStats
	rates      Rates
	LastUpdate time.Time
}

// NewTracker creates a new tracker
func NewTracker() *Tracker {
	return &Tracker{
		StartTime:  time.Now(),
		LastUpdate: time.Now(),
	}
}

// Observe records a snapshot and returns the updated rates. Rates need two
// snapshots with increasing collection times. A counter that goes
// backwards means the queue was reset, so the pair is skipped and the new
// snapshot becomes the baseline.
func (t *Tracker) Observe(snapshot store.QueueStats) Rates {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Samples++
	t.LastUpdate = time.Now()

	prev := t.latest
	t.latest = &snapshot
	if prev == nil {
		return t.rates
	}

	if snapshot.Completed < prev.Completed || snapshot.Failed < prev.Failed {
		t.Resets++
		t.rates = Rates{}
		return t.rates
	}

	elapsed := snapshot.CollectedAt.Sub(prev.CollectedAt).Seconds()
	if elapsed <= 0 {
		// same snapshot seen twice
		t.latest = prev
		return t.rates
	}

	t.rates = Rates{
		CompletedPerSec: float64(snapshot.Completed-prev.Completed) / elapsed,
		FailedPerSec:    float64(snapshot.Failed-prev.Failed) / elapsed,
	}
	return t.rates
}

// GetStats returns current statistics
func (t *Tracker) GetStats() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := map[string]interface{}{
		"uptime":            time.Since(t.StartTime).String(),
		"samples":           t.Samples,
		"resets":            t.Resets,
		"completed_per_sec": t.rates.CompletedPerSec,
		"failed_per_sec":    t.rates.FailedPerSec,
		"failure_ratio":     t.failureRatio(),
		"last_update":       t.LastUpdate,
	}
	if t.latest != nil {
		out["waiting"] = t.latest.Waiting
		out["active"] = t.latest.Active
		out["completed"] = t.latest.Completed
		out["failed"] = t.latest.Failed
		out["collected_at"] = t.latest.CollectedAt
	}
	return out
}

// FailureRatio returns failed / (completed + failed) of the latest
// snapshot, or 0 before any delivery finished.
func (t *Tracker) FailureRatio() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.failureRatio()
}

func (t *Tracker) failureRatio() float64 {
	if t.latest == nil {
		return 0
	}
	done := t.latest.Completed + t.latest.Failed
	if done == 0 {
		return 0
	}
	return float64(t.latest.Failed) / float64(done)
}
