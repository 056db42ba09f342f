package build

import (
	"sync"
	"time"
)

// RunResult summarizes one pipeline run, full or partial.
type RunResult struct {
	Stages    []State
	Duration  time.Duration
	Artifacts int
	Error     error
}

// BuildMetrics tracks runs across a watch session. Suppressed counts file
// events dropped because the file content had not changed.
type BuildMetrics struct {
	TotalRuns       int64
	SuccessfulRuns  int64
	FailedRuns      int64
	Suppressed      int64
	Artifacts       int64
	AverageDuration time.Duration
	TotalDuration   time.Duration
	mutex           sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordRun records a run result in the metrics
func (bm *BuildMetrics) RecordRun(result RunResult) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalRuns++
	bm.TotalDuration += result.Duration
	bm.Artifacts += int64(result.Artifacts)

	if result.Error != nil {
		bm.FailedRuns++
	} else {
		bm.SuccessfulRuns++
	}

	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalRuns)
}

// RecordSuppressed counts file events skipped as unchanged.
func (bm *BuildMetrics) RecordSuppressed(n int) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()
	bm.Suppressed += int64(n)
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	return BuildMetrics{
		TotalRuns:       bm.TotalRuns,
		SuccessfulRuns:  bm.SuccessfulRuns,
		FailedRuns:      bm.FailedRuns,
		Suppressed:      bm.Suppressed,
		Artifacts:       bm.Artifacts,
		AverageDuration: bm.AverageDuration,
		TotalDuration:   bm.TotalDuration,
	}
}

// Reset resets all metrics
func (bm *BuildMetrics) Reset() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalRuns = 0
	bm.SuccessfulRuns = 0
	bm.FailedRuns = 0
	bm.Suppressed = 0
	bm.Artifacts = 0
	bm.AverageDuration = 0
	bm.TotalDuration = 0
}

// GetSuccessRate returns the success rate as a percentage
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	if bm.TotalRuns == 0 {
		return 0.0
	}

	return float64(bm.SuccessfulRuns) / float64(bm.TotalRuns) * 100.0
}
