package qd

import (
	"sync"
	"time"
)

// WorkerStats is a point-in-time export of one worker's counters (spec §4.2
// "per-worker statistics ... exported for health").
type WorkerStats struct {
	WorkerID     string
	Claimed      int64
	Processed    int64
	Failed       int64
	AvgProcessMs float64
}

type workerCounters struct {
	claimed        int64
	processed      int64
	failed         int64
	totalProcessNs int64
}

type statsRegistry struct {
	mu sync.Mutex
	m  map[string]*workerCounters
}

func newStatsRegistry() *statsRegistry {
	return &statsRegistry{m: make(map[string]*workerCounters)}
}

func (r *statsRegistry) get(workerID string) *workerCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[workerID]
	if !ok {
		c = &workerCounters{}
		r.m[workerID] = c
	}
	return c
}

func (r *statsRegistry) recordClaim(workerID string) {
	c := r.get(workerID)
	r.mu.Lock()
	c.claimed++
	r.mu.Unlock()
}

func (r *statsRegistry) recordProcessed(workerID string, elapsed time.Duration) {
	c := r.get(workerID)
	r.mu.Lock()
	c.processed++
	c.totalProcessNs += elapsed.Nanoseconds()
	r.mu.Unlock()
}

func (r *statsRegistry) recordFailed(workerID string) {
	c := r.get(workerID)
	r.mu.Lock()
	c.failed++
	r.mu.Unlock()
}

func (r *statsRegistry) snapshot() []WorkerStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]WorkerStats, 0, len(r.m))
	for id, c := range r.m {
		avg := 0.0
		if c.processed > 0 {
			avg = float64(c.totalProcessNs) / float64(c.processed) / 1e6
		}
		out = append(out, WorkerStats{
			WorkerID:     id,
			Claimed:      c.claimed,
			Processed:    c.processed,
			Failed:       c.failed,
			AvgProcessMs: avg,
		})
	}
	return out
}
