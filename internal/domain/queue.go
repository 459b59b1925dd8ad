package domain

import "time"

// Priority is the dispatch priority of a Queue Item (spec §3): 1 is highest.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

// streamKey is the Redis stream name backing this priority (spec §6).
func (p Priority) streamKey() string {
	switch p {
	case PriorityHigh:
		return "queue:p1"
	case PriorityLow:
		return "queue:p3"
	default:
		return "queue:p2"
	}
}

// StreamKey exposes streamKey for packages outside domain that need the
// Redis key without re-deriving the numbering scheme.
func (p Priority) StreamKey() string { return p.streamKey() }

// QueueItem is the transient record that exists only between QD.enqueue and a
// worker's claim (spec §3).
type QueueItem struct {
	OrderID    string
	Priority   Priority
	Meta       map[string]string
	EnqueuedAt time.Time
	Attempts   int
}
