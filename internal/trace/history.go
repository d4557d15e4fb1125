package trace

import (
	"sync"
)

// DefaultHistoryCapacity bounds the per-process history. The history spans
// sessions, so it keeps a larger window than a single session ring before
// the same oldest-half eviction applies.
const DefaultHistoryCapacity = 4 * DefaultRingCapacity

// History accumulates the events of stopped sessions per process, in flush
// order, for the lifetime of the service. It is append-only: entries are
// never rewritten, only evicted from the front once the window is full.
type History struct {
	mu        sync.Mutex
	capacity  int
	processes map[uint64][]Event
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		capacity:  capacity,
		processes: make(map[uint64][]Event),
	}
}

// Append adds a stopped session's events to the process history.
func (h *History) Append(processID uint64, events []Event) {
	if len(events) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	merged := append(h.processes[processID], events...)
	if len(merged) > h.capacity {
		half := h.capacity / 2
		if half == 0 {
			half = 1
		}
		for len(merged) > h.capacity {
			merged = merged[half:]
		}
		merged = append([]Event(nil), merged...)
	}
	h.processes[processID] = merged
}

// Events returns a copy of the process history, oldest first. A process with
// no recorded history yields an empty slice, not an error.
func (h *History) Events(processID uint64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	stored := h.processes[processID]
	events := make([]Event, len(stored))
	copy(events, stored)
	return events
}

// Size returns how many events are currently retained for the process.
func (h *History) Size(processID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.processes[processID])
}
