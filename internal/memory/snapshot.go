package memory

import (
	"fmt"

	"github.com/multios/introspect/internal/timeutil"
)

type (
	// Snapshot is an immutable capture of a process's memory layout across
	// the four views. Snapshots are never updated in place: observing a
	// change means taking a new snapshot and diffing the two.
	Snapshot struct {
		ID        uint64            `json:"id"`
		ProcessID uint64            `json:"process_id"`
		SessionID string            `json:"session_id,omitempty"`
		Label     string            `json:"label,omitempty"`
		TakenAt   timeutil.Time     `json:"taken_at"`
		Views     map[View][]Region `json:"views"`
		Summary   Summary           `json:"summary"`
	}

	// Summary aggregates a snapshot's regions at creation time.
	Summary struct {
		TotalSize      uint64  `json:"total_size"`
		UsedSize       uint64  `json:"used_size"`
		FreeSize       uint64  `json:"free_size"`
		UsedPercentage float64 `json:"used_percentage"`
	}
)

// StoragePath returns the object path a snapshot archives under.
func StoragePath(processID, snapshotID uint64) string {
	return fmt.Sprintf("%d/%d", processID, snapshotID)
}

func (s *Snapshot) StoragePath() string {
	return StoragePath(s.ProcessID, s.ID)
}

func summarize(views map[View][]Region) Summary {
	var s Summary
	for _, view := range AllViews {
		for _, r := range views[view] {
			s.TotalSize += r.Size
			if r.Used {
				s.UsedSize += r.Size
			}
		}
	}
	s.FreeSize = s.TotalSize - s.UsedSize
	if s.TotalSize > 0 {
		s.UsedPercentage = float64(s.UsedSize) / float64(s.TotalSize) * 100
	}
	return s
}
