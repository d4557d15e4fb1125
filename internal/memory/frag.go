package memory

import (
	"fmt"

	"github.com/multios/introspect/internal/errorutil"
)

// Fragmentation scores how splintered the free space of one view is, as
// 1 - largestFreeBlock/totalFree. One contiguous free block scores 0; the
// score approaches 1 as free space splinters into many small blocks. A view
// with no free space scores 0.
func Fragmentation(s *Snapshot, view View) float64 {
	var total, largest uint64
	for _, r := range s.Views[view] {
		if r.Used {
			continue
		}
		total += r.Size
		if r.Size > largest {
			largest = r.Size
		}
	}
	if total == 0 {
		return 0
	}
	return 1 - float64(largest)/float64(total)
}

// LeakReport is the verdict of the pairwise leak heuristic.
type LeakReport struct {
	ProcessID      uint64 `json:"process_id"`
	BaseID         uint64 `json:"base_id"`
	TargetID       uint64 `json:"target_id"`
	Suspected      bool   `json:"suspected"`
	NetSizeChange  int64  `json:"net_size_change"`
	AddedRegions   int    `json:"added_regions"`
	RemovedRegions int    `json:"removed_regions"`
	Threshold      uint64 `json:"threshold"`
}

// CheckLeak applies the leak heuristic to a pair of snapshots of the same
// process: a leak is suspected when the used size grew past the threshold
// AND the growth is additive, meaning more regions appeared than went away.
// Heavy churn with stable totals is not flagged. The heuristic compares
// exactly two snapshots and does not fit trends across a series.
// A threshold of 0 selects DefaultLeakThreshold.
func CheckLeak(base, target *Snapshot, threshold uint64) (LeakReport, error) {
	if base == nil || target == nil {
		return LeakReport{}, fmt.Errorf("%w: two snapshots are required", errorutil.ErrInvalidArgument)
	}
	if base.ProcessID != target.ProcessID {
		return LeakReport{}, fmt.Errorf("%w: snapshots %d and %d belong to different processes",
			errorutil.ErrInvalidArgument, base.ID, target.ID)
	}
	if threshold == 0 {
		threshold = DefaultLeakThreshold
	}

	var added, removed int
	for _, view := range AllViews {
		vd := compareView(base.Views[view], target.Views[view])
		added += len(vd.Added)
		removed += len(vd.Removed)
	}
	netSizeChange := int64(target.Summary.UsedSize) - int64(base.Summary.UsedSize)
	return LeakReport{
		ProcessID:      base.ProcessID,
		BaseID:         base.ID,
		TargetID:       target.ID,
		Suspected:      netSizeChange > int64(threshold) && added > removed,
		NetSizeChange:  netSizeChange,
		AddedRegions:   added,
		RemovedRegions: removed,
		Threshold:      threshold,
	}, nil
}
