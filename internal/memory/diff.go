package memory

import (
	"fmt"

	"github.com/multios/introspect/internal/errorutil"
)

// DefaultLeakThreshold is the used-size growth between two snapshots above
// which a leak is suspected.
const DefaultLeakThreshold = 1 << 20

type (
	// RegionChange pairs the two states of a region that kept its base
	// address but changed size or occupancy.
	RegionChange struct {
		Old Region `json:"old"`
		New Region `json:"new"`
	}

	// ViewDiff lists what happened to one view between two snapshots.
	ViewDiff struct {
		Added   []Region       `json:"added,omitempty"`
		Removed []Region       `json:"removed,omitempty"`
		Changed []RegionChange `json:"changed,omitempty"`
	}

	// Diff is the comparison of two snapshots of the same process. Views
	// without changes are omitted.
	Diff struct {
		BaseID    uint64            `json:"base_id"`
		TargetID  uint64            `json:"target_id"`
		ProcessID uint64            `json:"process_id"`
		Views     map[View]ViewDiff `json:"views,omitempty"`
		Analysis  ChangeAnalysis    `json:"analysis"`
	}

	// ChangeAnalysis interprets a diff: how much the used size moved, whether
	// the growth looks like a leak and how fragmentation shifted per view.
	ChangeAnalysis struct {
		NetSizeChange       int64            `json:"net_size_change"`
		LeakSuspected       bool             `json:"leak_suspected"`
		FragmentationChange float64          `json:"fragmentation_change"`
		FragmentationByView map[View]float64 `json:"fragmentation_by_view"`
	}
)

// Empty reports whether the two snapshots had identical regions.
func (d *Diff) Empty() bool {
	return len(d.Views) == 0
}

// Compare diffs two snapshots of the same process, keyed by base address
// within each view: a region is the same region when it still starts at the
// same address, whatever ID it got assigned. Regions present only in the
// target are Added, only in the base Removed, and present in both but with a
// different size or occupancy Changed. A leakThreshold of 0 selects
// DefaultLeakThreshold.
func Compare(base, target *Snapshot, leakThreshold uint64) (*Diff, error) {
	if base == nil || target == nil {
		return nil, fmt.Errorf("%w: two snapshots are required", errorutil.ErrInvalidArgument)
	}
	if base.ProcessID != target.ProcessID {
		return nil, fmt.Errorf("%w: snapshots %d and %d belong to different processes",
			errorutil.ErrInvalidArgument, base.ID, target.ID)
	}
	if leakThreshold == 0 {
		leakThreshold = DefaultLeakThreshold
	}

	diff := &Diff{
		BaseID:    base.ID,
		TargetID:  target.ID,
		ProcessID: base.ProcessID,
		Views:     make(map[View]ViewDiff),
	}
	for _, view := range AllViews {
		vd := compareView(base.Views[view], target.Views[view])
		if len(vd.Added) == 0 && len(vd.Removed) == 0 && len(vd.Changed) == 0 {
			continue
		}
		diff.Views[view] = vd
	}
	if len(diff.Views) == 0 {
		diff.Views = nil
	}

	netSizeChange := int64(target.Summary.UsedSize) - int64(base.Summary.UsedSize)
	byView := make(map[View]float64, len(AllViews))
	for _, view := range AllViews {
		byView[view] = Fragmentation(target, view) - Fragmentation(base, view)
	}
	diff.Analysis = ChangeAnalysis{
		NetSizeChange:       netSizeChange,
		LeakSuspected:       netSizeChange > int64(leakThreshold),
		FragmentationChange: byView[ViewHeap],
		FragmentationByView: byView,
	}
	return diff, nil
}

// compareView walks both region lists, which the store keeps sorted by base
// address, so every bucket of the diff comes out in address order.
func compareView(base, target []Region) ViewDiff {
	baseByAddr := make(map[uint64]Region, len(base))
	for _, r := range base {
		baseByAddr[r.BaseAddress] = r
	}
	targetByAddr := make(map[uint64]Region, len(target))
	for _, r := range target {
		targetByAddr[r.BaseAddress] = r
	}

	var vd ViewDiff
	for _, r := range target {
		old, ok := baseByAddr[r.BaseAddress]
		if !ok {
			vd.Added = append(vd.Added, r)
			continue
		}
		if old.Size != r.Size || old.Used != r.Used {
			vd.Changed = append(vd.Changed, RegionChange{Old: old, New: r})
		}
	}
	for _, r := range base {
		if _, ok := targetByAddr[r.BaseAddress]; !ok {
			vd.Removed = append(vd.Removed, r)
		}
	}
	return vd
}
