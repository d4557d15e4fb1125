package memory

type View string

// The four views a snapshot captures. Every region belongs to exactly one.
const (
	ViewHeap  View = "heap"
	ViewStack View = "stack"
	ViewCode  View = "code"
	ViewData  View = "data"
)

// AllViews lists the views in canonical order. Region IDs and summaries are
// derived in this order, so it must stay stable.
var AllViews = []View{ViewHeap, ViewStack, ViewCode, ViewData}

// ValidView reports whether v names one of the four snapshot views.
func ValidView(v View) bool {
	switch v {
	case ViewHeap, ViewStack, ViewCode, ViewData:
		return true
	}
	return false
}

// Region is one address range of a snapshot view. Used regions hold live
// allocations; free regions are the gaps between them, synthesized so
// fragmentation can be computed. Within one view of one snapshot, used
// regions occupy disjoint address ranges.
type Region struct {
	ID             uint64 `json:"id"`
	View           View   `json:"view"`
	BaseAddress    uint64 `json:"base_address"`
	Size           uint64 `json:"size"`
	Used           bool   `json:"used"`
	Protection     string `json:"protection,omitempty"`
	AllocationKind string `json:"allocation_kind,omitempty"`
	Label          string `json:"label,omitempty"`
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.BaseAddress + r.Size
}
